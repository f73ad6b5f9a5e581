package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tasktrack/internal/task"
	"tasktrack/internal/taskerr"
	logx "tasktrack/pkg/logx"
)

func sampleTasks() []task.Task {
	a := task.MustNew("write report", "quarterly, with \"charts\"", "2025-03-01")
	b := task.MustNew("pay rent", "", "2025-02-01")
	b.MarkCompleted()
	c := task.MustNew("call mom", "sunday", "2025-02-15")
	return []task.Task{a, b, c}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		driver string
		file   string
	}{
		{"csv", "tasks.csv"},
		{"json", "tasks.json"},
		{"yaml", "tasks.yaml"},
		{"sqlite", "tasks.db"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "nested", tc.file)
			st, err := Open(Config{Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			ctx := context.Background()
			empty, err := st.Load(ctx)
			if err != nil || len(empty) != 0 {
				t.Fatalf("Load before save = %v, %v", empty, err)
			}

			want := sampleTasks()
			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("loaded %d tasks, want %d", len(got), len(want))
			}
			for i := range want {
				if !got[i].Equal(want[i]) || got[i].Completed() != want[i].Completed() || got[i].Description() != want[i].Description() {
					t.Fatalf("task %d = %s, want %s", i, got[i], want[i])
				}
			}

			// A second save replaces the collection.
			if err := st.Save(ctx, want[:1]); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err = st.Load(ctx)
			if err != nil || len(got) != 1 {
				t.Fatalf("Load after overwrite = %d tasks, %v", len(got), err)
			}
		})
	}
}

func TestCSVSkipsMalformedRecords(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.csv")
	data := "a,first,2025-01-01,false\n" +
		"only,three,fields\n" +
		"b,second,2025-01-02,true\n" +
		",no name,2025-01-03,false\n" +
		"c,bad date,2025-13-40,false\n" +
		"d,fourth,2025-01-04,TRUE\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "csv", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d tasks, want 3: %v", len(got), got)
	}
	if got[0].Name() != "a" || got[1].Name() != "b" || got[2].Name() != "d" {
		t.Fatalf("unexpected order: %v", got)
	}
	if !got[1].Completed() || !got[2].Completed() || got[0].Completed() {
		t.Fatalf("completion flags wrong: %v", got)
	}
}

func TestJSONSkipsMalformedRecords(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.json")
	data := `[
  {"name":"a","description":"","deadline":"2025-01-01","completed":false},
  {"name":42},
  {"name":"b","description":"x","deadline":"2025-01-02","completed":true}
]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Name() != "a" || got[1].Name() != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("none driver = %v, %v", st, err)
	}
	if _, err := Open(Config{Driver: "csv"}, logx.Nop()); !errors.Is(err, taskerr.ErrValidation) {
		t.Fatalf("missing path err = %v", err)
	}
	if _, err := Open(Config{Driver: "xml", Path: "x.xml"}, logx.Nop()); !errors.Is(err, taskerr.ErrValidation) {
		t.Fatalf("unknown driver err = %v", err)
	}
}

func TestDriverFor(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"a.csv":     "csv",
		"a.txt":     "csv",
		"a.JSON":    "json",
		"a.yml":     "yaml",
		"a.yaml":    "yaml",
		"a.db":      "sqlite",
		"a.sqlite3": "sqlite",
	}
	for in, want := range tests {
		if got := DriverFor(in); got != want {
			t.Fatalf("DriverFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExistsAndRemove(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "f.csv")

	if ok, err := Exists(path); ok || err != nil {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if ok, err := Exists(path); !ok || err != nil {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(path); err == nil {
		t.Fatal("removing a missing file should fail")
	}
	if _, err := Exists(" "); !errors.Is(err, taskerr.ErrValidation) {
		t.Fatalf("Exists(blank) err = %v", err)
	}
	if err := Remove(""); !errors.Is(err, taskerr.ErrValidation) {
		t.Fatalf("Remove(blank) err = %v", err)
	}
}
