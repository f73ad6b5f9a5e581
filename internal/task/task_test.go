package task

import (
	"errors"
	"testing"
	"time"

	"tasktrack/internal/taskerr"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		taskName string
		deadline string
		wantErr  bool
	}{
		{name: "valid", taskName: "Pay rent", deadline: "2030-01-01"},
		{name: "trimmed name", taskName: "  Buy milk  ", deadline: "2020-01-01"},
		{name: "empty name", taskName: "", deadline: "2030-01-01", wantErr: true},
		{name: "blank name", taskName: "   ", deadline: "2030-01-01", wantErr: true},
		{name: "bad date", taskName: "x", deadline: "01/02/2030", wantErr: true},
		{name: "impossible date", taskName: "x", deadline: "2030-02-30", wantErr: true},
		{name: "empty date", taskName: "x", deadline: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := New(tt.taskName, "desc", tt.deadline)
			if tt.wantErr {
				if !errors.Is(err, taskerr.ErrValidation) {
					t.Fatalf("New(%q, %q) err = %v, want ErrValidation", tt.taskName, tt.deadline, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if !got.Valid() || got.Completed() {
				t.Fatalf("unexpected task state: %v", got)
			}
		})
	}
}

func TestNameIsTrimmed(t *testing.T) {
	t.Parallel()
	tk := MustNew("  Buy milk ", "  two liters ", "2020-01-01")
	if tk.Name() != "Buy milk" {
		t.Fatalf("Name = %q", tk.Name())
	}
	if tk.Description() != "two liters" {
		t.Fatalf("Description = %q", tk.Description())
	}
	if err := tk.SetName(" "); err == nil {
		t.Fatal("expected error for blank name")
	}
	if tk.Name() != "Buy milk" {
		t.Fatal("failed SetName must not change the name")
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()
	a := MustNew("Pay rent", "", "2030-01-01")
	b := MustNew("Pay rent", "different description", "2030-01-01")
	b.MarkCompleted()
	c := MustNew("pay rent", "", "2030-01-01")
	d := MustNew("Pay rent", "", "2030-01-02")

	if !a.Equal(b) || a.Key() != b.Key() {
		t.Fatal("same name and deadline must be equal")
	}
	if a.Equal(c) {
		t.Fatal("identity is case-sensitive")
	}
	if a.Equal(d) {
		t.Fatal("different deadline must not be equal")
	}
	set := map[Key]bool{a.Key(): true}
	if !set[b.Key()] {
		t.Fatal("equal tasks must hash to the same key")
	}
}

func TestExtendDeadline(t *testing.T) {
	t.Parallel()
	tk := MustNew("x", "", "2024-02-27")
	if err := tk.ExtendDeadline(3); err != nil {
		t.Fatalf("ExtendDeadline: %v", err)
	}
	if got := tk.DeadlineString(); got != "2024-03-01" {
		t.Fatalf("deadline = %s, want 2024-03-01 (leap year)", got)
	}
	if err := tk.ExtendDeadline(-1); !errors.Is(err, taskerr.ErrValidation) {
		t.Fatalf("negative extension err = %v", err)
	}
	if err := tk.ExtendDeadline(0); err != nil || tk.DeadlineString() != "2024-03-01" {
		t.Fatalf("zero extension changed deadline: %s (%v)", tk.DeadlineString(), err)
	}
}

func TestOverdue(t *testing.T) {
	t.Parallel()
	today := time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)

	past := MustNew("Buy milk", "", "2020-01-01")
	future := MustNew("Pay rent", "", "2030-01-01")
	dueToday := MustNew("Today", "", "2025-01-01")

	if !past.IsOverdueAt(today) {
		t.Fatal("past deadline should be overdue")
	}
	if future.IsOverdueAt(today) {
		t.Fatal("future deadline should not be overdue")
	}
	if dueToday.IsOverdueAt(today) {
		t.Fatal("deadline equal to today is not overdue")
	}
	past.MarkCompleted()
	if past.IsOverdueAt(today) {
		t.Fatal("completed task is never overdue")
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	tk := MustNew("x", "", "2030-01-01")
	if tk.Status() != StatusPending {
		t.Fatalf("Status = %s", tk.Status())
	}
	tk.MarkCompleted()
	tk.MarkCompleted()
	if tk.Status() != StatusCompleted || !tk.Completed() {
		t.Fatalf("Status = %s", tk.Status())
	}
}

func TestCopiesAreIndependent(t *testing.T) {
	t.Parallel()
	a := MustNew("x", "", "2030-01-01")
	b := a
	b.MarkCompleted()
	b.SetDescription("changed")
	if a.Completed() || a.Description() != "" {
		t.Fatal("mutating a copy must not affect the original")
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2030-01-01", want: "2030-01-01"},
		{in: " 2030-01-01 ", want: "2030-01-01"},
		{in: "2030-02-30", wantErr: true},
		{in: "01/02/2030", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseDate(tc.in)
		if tc.wantErr {
			if !errors.Is(err, taskerr.ErrValidation) {
				t.Fatalf("ParseDate(%q) err = %v, want ErrValidation", tc.in, err)
			}
			continue
		}
		if err != nil || got.Format(DateLayout) != tc.want || got.Location() != time.UTC {
			t.Fatalf("ParseDate(%q) = %v, %v", tc.in, got, err)
		}
	}
}
