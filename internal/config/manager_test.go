package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "tasktrack/pkg/logx"
)

const sampleYAML = `
logging:
  level: debug
  console: true
scheduler:
  workers: 2
  shutdown_timeout: 3s
storage:
  driver: csv
  path: ./data/tasks.csv
  autosave_delay: 500ms
overdue_sweep:
  enabled: true
  every: "@every 10m"
  initial_delay: 1s
systemd:
  notify: true
`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	m := NewConfigManager(p, logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
	rt, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.Scheduler.Workers != 2 || rt.ShutdownTimeout != 3*time.Second {
		t.Fatalf("scheduler runtime = %+v / %s", rt.Scheduler, rt.ShutdownTimeout)
	}
	if !rt.StorageEnabled || rt.Storage.Driver != "csv" || rt.AutosaveDelay != 500*time.Millisecond {
		t.Fatalf("storage runtime = %+v", rt)
	}
	if !rt.SweepEnabled || rt.SweepEvery != 10*time.Minute || rt.SweepDelay != time.Second {
		t.Fatalf("sweep runtime = %v %s %s", rt.SweepEnabled, rt.SweepEvery, rt.SweepDelay)
	}
	if !rt.Systemd.Notify || rt.Systemd.Watchdog {
		t.Fatalf("systemd = %+v", rt.Systemd)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, data string
		wantErr          bool
	}{
		{"json ok", "c.json", `{"storage":{"driver":"none"}}`, false},
		{"json unknown field", "c.json", `{"mailer":{}}`, true},
		{"json trailing data", "c.json", `{} {}`, true},
		{"yaml unknown field", "c.yml", "bogus: 1\n", true},
		{"yaml empty", "c.yaml", "", false},
		{"yaml broken", "c.yaml", "logging: [\n", true},
	}
	for _, tc := range tests {
		_, err := Decode(tc.file, []byte(tc.data))
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestResolveDefaultsAndErrors(t *testing.T) {
	t.Parallel()
	rt, err := (&Config{Storage: StorageConfig{Path: "tasks.json"}}).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.ShutdownTimeout != defaultShutdownTimeout || rt.AutosaveDelay != defaultAutosaveDelay || rt.SweepEvery != defaultSweepEvery {
		t.Fatalf("defaults not applied: %+v", rt)
	}

	bad := &Config{
		Logging:      LoggingConfig{Level: "loud"},
		Scheduler:    SchedulerConfig{Workers: -1, ShutdownTimeout: "soon"},
		Storage:      StorageConfig{Driver: "xml"},
		OverdueSweep: OverdueSweepConfig{Every: "0 9 * * *"},
	}
	_, err = bad.Resolve()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"logging.level", "scheduler.workers", "scheduler.shutdown_timeout", "storage.path", "storage.driver", "overdue_sweep.every"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestSubscribeKeepsLatest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json", logx.Nop())
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("slow subscriber should receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"storage":{"driver":"none"}}`)
	m := NewConfigManager(p, logx.Nop())
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Scheduler.Workers > 50 {
			return errors.New("too many workers")
		}
		return nil
	})
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"storage":{"driver":"none"},"scheduler":{"workers":99}}`)
	time.Sleep(150 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"storage":{"driver":"none"},"scheduler":{"workers":7}}`)

	select {
	case cfg := <-ch:
		if cfg.Scheduler.Workers != 7 {
			t.Fatalf("published workers = %d", cfg.Scheduler.Workers)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no config published after change")
	}
	if m.Get().Scheduler.Workers != 7 {
		t.Fatal("reloaded config was not committed")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := &Config{Logging: LoggingConfig{Level: "info"}}
	b := &Config{Logging: LoggingConfig{Level: "debug"}, Storage: StorageConfig{Path: "x.csv"}}
	changed, attrs := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "logging,storage" || len(attrs) == 0 {
		t.Fatalf("changed = %v", changed)
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "storage" {
		t.Fatalf("RestartRequired = %v", got)
	}
	if changed, _ := SummarizeChange(a, a); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
}
