package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tasktrack/internal/scheduler"
	"tasktrack/internal/storage"
	logx "tasktrack/pkg/logx"
)

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Storage      StorageConfig      `json:"storage"`
	OverdueSweep OverdueSweepConfig `json:"overdue_sweep"`
	Systemd      SystemdConfig      `json:"systemd"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig sizes the worker pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - history_size: 100
//   - shutdown_timeout: "5s"
type SchedulerConfig struct {
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// StorageConfig selects the task store.
//
// Driver is one of "csv", "json", "yaml", "sqlite" or "none"; empty infers the
// driver from the path extension. AutosaveDelay debounces saves after registry
// changes; "0s" disables autosave.
type StorageConfig struct {
	Driver        string `json:"driver,omitempty"`
	Path          string `json:"path,omitempty"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	AutosaveDelay string `json:"autosave_delay,omitempty"`
}

// OverdueSweepConfig controls the recurring overdue report.
// Every accepts anything scheduler.ParsePeriod does ("10m", "01:00", "@every 1h").
type OverdueSweepConfig struct {
	Enabled      bool   `json:"enabled"`
	Every        string `json:"every,omitempty"`
	InitialDelay string `json:"initial_delay,omitempty"`
}

type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

// Runtime holds the parsed, defaulted view of Config used to build services.
type Runtime struct {
	Logging logx.Config

	Scheduler       scheduler.Config
	ShutdownTimeout time.Duration

	StorageEnabled bool
	Storage        storage.Config
	AutosaveDelay  time.Duration

	SweepEnabled bool
	SweepEvery   time.Duration
	SweepDelay   time.Duration

	Systemd SystemdConfig
}

const (
	defaultShutdownTimeout = 5 * time.Second
	defaultAutosaveDelay   = 2 * time.Second
	defaultSweepEvery      = time.Hour
	defaultBusyTimeout     = time.Second
)

// problems collects every error found by one Resolve pass.
type problems []error

func (p *problems) add(err error) {
	if err != nil {
		*p = append(*p, err)
	}
}

// duration parses the Go duration stored under key. Empty yields def and
// negative values are rejected.
func (p *problems) duration(key, raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		p.add(fmt.Errorf("%s: invalid duration %q: %w", key, raw, err))
		return def
	case d < 0:
		p.add(fmt.Errorf("%s: duration must be >= 0", key))
		return def
	}
	return d
}

// timeout is duration where zero also means def.
func (p *problems) timeout(key, raw string, def time.Duration) time.Duration {
	if d := p.duration(key, raw, def); d > 0 {
		return d
	}
	return def
}

// Resolve validates cfg and fills defaults. All problems are reported together.
func (cfg *Config) Resolve() (Runtime, error) {
	if cfg == nil {
		return Runtime{}, errors.New("config is nil")
	}
	var errs problems

	var rt Runtime
	rt.Logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.LookupLevel(lvl); !ok {
			errs.add(fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}

	for key, n := range map[string]int{
		"scheduler.workers":      cfg.Scheduler.Workers,
		"scheduler.queue_size":   cfg.Scheduler.QueueSize,
		"scheduler.history_size": cfg.Scheduler.HistorySize,
	} {
		if n < 0 {
			errs.add(fmt.Errorf("%s must be >= 0", key))
		}
	}
	rt.Scheduler = scheduler.Config{
		Workers:     cfg.Scheduler.Workers,
		QueueSize:   cfg.Scheduler.QueueSize,
		HistorySize: cfg.Scheduler.HistorySize,
	}
	rt.ShutdownTimeout = errs.timeout("scheduler.shutdown_timeout", cfg.Scheduler.ShutdownTimeout, defaultShutdownTimeout)

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	rt.StorageEnabled = driver != "none"
	if rt.StorageEnabled && strings.TrimSpace(cfg.Storage.Path) == "" {
		errs.add(errors.New("storage.path is required unless storage.driver is \"none\""))
	}
	switch driver {
	case "", "none", "csv", "json", "yaml", "yml", "sqlite", "sqlite3":
	default:
		errs.add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	rt.Storage = storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: errs.timeout("storage.busy_timeout", cfg.Storage.BusyTimeout, defaultBusyTimeout),
	}
	rt.AutosaveDelay = errs.duration("storage.autosave_delay", cfg.Storage.AutosaveDelay, defaultAutosaveDelay)

	rt.SweepEnabled = cfg.OverdueSweep.Enabled
	rt.SweepEvery = defaultSweepEvery
	if s := strings.TrimSpace(cfg.OverdueSweep.Every); s != "" {
		every, err := scheduler.ParsePeriod(s)
		if err != nil {
			errs.add(fmt.Errorf("overdue_sweep.every: %w", err))
		} else {
			rt.SweepEvery = every
		}
	}
	rt.SweepDelay = errs.duration("overdue_sweep.initial_delay", cfg.OverdueSweep.InitialDelay, 0)

	rt.Systemd = cfg.Systemd
	if err := errors.Join(errs...); err != nil {
		return Runtime{}, err
	}
	return rt, nil
}
