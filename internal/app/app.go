package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"tasktrack/internal/config"
	"tasktrack/internal/eventbus"
	"tasktrack/internal/registry"
	rtsup "tasktrack/internal/runtime/supervisor"
	"tasktrack/internal/scheduler"
	"tasktrack/internal/storage"
	"tasktrack/internal/taskerr"
	logx "tasktrack/pkg/logx"
)

// App wires the registry, scheduler, store and config watcher together.
type App struct {
	cfgPath string
	cfgm    *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	reg   *registry.Registry
	sched *scheduler.Service
	store storage.Store

	sup    *rtsup.Supervisor
	notify notifier

	mu       sync.Mutex
	rt       config.Runtime
	sweep    scheduler.Handle
	save     scheduler.Handle
	watchdog scheduler.Handle
}

// Option customizes New. Used by tests to stub out collaborators.
type Option func(*App)

// withNotifier replaces the systemd notifier.
func withNotifier(n notifier) Option { return func(a *App) { a.notify = n } }

// New loads the config at cfgPath, opens the store and restores the task
// collection from it.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfg, err := config.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	rt, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.NewService(rt.Logging)
	bus := eventbus.New()

	a := &App{
		cfgPath: cfgPath,
		cfgm:    config.NewConfigManager(cfgPath, log),
		log:     log.Named("app"),
		logs:    logSvc,
		bus:     bus,
		rt:      rt,
		notify:  sdNotifier{},
	}
	a.cfgm.Commit(cfg)
	for _, o := range opts {
		o(a)
	}

	a.reg = registry.New(
		registry.WithBus(bus),
		registry.WithLogger(log.Named("registry")),
	)
	a.sched = scheduler.New(rt.Scheduler, log.Named("scheduler"), scheduler.WithBus(bus))

	if rt.StorageEnabled {
		st, err := storage.Open(rt.Storage, log)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		a.store = st
		if err := a.restore(context.Background()); err != nil {
			_ = st.Close()
			logSvc.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) Registry() *registry.Registry  { return a.reg }
func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Logger() logx.Logger           { return a.log }
func (a *App) Config() *config.ConfigManager { return a.cfgm }
func (a *App) Bus() eventbus.Bus             { return a.bus }

func (a *App) runtime() config.Runtime {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rt
}

func (a *App) setRuntime(rt config.Runtime) {
	a.mu.Lock()
	a.rt = rt
	a.mu.Unlock()
}

// Err returns the first error reported by a supervised background loop.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the scheduler and the background loops. It returns once they
// are launched.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	// The scheduler outlives ctx so Stop can drain it gracefully.
	a.sched.Start(context.WithoutCancel(ctx))

	rt := a.runtime()
	if err := a.applySweep(rt); err != nil {
		return err
	}
	if a.store != nil && rt.AutosaveDelay > 0 {
		events, unsub := a.bus.Subscribe(64, registry.EventPrefix)
		a.sup.Go("autosave", func(c context.Context) error {
			defer unsub()
			a.autosaveLoop(c, events)
			return nil
		})
	}

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := cfg.Resolve()
		return err
	})
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if rt.Systemd.Notify {
		a.startSystemd(rt.Systemd)
	}

	c := a.reg.Counts()
	a.log.Info("started",
		logx.Int("tasks", c.Total),
		logx.Int("pending", c.Pending),
		logx.Int("overdue", c.Overdue),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// reloadLoop applies hot-reloadable sections (logging, overdue sweep).
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(old, cfg *config.Config) {
	sections, attrs := config.SummarizeChange(old, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	rt, err := cfg.Resolve()
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}

	prev := a.runtime()
	// Sections that need a restart keep their running values.
	rt.Scheduler = prev.Scheduler
	rt.ShutdownTimeout = prev.ShutdownTimeout
	rt.StorageEnabled = prev.StorageEnabled
	rt.Storage = prev.Storage
	rt.AutosaveDelay = prev.AutosaveDelay
	rt.Systemd = prev.Systemd
	a.setRuntime(rt)

	if err := a.logs.Apply(rt.Logging); err != nil {
		a.log.Warn("log file unavailable, logging to console", logx.Err(err))
	}
	if slices.Contains(sections, "overdue_sweep") {
		if err := a.applySweep(rt); err != nil {
			taskerr.Log(a.log, "overdue sweep reschedule failed", err)
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
	if r := config.RestartRequired(sections); len(r) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect", logx.String("sections", strings.Join(r, ",")))
	}
}

// Stop flushes a final save, drains the scheduler and closes the store and
// log sinks. Each step is bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	rt := a.runtime()
	if rt.Systemd.Notify {
		a.notifyState(sdStopping)
	}
	if a.sup != nil {
		a.sup.Cancel()
	}

	var saveErr error
	_ = a.step(ctx, "scheduler", rt.ShutdownTimeout+time.Second, func(context.Context) error {
		return a.sched.ShutdownGraceful(rt.ShutdownTimeout)
	})
	if a.store != nil {
		saveErr = a.step(ctx, "save", 5*time.Second, a.saveNow)
		_ = a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	}
	_ = a.step(ctx, "scheduler.wait", time.Second, a.sched.Wait)
	if a.sup != nil {
		_ = a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	}

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return saveErr
}

// step runs fn with an upper bound derived from max and ctx's deadline and
// returns its error, or the context error if the bound was hit first.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	stepCtx := ctx
	if max > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		return stepCtx.Err()
	}
}
