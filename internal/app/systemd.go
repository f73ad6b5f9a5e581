package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tasktrack/internal/config"
	"tasktrack/internal/scheduler"
	logx "tasktrack/pkg/logx"
)

const sdStopping = daemon.SdNotifyStopping

// notifier talks to the service manager.
type notifier interface {
	Notify(state string) (bool, error)
	WatchdogInterval() (time.Duration, error)
}

// sdNotifier uses $NOTIFY_SOCKET and $WATCHDOG_USEC. Outside systemd both
// calls are no-ops.
type sdNotifier struct{}

func (sdNotifier) Notify(state string) (bool, error) { return daemon.SdNotify(false, state) }

func (sdNotifier) WatchdogInterval() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }

func (a *App) notifyState(state string) {
	sent, err := a.notify.Notify(state)
	if err != nil {
		a.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	a.log.Debug("systemd notify", logx.String("state", state), logx.Bool("sent", sent))
}

// startSystemd reports readiness and, when the unit has WatchdogSec set,
// pings the watchdog at half its interval.
func (a *App) startSystemd(cfg config.SystemdConfig) {
	a.notifyState(daemon.SdNotifyReady)
	if !cfg.Watchdog {
		return
	}
	iv, err := a.notify.WatchdogInterval()
	if err != nil {
		a.log.Warn("systemd watchdog lookup failed", logx.Err(err))
		return
	}
	if iv <= 0 {
		a.log.Debug("systemd watchdog not enabled for this unit")
		return
	}
	period := iv / 2
	h, err := a.sched.ScheduleRecurring(func(context.Context) error {
		_, err := a.notify.Notify(daemon.SdNotifyWatchdog)
		return err
	}, 0, period, scheduler.Named("systemd-watchdog"))
	if err != nil {
		a.log.Warn("systemd watchdog schedule failed", logx.Err(err))
		return
	}
	a.mu.Lock()
	a.watchdog = h
	a.mu.Unlock()
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", iv), logx.Duration("ping_every", period))
}
