package app

import (
	"context"
	"time"

	"tasktrack/internal/config"
	"tasktrack/internal/eventbus"
	"tasktrack/internal/scheduler"
	"tasktrack/internal/task"
	logx "tasktrack/pkg/logx"
)

// EventOverdue is published after each overdue sweep that found tasks.
// Data is an OverdueReport.
const EventOverdue = "sweep.overdue"

type OverdueReport struct {
	At    time.Time  `json:"at"`
	Tasks []task.Key `json:"tasks"`
}

const maxLoggedOverdue = 10

// SweepOverdue reports the overdue tasks currently in the registry.
func (a *App) SweepOverdue(context.Context) error {
	overdue := a.reg.FilterOverdue()
	if len(overdue) == 0 {
		a.log.Debug("overdue sweep: nothing overdue")
		return nil
	}
	rep := OverdueReport{At: time.Now(), Tasks: make([]task.Key, 0, len(overdue))}
	names := make([]string, 0, min(len(overdue), maxLoggedOverdue))
	for i, t := range overdue {
		rep.Tasks = append(rep.Tasks, t.Key())
		if i < maxLoggedOverdue {
			names = append(names, t.Key().String())
		}
	}
	a.log.Warn("overdue tasks", logx.Int("count", len(overdue)), logx.Any("tasks", names))
	a.bus.Publish(eventbus.Event{Type: EventOverdue, Time: rep.At, Data: rep})
	return nil
}

// applySweep starts, moves or stops the overdue sweep job to match rt.
func (a *App) applySweep(rt config.Runtime) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !rt.SweepEnabled {
		if !a.sweep.IsZero() {
			a.sched.Cancel(a.sweep)
			a.sweep = scheduler.Handle{}
			a.log.Info("overdue sweep disabled")
		}
		return nil
	}

	h, err := a.replaceJob(a.sweep, "overdue-sweep", a.SweepOverdue, rt.SweepDelay, rt.SweepEvery)
	if err != nil {
		return err
	}
	a.sweep = h
	a.log.Info("overdue sweep scheduled", logx.Duration("every", rt.SweepEvery), logx.Duration("initial_delay", rt.SweepDelay))
	return nil
}
