package app

import (
	"context"
	"errors"
	"time"

	"tasktrack/internal/eventbus"
	"tasktrack/internal/scheduler"
	"tasktrack/internal/taskerr"
	logx "tasktrack/pkg/logx"
)

// restore fills the registry from the store. Invalid and duplicate records
// are skipped.
func (a *App) restore(ctx context.Context) error {
	tasks, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	added, skipped := a.reg.Load(tasks)
	a.log.Info("tasks restored", logx.Int("added", added), logx.Int("skipped", skipped))
	return nil
}

// saveNow writes the current collection to the store.
func (a *App) saveNow(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	tasks := a.reg.List()
	if err := a.store.Save(ctx, tasks); err != nil {
		return err
	}
	a.log.Debug("tasks saved", logx.Int("count", len(tasks)))
	return nil
}

// autosaveLoop debounces registry changes into one save per quiet period by
// pushing a single one-shot job further out on every change.
func (a *App) autosaveLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if err := a.scheduleSave(); err != nil {
				if errors.Is(err, taskerr.ErrClosed) {
					return
				}
				taskerr.Log(a.log, "autosave schedule failed", err)
			}
		}
	}
}

func (a *App) scheduleSave() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, err := a.replaceJob(a.save, "autosave", a.saveNow, a.rt.AutosaveDelay, 0)
	if err != nil {
		return err
	}
	a.save = h
	return nil
}

// replaceJob moves the job behind h to the new timing, or schedules a fresh
// job named name when h is zero or has already finished.
func (a *App) replaceJob(h scheduler.Handle, name string, work scheduler.Work, delay, period time.Duration) (scheduler.Handle, error) {
	if !h.IsZero() {
		next, err := a.sched.Reschedule(h, work, delay, period)
		if !errors.Is(err, taskerr.ErrNotFound) {
			return next, err
		}
	}
	return a.sched.Schedule(work, delay, period, scheduler.Named(name))
}
