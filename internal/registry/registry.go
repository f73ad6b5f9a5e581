// Package registry holds the authoritative, concurrency-safe in-memory set of
// tasks.
//
// The registry owns its ordered collection exclusively. Every read returns a
// copy (a point-in-time snapshot); mutations go through Registry methods only.
package registry

import (
	"slices"
	"strings"
	"sync"
	"time"

	"tasktrack/internal/eventbus"
	"tasktrack/internal/task"
	"tasktrack/internal/taskerr"
	logx "tasktrack/pkg/logx"
)

// Counts is a point-in-time summary of the registry.
type Counts struct {
	Total     int
	Completed int
	Pending   int
	Overdue   int
}

type Option func(*Registry)

// WithClock overrides the clock used to decide "today" for overdue checks.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithBus publishes a task.* event after every successful mutation.
func WithBus(bus eventbus.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

func WithLogger(log logx.Logger) Option {
	return func(r *Registry) { r.log = log }
}

type Registry struct {
	mu    sync.RWMutex
	tasks []task.Task
	keys  map[task.Key]struct{}

	now func() time.Time
	bus eventbus.Bus
	log logx.Logger
}

func New(opts ...Option) *Registry {
	r := &Registry{
		keys: map[task.Key]struct{}{},
		now:  time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Add inserts t at the end of the iteration order.
func (r *Registry) Add(t task.Task) error {
	if !t.Valid() {
		return taskerr.Validation("registry.Add", "task must have a name and a deadline")
	}
	k := t.Key()

	r.mu.Lock()
	if _, ok := r.keys[k]; ok {
		r.mu.Unlock()
		return taskerr.Duplicate("registry.Add", "task %q due %s already exists", k.Name, k.Deadline)
	}
	r.tasks = append(r.tasks, t)
	r.keys[k] = struct{}{}
	r.mu.Unlock()

	r.log.Debug("task added", logx.String("task", k.String()))
	r.publish(EventAdded, k)
	return nil
}

// Remove deletes the stored task equal (by identity) to t.
func (r *Registry) Remove(t task.Task) error {
	k := t.Key()

	r.mu.Lock()
	i := r.indexLocked(k)
	if i < 0 {
		r.mu.Unlock()
		return taskerr.NotFound("registry.Remove", "task %q due %s not found", k.Name, k.Deadline)
	}
	r.tasks = slices.Delete(r.tasks, i, i+1)
	delete(r.keys, k)
	r.mu.Unlock()

	r.publish(EventRemoved, k)
	return nil
}

// Complete marks the stored task equal to t as completed. Completing an
// already-completed task succeeds without change.
func (r *Registry) Complete(t task.Task) error {
	k := t.Key()

	r.mu.Lock()
	i := r.indexLocked(k)
	if i < 0 {
		r.mu.Unlock()
		return taskerr.NotFound("registry.Complete", "task %q due %s not found", k.Name, k.Deadline)
	}
	changed := !r.tasks[i].Completed()
	r.tasks[i].MarkCompleted()
	r.mu.Unlock()

	if changed {
		r.publish(EventCompleted, k)
	}
	return nil
}

// Update replaces the stored task equal to old with next, keeping its position.
// next may change identity as long as it doesn't collide with another stored task.
func (r *Registry) Update(old, next task.Task) error {
	if !next.Valid() {
		return taskerr.Validation("registry.Update", "replacement task must have a name and a deadline")
	}
	ok, nk := old.Key(), next.Key()

	r.mu.Lock()
	i := r.indexLocked(ok)
	if i < 0 {
		r.mu.Unlock()
		return taskerr.NotFound("registry.Update", "task %q due %s not found", ok.Name, ok.Deadline)
	}
	if nk != ok {
		if _, clash := r.keys[nk]; clash {
			r.mu.Unlock()
			return taskerr.Duplicate("registry.Update", "task %q due %s already exists", nk.Name, nk.Deadline)
		}
		delete(r.keys, ok)
		r.keys[nk] = struct{}{}
	}
	r.tasks[i] = next
	r.mu.Unlock()

	r.publish(EventUpdated, nk)
	return nil
}

// ExtendDeadline pushes the stored task's deadline forward by days.
func (r *Registry) ExtendDeadline(t task.Task, days int) (task.Task, error) {
	k := t.Key()

	r.mu.Lock()
	i := r.indexLocked(k)
	if i < 0 {
		r.mu.Unlock()
		return task.Task{}, taskerr.NotFound("registry.ExtendDeadline", "task %q due %s not found", k.Name, k.Deadline)
	}
	next := r.tasks[i]
	if err := next.ExtendDeadline(days); err != nil {
		r.mu.Unlock()
		return task.Task{}, err
	}
	nk := next.Key()
	if nk != k {
		if _, clash := r.keys[nk]; clash {
			r.mu.Unlock()
			return task.Task{}, taskerr.Duplicate("registry.ExtendDeadline", "task %q due %s already exists", nk.Name, nk.Deadline)
		}
		delete(r.keys, k)
		r.keys[nk] = struct{}{}
	}
	r.tasks[i] = next
	r.mu.Unlock()

	r.publish(EventUpdated, nk)
	return next, nil
}

// Get returns a copy of the task with identity k.
func (r *Registry) Get(k task.Key) (task.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexLocked(k)
	if i < 0 {
		return task.Task{}, false
	}
	return r.tasks[i], true
}

// FindByName returns the first task (in iteration order) whose name matches
// case-insensitively.
func (r *Registry) FindByName(name string) (task.Task, bool) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		if strings.EqualFold(t.Name(), name) {
			return t, true
		}
	}
	return task.Task{}, false
}

// List returns a snapshot of all tasks in iteration order.
func (r *Registry) List() []task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tasks)
}

func (r *Registry) FilterOverdue() []task.Task {
	now := r.now()
	return r.filter(func(t task.Task) bool { return t.IsOverdueAt(now) })
}

func (r *Registry) FilterCompleted() []task.Task {
	return r.filter(task.Task.Completed)
}

func (r *Registry) FilterPending() []task.Task {
	return r.filter(func(t task.Task) bool { return !t.Completed() })
}

func (r *Registry) filter(keep func(task.Task) bool) []task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// SortByDeadline reorders the registry ascending by deadline. Ties keep their
// relative order.
func (r *Registry) SortByDeadline() {
	r.mu.Lock()
	slices.SortStableFunc(r.tasks, func(a, b task.Task) int {
		return a.Deadline().Compare(b.Deadline())
	})
	n := len(r.tasks)
	r.mu.Unlock()

	r.publishData(EventSorted, n)
}

// ClearCompleted removes every completed task and returns how many were removed.
func (r *Registry) ClearCompleted() int {
	r.mu.Lock()
	before := len(r.tasks)
	r.tasks = slices.DeleteFunc(r.tasks, func(t task.Task) bool {
		if t.Completed() {
			delete(r.keys, t.Key())
			return true
		}
		return false
	})
	removed := before - len(r.tasks)
	r.mu.Unlock()

	if removed > 0 {
		r.publishData(EventCleared, removed)
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Counts computes total/completed/pending/overdue over one consistent view.
func (r *Registry) Counts() Counts {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := Counts{Total: len(r.tasks)}
	for _, t := range r.tasks {
		if t.Completed() {
			c.Completed++
			continue
		}
		c.Pending++
		if t.IsOverdueAt(now) {
			c.Overdue++
		}
	}
	return c
}

// Load appends tasks in order, skipping invalid ones and ones whose identity
// is already present. It never fails; it is the bulk path used when
// repopulating from storage.
func (r *Registry) Load(tasks []task.Task) (added, skipped int) {
	r.mu.Lock()
	for _, t := range tasks {
		if !t.Valid() {
			skipped++
			continue
		}
		k := t.Key()
		if _, ok := r.keys[k]; ok {
			skipped++
			continue
		}
		r.tasks = append(r.tasks, t)
		r.keys[k] = struct{}{}
		added++
	}
	r.mu.Unlock()

	if skipped > 0 {
		r.log.Warn("task load skipped records", logx.Int("added", added), logx.Int("skipped", skipped))
	}
	if added > 0 {
		r.publishData(EventLoaded, added)
	}
	return added, skipped
}

func (r *Registry) indexLocked(k task.Key) int {
	if _, ok := r.keys[k]; !ok {
		return -1
	}
	return slices.IndexFunc(r.tasks, func(t task.Task) bool { return t.Key() == k })
}
