// Package task defines the Task entity tracked by the registry.
package task

import (
	"fmt"
	"strings"
	"time"

	"tasktrack/internal/taskerr"
)

// DateLayout is the ISO calendar date format used for deadlines.
const DateLayout = "2006-01-02"

const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
)

// Key is a task's identity: name (case-sensitive, trimmed) plus deadline.
// It is comparable and safe to use as a map key.
type Key struct {
	Name     string
	Deadline string
}

func (k Key) String() string { return k.Name + "@" + k.Deadline }

// Task is a named, dated, completable unit of work.
//
// Task is a value type: copies are independent. The zero Task is invalid
// (empty name); build tasks with New.
type Task struct {
	name        string
	description string
	deadline    time.Time // midnight UTC
	completed   bool
}

// New validates and builds a pending task.
func New(name, description, deadline string) (Task, error) {
	var t Task
	if err := t.SetName(name); err != nil {
		return Task{}, err
	}
	t.SetDescription(description)
	if err := t.SetDeadline(deadline); err != nil {
		return Task{}, err
	}
	return t, nil
}

// MustNew is New that panics on invalid input. Intended for tests and fixtures.
func MustNew(name, description, deadline string) Task {
	t, err := New(name, description, deadline)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Task) Name() string        { return t.name }
func (t Task) Description() string { return t.description }
func (t Task) Deadline() time.Time { return t.deadline }
func (t Task) Completed() bool     { return t.completed }

// DeadlineString renders the deadline as YYYY-MM-DD.
func (t Task) DeadlineString() string {
	if t.deadline.IsZero() {
		return ""
	}
	return t.deadline.Format(DateLayout)
}

func (t Task) Key() Key { return Key{Name: t.name, Deadline: t.DeadlineString()} }

// Equal reports identity equality (name and deadline).
func (t Task) Equal(other Task) bool { return t.Key() == other.Key() }

// Valid reports whether the task satisfies the entity invariants.
func (t Task) Valid() bool {
	return strings.TrimSpace(t.name) != "" && !t.deadline.IsZero()
}

func (t *Task) SetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return taskerr.Validation("task.SetName", "task name cannot be empty")
	}
	t.name = name
	return nil
}

func (t *Task) SetDescription(description string) {
	t.description = strings.TrimSpace(description)
}

func (t *Task) SetDeadline(deadline string) error {
	d, err := ParseDate(deadline)
	if err != nil {
		return err
	}
	t.deadline = d
	return nil
}

// ExtendDeadline moves the deadline forward by days. Negative values are rejected.
func (t *Task) ExtendDeadline(days int) error {
	if days < 0 {
		return taskerr.Validation("task.ExtendDeadline", "days to extend cannot be negative (got %d)", days)
	}
	t.deadline = t.deadline.AddDate(0, 0, days)
	return nil
}

// MarkCompleted is idempotent.
func (t *Task) MarkCompleted() { t.completed = true }

// SetCompleted restores a persisted completion flag. Callers mutating live
// tasks should use MarkCompleted.
func (t *Task) SetCompleted(done bool) { t.completed = done }

// Status returns "Completed" or "Pending".
func (t Task) Status() string {
	if t.completed {
		return StatusCompleted
	}
	return StatusPending
}

// IsOverdueAt reports whether the task is pending and its deadline is
// strictly before the calendar date of now (in now's location).
func (t Task) IsOverdueAt(now time.Time) bool {
	return !t.completed && t.deadline.Before(DateOf(now))
}

func (t Task) IsOverdue() bool { return t.IsOverdueAt(time.Now()) }

func (t Task) String() string {
	return fmt.Sprintf("Task{name=%q, description=%q, deadline=%s, status=%s}",
		t.name, t.description, t.DeadlineString(), t.Status())
}

// ParseDate parses an ISO YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, taskerr.ValidationWrap("task.ParseDate", err, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf truncates t to its calendar date, expressed as midnight UTC so it
// compares directly with deadlines.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
