package scheduler

import (
	"context"
	"fmt"
	"time"

	"tasktrack/internal/eventbus"
)

// Config controls the scheduler.
//
// Defaults (when fields are zero):
//   - Workers: 4
//   - QueueSize: 256
//   - HistorySize: 100
//   - FailureLogEvery: 5s (one failure log line per interval, burst 5)
type Config struct {
	Workers         int
	QueueSize       int
	HistorySize     int
	FailureLogEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.FailureLogEvery <= 0 {
		c.FailureLogEvery = 5 * time.Second
	}
	return c
}

// Work is a unit of work. ctx is canceled when the scheduler is shut down.
type Work func(ctx context.Context) error

// Func adapts a plain func() to Work.
func Func(f func()) Work {
	if f == nil {
		return nil
	}
	return func(context.Context) error {
		f()
		return nil
	}
}

type JobState int

const (
	StatePending JobState = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool { return s == StateCompleted || s == StateCancelled }

// Handle identifies a scheduled job. The zero Handle refers to no job.
type Handle struct {
	j *job
}

func (h Handle) ID() string {
	if h.j == nil {
		return ""
	}
	return h.j.id
}

func (h Handle) Name() string {
	if h.j == nil {
		return ""
	}
	return h.j.name
}

func (h Handle) IsZero() bool { return h.j == nil }

// Failure describes one failed run of a job.
type Failure struct {
	JobID string
	Name  string
	Run   uint64
	At    time.Time
	Err   error
}

// FailureFunc receives work failures. It is called from worker goroutines and
// must not block for long.
type FailureFunc func(f Failure)

// PanicError wraps a value recovered from a panicking work unit.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

type Option func(*Service)

// WithFailureSink routes work failures to fn instead of the default log sink.
func WithFailureSink(fn FailureFunc) Option {
	return func(s *Service) { s.sink = fn }
}

// WithBus publishes job.* lifecycle events.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// JobOption configures a single job.
type JobOption func(*job)

// Named labels a job for logs, events and snapshots.
func Named(name string) JobOption {
	return func(j *job) { j.name = name }
}

// Event types published on the bus (see WithBus).
const (
	EventPrefix    = "job."
	EventFinished  = "job.finished"
	EventFailed    = "job.failed"
	EventCancelled = "job.cancelled"
)

// JobEvent is the payload of job.* events.
type JobEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Run      uint64        `json:"run"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Lateness time.Duration // how far after its target time the run started
	Duration time.Duration
	Error    string
}

type JobInfo struct {
	ID     string
	Name   string
	State  JobState
	Period time.Duration
	Next   time.Time
	Runs   uint64
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Closed   bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int
	Failures uint64
	// Restarts counts worker or dispatcher loops restarted after a panic.
	Restarts uint64
	Jobs     []JobInfo
	History  []HistoryItem
}
