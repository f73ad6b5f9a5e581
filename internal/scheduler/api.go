package scheduler

import (
	"container/heap"
	"time"

	"github.com/google/uuid"

	"tasktrack/internal/eventbus"
	"tasktrack/internal/taskerr"
	logx "tasktrack/pkg/logx"
)

// validate checks the timing of a job. A zero period means one-shot.
func validate(op string, work Work, delay, period time.Duration) error {
	switch {
	case work == nil:
		return taskerr.Validation(op, "work is required")
	case delay < 0:
		return taskerr.Validation(op, "delay must be >= 0, got %s", delay)
	case period < 0:
		return taskerr.Validation(op, "period must be > 0, got %s", period)
	}
	return nil
}

// ScheduleOnce runs work once after delay. A zero delay fires as soon as a
// worker is free.
func (s *Service) ScheduleOnce(work Work, delay time.Duration, opts ...JobOption) (Handle, error) {
	const op = "scheduler.ScheduleOnce"
	if err := validate(op, work, delay, 0); err != nil {
		return Handle{}, err
	}
	return s.add(op, work, delay, 0, opts)
}

// ScheduleRecurring runs work at delay, delay+period, delay+2*period and so on
// until cancelled. A run is never started while the previous run of the same
// job is still executing.
func (s *Service) ScheduleRecurring(work Work, delay, period time.Duration, opts ...JobOption) (Handle, error) {
	const op = "scheduler.ScheduleRecurring"
	if period == 0 {
		return Handle{}, taskerr.Validation(op, "period must be > 0, got %s", period)
	}
	if err := validate(op, work, delay, period); err != nil {
		return Handle{}, err
	}
	return s.add(op, work, delay, period, opts)
}

// Schedule is ScheduleOnce when period is zero and ScheduleRecurring otherwise.
func (s *Service) Schedule(work Work, delay, period time.Duration, opts ...JobOption) (Handle, error) {
	if period == 0 {
		return s.ScheduleOnce(work, delay, opts...)
	}
	return s.ScheduleRecurring(work, delay, period, opts...)
}

// ScheduleSpec parses spec with ParsePeriod and schedules a recurring job
// whose first run happens one period from now.
func (s *Service) ScheduleSpec(work Work, spec string, opts ...JobOption) (Handle, error) {
	every, err := ParsePeriod(spec)
	if err != nil {
		return Handle{}, taskerr.ValidationWrap("scheduler.ScheduleSpec", err, "invalid period %q", spec)
	}
	return s.ScheduleRecurring(work, every, every, opts...)
}

// newJob builds a pending job whose first fire is delay from now.
func (s *Service) newJob(work Work, delay, period time.Duration, opts []JobOption) *job {
	j := &job{
		owner:  s,
		id:     uuid.NewString(),
		work:   work,
		period: period,
		first:  time.Now().Add(delay),
		state:  StatePending,
		index:  -1,
	}
	j.next = j.first
	for _, o := range opts {
		o(j)
	}
	if j.name == "" {
		j.name = j.id[:8]
	}
	return j
}

// pushLocked makes j live. The caller has checked s.closed.
func (s *Service) pushLocked(j *job) {
	s.live[j] = struct{}{}
	heap.Push(&s.heap, j)
	s.signalLocked()
}

func (s *Service) add(op string, work Work, delay, period time.Duration, opts []JobOption) (Handle, error) {
	j := s.newJob(work, delay, period, opts)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Handle{}, taskerr.Closed(op)
	}
	s.pushLocked(j)
	s.mu.Unlock()

	s.logScheduled(j, delay)
	return Handle{j: j}, nil
}

func (s *Service) logScheduled(j *job, delay time.Duration) {
	s.log.Debug("job scheduled",
		logx.String("job", j.name),
		logx.String("id", j.id),
		logx.Duration("delay", delay),
		logx.Duration("period", j.period),
	)
}

// Cancel prevents any future run of h. It reports whether the job moved to
// cancelled by this call; cancelling a finished, already-cancelled or foreign
// handle returns false. A run already in progress finishes normally.
func (s *Service) Cancel(h Handle) bool {
	if h.j == nil || h.j.owner != s {
		return false
	}
	s.mu.Lock()
	ok := s.cancelLocked(h.j)
	runs := h.j.runs
	s.mu.Unlock()
	if ok {
		s.log.Debug("job cancelled", logx.String("job", h.j.name), logx.String("id", h.j.id))
		s.publish(EventCancelled, JobEvent{ID: h.j.id, Name: h.j.name, Run: runs})
	}
	return ok
}

// Reschedule replaces the live job h with one running work at the new
// timing under the same name. A nil work reuses the work of h. Cancelling h
// and installing the replacement happen under one lock, so invalid timing
// leaves h untouched and concurrent calls on the same handle install exactly
// one replacement; the others get ErrNotFound. A finished, cancelled or
// foreign handle also gets ErrNotFound. A run of h already in progress
// finishes under the old parameters and h never fires again.
func (s *Service) Reschedule(h Handle, work Work, delay, period time.Duration) (Handle, error) {
	const op = "scheduler.Reschedule"
	if h.j == nil || h.j.owner != s {
		return Handle{}, taskerr.NotFound(op, "unknown job handle")
	}
	old := h.j
	if work == nil {
		work = old.work
	}
	if err := validate(op, work, delay, period); err != nil {
		return Handle{}, err
	}
	j := s.newJob(work, delay, period, []JobOption{Named(old.name)})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Handle{}, taskerr.Closed(op)
	}
	if !s.cancelLocked(old) {
		state := old.state
		s.mu.Unlock()
		return Handle{}, taskerr.NotFound(op, "job %s is no longer live (%s)", old.name, state)
	}
	runs := old.runs
	s.pushLocked(j)
	s.mu.Unlock()

	s.publish(EventCancelled, JobEvent{ID: old.id, Name: old.name, Run: runs})
	s.logScheduled(j, delay)
	return Handle{j: j}, nil
}

// State reports the current state of h. The zero Handle and handles from
// another scheduler report StateCancelled.
func (s *Service) State(h Handle) JobState {
	if h.j == nil || h.j.owner != s {
		return StateCancelled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.j.state
}

// cancelLocked marks j cancelled and drops it from the heap. A running job is
// retired by its worker once the current run returns.
func (s *Service) cancelLocked(j *job) bool {
	if j.state.Terminal() {
		return false
	}
	running := j.state == StateRunning
	j.state = StateCancelled
	if j.index >= 0 {
		heap.Remove(&s.heap, j.index)
	}
	if !running {
		delete(s.live, j)
	}
	s.signalLocked()
	return true
}

func (s *Service) publish(typ string, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
