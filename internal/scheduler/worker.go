package scheduler

import (
	"container/heap"
	"context"
	"runtime/debug"
	"time"

	logx "tasktrack/pkg/logx"
)

// dispatch pops due jobs off the heap and hands them to the workers. It is
// the only goroutine that waits on the heap's timer.
func (s *Service) dispatch(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		due, wait := s.collectDue(time.Now())
		for i, j := range due {
			select {
			case s.queue <- j:
			case <-ctx.Done():
				// Release the claims that never reached a worker.
				for range due[i:] {
					s.inflight.Done()
				}
				return
			}
		}

		var tc <-chan time.Time
		if wait >= 0 {
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			tc = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-tc:
		}
	}
}

// collectDue claims every job whose next fire time is not after now. wait is
// the delay until the earliest remaining fire, or -1 if the heap is empty.
func (s *Service) collectDue(now time.Time) (due []*job, wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.heap.Len() > 0 {
		j := s.heap[0]
		if j.next.After(now) {
			return due, j.next.Sub(now)
		}
		heap.Pop(&s.heap)
		j.state = StateRunning
		s.inflight.Add(1)
		due = append(due, j)
	}
	return due, -1
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.execute(ctx, j)
		}
	}
}

func (s *Service) execute(ctx context.Context, j *job) {
	defer s.inflight.Done()

	s.mu.Lock()
	if j.state == StateCancelled {
		delete(s.live, j)
		s.mu.Unlock()
		return
	}
	run := j.runs + 1
	target := j.next
	s.mu.Unlock()

	s.running.Add(1)
	started := time.Now()
	err := runSafely(ctx, j.work)
	dur := time.Since(started)
	s.running.Add(-1)

	item := HistoryItem{ID: j.id, Name: j.name, Started: started, Lateness: started.Sub(target), Duration: dur}
	ev := JobEvent{ID: j.id, Name: j.name, Run: run, Started: started, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		s.failures.Add(1)
		s.reportFailure(Failure{JobID: j.id, Name: j.name, Run: run, At: started, Err: err})
	}
	s.recordHistory(item)

	s.mu.Lock()
	j.runs = run
	switch {
	case j.state == StateCancelled:
		delete(s.live, j)
	case j.period == 0:
		j.state = StateCompleted
		delete(s.live, j)
	default:
		j.fires++
		j.next = j.first.Add(time.Duration(j.fires) * j.period)
		j.state = StatePending
		heap.Push(&s.heap, j)
		s.signalLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.publish(EventFailed, ev)
	} else {
		s.publish(EventFinished, ev)
	}
}

func runSafely(ctx context.Context, w Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return w(ctx)
}

func (s *Service) reportFailure(f Failure) {
	if s.sink == nil {
		s.logFailure(f)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("failure sink panicked", logx.String("job", f.Name), logx.Any("panic", r))
		}
	}()
	s.sink(f)
}

// logFailure is the default sink. Lines are rate limited; the count of
// suppressed lines is attached to the next one that gets through.
func (s *Service) logFailure(f Failure) {
	if !s.failLimiter.Allow() {
		s.suppressed.Add(1)
		return
	}
	fields := []logx.Field{
		logx.String("job", f.Name),
		logx.String("id", f.JobID),
		logx.Uint64("run", f.Run),
		logx.Err(f.Err),
	}
	if n := s.suppressed.Swap(0); n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
	}
	if pe, ok := f.Err.(*PanicError); ok {
		fields = append(fields, logx.Stack(pe.Stack))
		s.log.Error("job panicked", fields...)
		return
	}
	s.log.Warn("job failed", fields...)
}
