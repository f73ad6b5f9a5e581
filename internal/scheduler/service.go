package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tasktrack/internal/eventbus"
	rtsup "tasktrack/internal/runtime/supervisor"
	logx "tasktrack/pkg/logx"
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	heap    jobHeap
	live    map[*job]struct{}
	closed  bool
	started bool
	sup     *rtsup.Supervisor

	log  logx.Logger
	bus  eventbus.Bus
	sink FailureFunc

	wake  chan struct{}
	queue chan *job

	// inflight counts jobs handed to the queue and not yet finished.
	inflight sync.WaitGroup
	running  atomic.Int32

	hmu     sync.Mutex
	history []HistoryItem

	failures    atomic.Uint64
	suppressed  atomic.Uint64
	failLimiter *rate.Limiter
}

func New(cfg Config, log logx.Logger, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:         cfg,
		live:        map[*job]struct{}{},
		log:         log,
		wake:        make(chan struct{}, 1),
		queue:       make(chan *job, cfg.QueueSize),
		failLimiter: rate.NewLimiter(rate.Every(cfg.FailureLogEvery), 5),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the dispatcher and the worker pool. Jobs scheduled before
// Start keep their timeline and fire as soon as the dispatcher runs.
// Start is idempotent and does nothing after shutdown.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup = sup

	for i := 0; i < s.cfg.Workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.worker(c)
			return c.Err()
		})
	}
	sup.GoRestart("dispatch", func(c context.Context) error {
		s.dispatch(c)
		return c.Err()
	})

	s.log.Info("scheduler started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize), logx.Int("jobs", len(s.live)))
}

// Shutdown cancels every job, cancels the context passed to running work, and
// refuses further scheduling. It does not wait for running work to return.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	n := s.closeLocked()
	sup := s.sup
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
	}
	s.log.Info("scheduler shut down", logx.Int("cancelled", n))
}

// ShutdownGraceful stops accepting work and cancels all future fires, then
// waits up to timeout for runs already in flight before proceeding as
// Shutdown. It returns an error wrapping context.DeadlineExceeded if in-flight
// runs were still going when the timeout expired.
func (s *Service) ShutdownGraceful(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	n := s.closeLocked()
	sup := s.sup
	s.mu.Unlock()

	s.log.Info("scheduler draining", logx.Int("cancelled", n), logx.Int("in_flight", int(s.running.Load())), logx.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	t := time.NewTimer(timeout)
	select {
	case <-done:
		t.Stop()
	case <-t.C:
		err = fmt.Errorf("scheduler: graceful shutdown: %w", context.DeadlineExceeded)
		s.log.Warn("scheduler drain timed out; forcing shutdown", logx.Int("in_flight", int(s.running.Load())))
	}

	if sup != nil {
		sup.Cancel()
	}
	s.log.Info("scheduler shut down")
	return err
}

// Wait blocks until the dispatcher and workers have exited after shutdown
// (bounded by ctx). It returns immediately if the scheduler never started.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Wait(ctx)
}

// Closed reports whether Shutdown or ShutdownGraceful has been called.
func (s *Service) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) closeLocked() int {
	s.closed = true
	n := 0
	for j := range s.live {
		if s.cancelLocked(j) {
			n++
		}
	}
	return n
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	jobs := make([]JobInfo, 0, len(s.live))
	for j := range s.live {
		jobs = append(jobs, JobInfo{ID: j.id, Name: j.name, State: j.state, Period: j.period, Next: j.next, Runs: j.runs})
	}
	closed := s.closed
	loops := s.sup.Counters()
	s.mu.Unlock()

	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Closed:   closed,
		Workers:  s.cfg.Workers,
		QueueLen: len(s.queue),
		QueueCap: cap(s.queue),
		InFlight: int(s.running.Load()),
		Failures: s.failures.Load(),
		Restarts: loops.Restarts,
		Jobs:     jobs,
		History:  h,
	}
}

func (s *Service) recordHistory(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) signalLocked() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
