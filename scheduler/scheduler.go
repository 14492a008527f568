package scheduler

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/ivarator/config"
	"github.com/hupe1980/ivarator/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultStartWait bounds how long Suspend waits for a dispatched task
	// to start before asking it to stop.
	DefaultStartWait = 60 * time.Second
	// DefaultSuspendWait bounds how long Suspend waits for a running task to
	// reach its next safe point.
	DefaultSuspendWait = 60 * time.Second
)

type options struct {
	logger      *slog.Logger
	metrics     metrics.Collector
	clock       func() time.Time
	startWait   time.Duration
	suspendWait time.Duration
	background  bool
}

// Option configures a Scheduler.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithSuspendWait sets how long Suspend waits for a running task to
// acknowledge. Zero only signals the task.
func WithSuspendWait(d time.Duration) Option {
	return func(o *options) { o.suspendWait = d }
}

// WithoutBackgroundLoops disables the maintenance and sweep goroutines;
// callers drive Maintain and Sweep themselves.
func WithoutBackgroundLoops() Option {
	return func(o *options) { o.background = false }
}

// Scheduler runs tasks on the scan and evaluation pools.
type Scheduler struct {
	provider config.Provider
	opts     options
	logger   *slog.Logger

	pools    map[string]*pool
	registry *xsync.MapOf[string, *Future]

	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	submitMu sync.RWMutex
}

// New creates a scheduler sized by provider and starts its background loops.
func New(provider config.Provider, opts ...Option) (*Scheduler, error) {
	o := options{
		metrics:     metrics.NoopCollector{},
		clock:       time.Now,
		startWait:   DefaultStartWait,
		suspendWait: DefaultSuspendWait,
		background:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Scheduler{
		provider: provider,
		opts:     o,
		logger:   o.logger,
		pools:    make(map[string]*pool, 2),
		registry: xsync.NewMapOf[string, *Future](),
		stopCh:   make(chan struct{}),
	}
	for _, name := range []string{config.PoolScan, config.PoolEvaluation} {
		size := provider.PoolSize(name)
		p, err := newPool(name, size, o.logger)
		if err != nil {
			for _, created := range s.pools {
				created.close(ErrClosed)
			}
			return nil, fmt.Errorf("scheduler: create %s pool: %w", name, err)
		}
		s.pools[name] = p
		o.metrics.RecordPoolSize(name, p.ants.Cap())
	}

	if o.background {
		s.wg.Add(2)
		go s.loop(provider.MaintenanceInterval, s.Maintain)
		go s.loop(provider.SweepInterval, s.Sweep)
	}
	return s, nil
}

func (s *Scheduler) loop(interval func() time.Duration, fn func()) {
	defer s.wg.Done()
	timer := time.NewTimer(interval())
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			fn()
			timer.Reset(interval())
		}
	}
}

// Submit schedules task unless a future with the same name is registered,
// in which case that future is returned.
func (s *Scheduler) Submit(task Task) (*Future, error) {
	s.submitMu.RLock()
	defer s.submitMu.RUnlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}

	now := s.opts.clock()
	created := false
	f, _ := s.registry.LoadOrCompute(task.Name(), func() *Future {
		created = true
		return newFuture(task, config.PoolScan, now)
	})
	s.opts.metrics.RecordTaskSubmitted(config.PoolScan, !created)
	if !created {
		f.touch(now)
		return f, nil
	}
	s.pools[config.PoolScan].enqueue(f)
	return f, nil
}

// Evaluate runs fn on the evaluation pool. Evaluation work is not
// registered and cannot be suspended.
func (s *Scheduler) Evaluate(name string, fn func() error) (*Future, error) {
	s.submitMu.RLock()
	defer s.submitMu.RUnlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	f := newFuture(&funcTask{name: name, fn: fn}, config.PoolEvaluation, s.opts.clock())
	s.pools[config.PoolEvaluation].enqueue(f)
	return f, nil
}

// Lookup returns the registered future for name.
func (s *Scheduler) Lookup(name string) (*Future, bool) {
	f, ok := s.registry.Load(name)
	if ok {
		f.touch(s.opts.clock())
	}
	return f, ok
}

// Remove drops the registry entry for name. It reports whether the task
// was removed before it started; such a task never runs.
func (s *Scheduler) Remove(name string) bool {
	f, ok := s.registry.LoadAndDelete(name)
	if !ok {
		return false
	}
	return f.cancelIfQueued(ErrRemoved)
}

// Unregister drops f from the registry unless its name was taken over by
// another future in the meantime. The task itself is not touched.
func (s *Scheduler) Unregister(f *Future) {
	s.unregister(f)
}

func (s *Scheduler) unregister(f *Future) {
	s.registry.Compute(f.Name(), func(old *Future, loaded bool) (*Future, bool) {
		return old, !loaded || old == f
	})
}

// Suspend stops f: a queued task is removed before it starts, otherwise
// the task is asked to suspend. With assumeExecuting a dispatched task
// that has not started yet is awaited first. With removeAfter the
// registry entry is dropped. It reports whether the task was removed
// before starting.
func (s *Scheduler) Suspend(f *Future, assumeExecuting, removeAfter bool) bool {
	return s.SuspendWithin(f, assumeExecuting, removeAfter, s.opts.startWait)
}

// SuspendWithin is Suspend with an explicit bound on the start wait.
func (s *Scheduler) SuspendWithin(f *Future, assumeExecuting, removeAfter bool, startWait time.Duration) bool {
	if f == nil {
		return false
	}
	removed := f.cancelIfQueued(ErrRemoved)
	if !removed {
		task := f.Task()
		if st := task.Status(); assumeExecuting && (st == StatusCreated || st == StatusResumable) {
			task.WaitUntilStarted(startWait)
		}
		task.Suspend(s.opts.suspendWait, nil)
	}
	if removeAfter {
		s.unregister(f)
	}
	return removed
}

// Len returns the number of registered futures.
func (s *Scheduler) Len() int { return s.registry.Size() }

// PoolStats describes one pool.
type PoolStats struct {
	Capacity int
	Running  int
	Waiting  int
}

// Stats returns the state of every pool.
func (s *Scheduler) Stats() map[string]PoolStats {
	out := make(map[string]PoolStats, len(s.pools))
	for name, p := range s.pools {
		out[name] = PoolStats{Capacity: p.ants.Cap(), Running: p.ants.Running(), Waiting: p.waiting()}
	}
	return out
}

// Close stops the background loops, suspends running tasks and fails
// queued ones with ErrClosed.
func (s *Scheduler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.submitMu.Lock()
	close(s.stopCh)
	s.submitMu.Unlock()
	s.wg.Wait()

	s.registry.Range(func(_ string, f *Future) bool {
		if !f.cancelIfQueued(ErrClosed) {
			f.Task().Suspend(0, ErrClosed)
		}
		return true
	})
	s.registry.Clear()
	for _, p := range s.pools {
		p.close(ErrClosed)
	}
	return nil
}

type funcTask struct {
	name    string
	fn      func() error
	started atomic.Int64
	status  atomic.Int32
}

func (t *funcTask) Name() string    { return t.name }
func (t *funcTask) QueryID() string { return "" }
func (t *funcTask) Owner() Owner    { return nil }

func (t *funcTask) Run() error {
	t.started.Store(time.Now().UnixNano())
	t.status.Store(int32(StatusRunning))
	err := t.fn()
	if err != nil {
		t.status.Store(int32(StatusFailed))
	} else {
		t.status.Store(int32(StatusCompleted))
	}
	return err
}

func (t *funcTask) Status() Status { return Status(t.status.Load()) }

func (t *funcTask) StartedAt() time.Time {
	if n := t.started.Load(); n != 0 {
		return time.Unix(0, n)
	}
	return time.Time{}
}

func (t *funcTask) WaitUntilStarted(time.Duration) bool { return t.started.Load() != 0 }
func (t *funcTask) Suspend(time.Duration, error) bool   { return false }
