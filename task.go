package ivarator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/ivarator/key"
	"github.com/hupe1980/ivarator/scheduler"
	"github.com/hupe1980/ivarator/source"
)

// ScanTask scans one bounding range into the row accumulator. It stops
// only between keys, so a suspended task records the first unprocessed
// key and resumes there.
type ScanTask struct {
	name      string
	queryID   string
	index     int
	bound     key.Range
	state     *rowState
	createdAt time.Time

	builder atomic.Pointer[Builder]

	mu        sync.Mutex
	status    scheduler.Status
	seek      key.Range
	restart   *key.Key
	stop      chan struct{}
	stopped   bool
	reason    error
	running   bool
	started   chan struct{}
	finished  chan struct{}
	startedAt time.Time
	restarts  int

	scanned atomic.Int64
	matched atomic.Int64
}

var _ scheduler.Task = (*ScanTask)(nil)

func newScanTask(b *Builder, st *rowState, index int, bound key.Range) *ScanTask {
	t := &ScanTask{
		name:      b.TaskName(bound),
		queryID:   b.cfg.QueryID,
		index:     index,
		bound:     bound,
		state:     st,
		createdAt: b.opts.clock(),
		status:    scheduler.StatusCreated,
		seek:      bound,
		stop:      make(chan struct{}),
		started:   make(chan struct{}),
	}
	t.builder.Store(b)
	return t
}

func (t *ScanTask) Name() string    { return t.name }
func (t *ScanTask) QueryID() string { return t.queryID }

// Range returns the bounding range of the task.
func (t *ScanTask) Range() key.Range { return t.bound }

// Scanned returns the number of index keys examined.
func (t *ScanTask) Scanned() int64 { return t.scanned.Load() }

// Matched returns the number of keys that satisfied the predicate.
func (t *ScanTask) Matched() int64 { return t.matched.Load() }

func (t *ScanTask) Status() scheduler.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// RestartKey returns the key a suspended task resumes at.
func (t *ScanTask) RestartKey() (key.Key, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restart == nil {
		return key.Key{}, false
	}
	return *t.restart, true
}

func (t *ScanTask) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return time.Time{}
	}
	return t.startedAt
}

func (t *ScanTask) Owner() scheduler.Owner {
	if b := t.builder.Load(); b != nil {
		return b
	}
	return nil
}

func (t *ScanTask) WaitUntilStarted(timeout time.Duration) bool {
	t.mu.Lock()
	status, started := t.status, t.started
	t.mu.Unlock()
	if status != scheduler.StatusCreated && status != scheduler.StatusResumable {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-started:
		return true
	case <-timer.C:
		return false
	}
}

// Suspend asks the task to stop before its next key. A task that has not
// started yet stops at its first key. It waits up to wait for a running
// task to stop and reports whether it did.
func (t *ScanTask) Suspend(wait time.Duration, reason error) bool {
	t.mu.Lock()
	switch t.status {
	case scheduler.StatusCompleted, scheduler.StatusFailed, scheduler.StatusSuspended:
		t.mu.Unlock()
		return false
	}
	if !t.stopped {
		t.stopped = true
		close(t.stop)
	}
	if t.reason == nil {
		t.reason = reason
	}
	running, finished := t.running, t.finished
	t.mu.Unlock()

	if !running || wait <= 0 {
		return !running
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-finished:
		return true
	case <-timer.C:
		return false
	}
}

// PrepareForResume rebinds a task that has not run to completion to b. A
// suspended task continues at its restart key.
func (t *ScanTask) PrepareForResume(b *Builder) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case scheduler.StatusCreated, scheduler.StatusResumable:
		t.status = scheduler.StatusResumable
	case scheduler.StatusSuspended:
		if t.restart != nil {
			t.seek = t.bound.WithStart(*t.restart, true)
		}
		t.status = scheduler.StatusResumable
	default:
		return fmt.Errorf("%w: %s is %s", ErrNotResumable, t.name, t.status)
	}
	t.stop = make(chan struct{})
	t.stopped = false
	t.reason = nil
	t.started = make(chan struct{})
	t.builder.Store(b)
	return nil
}

// suspendNow checks the stop token and records k as restart key when set.
func (t *ScanTask) suspendNow(stop <-chan struct{}, k key.Key) bool {
	select {
	case <-stop:
	default:
		return false
	}
	t.mu.Lock()
	t.restart = &k
	t.status = scheduler.StatusSuspended
	t.mu.Unlock()
	return true
}

func (t *ScanTask) Run() (err error) {
	t.mu.Lock()
	t.status = scheduler.StatusRunning
	t.running = true
	t.startedAt = time.Now()
	select {
	case <-t.started:
	default:
		close(t.started)
	}
	t.finished = make(chan struct{})
	finished, stop, seek := t.finished, t.stop, t.seek
	resumed := t.restart != nil
	if resumed {
		t.restarts++
	}
	t.mu.Unlock()

	b := t.builder.Load()
	log := b.logger.WithTask(t.name, t.bound.Hash())
	if resumed {
		log.Info("resumed scan task", "at", seek.Start.String())
	} else {
		log.Info("started scan task", "range", t.bound.String())
	}

	defer func() {
		r := recover()
		t.mu.Lock()
		if r != nil {
			t.status = scheduler.StatusFailed
		}
		t.running = false
		t.mu.Unlock()
		close(finished)
		if r != nil {
			panic(r)
		}
	}()

	last, scanErr := t.scan(b.deps.Sources, stop, seek)

	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := time.Since(t.startedAt)
	switch {
	case t.status == scheduler.StatusSuspended:
		log.Info("suspended scan task", "at", t.restart.String(), "restarts", t.restarts, "elapsed", elapsed)
		return t.reason
	case scanErr == nil:
		t.status = scheduler.StatusCompleted
		log.Info("completed scan task", "matched", t.matched.Load(), "scanned", t.scanned.Load(), "elapsed", elapsed)
		return nil
	case t.stopped && last != nil && !errors.Is(scanErr, ErrMaxResultsExceeded) && !errors.Is(scanErr, ErrCancelled):
		// A stop was requested while the scan failed; keep the task reusable.
		t.restart = last
		t.status = scheduler.StatusSuspended
		log.Warn("suspended scan task after error", "at", last.String(), "error", scanErr)
		return t.reason
	default:
		t.status = scheduler.StatusFailed
		log.Error("failed scan task", "error", scanErr)
		return scanErr
	}
}

// scan runs the scan loop. It returns the last key seen, which is where a
// stopped task resumes after an error.
func (t *ScanTask) scan(pool *source.Pool, stop <-chan struct{}, seek key.Range) (*key.Key, error) {
	borrowCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-borrowCtx.Done():
		}
	}()

	h, err := pool.Borrow(borrowCtx)
	if err != nil {
		start := seek.Start
		return &start, fmt.Errorf("ivarator: borrow source: %w", err)
	}
	defer func() {
		if err := pool.Return(h); err != nil {
			t.builder.Load().logger.Warn("return source", "task", t.name, "error", err)
		}
	}()

	ctx := context.Background()
	if err := h.Seek(ctx, seek); err != nil {
		return nil, err
	}

	var skip *compositeSkip
	if b := t.builder.Load(); b.cfg.CompositeSeeker != nil {
		skip = &compositeSkip{seeker: b.cfg.CompositeSeeker, bound: t.bound, threshold: b.cfg.CompositeSeekThreshold}
	}

	var last *key.Key
	for h.HasTop() {
		top := h.Key()
		last = &top
		if t.suspendNow(stop, top) {
			return last, nil
		}
		b := t.builder.Load()
		b.checkTiming()

		if skip != nil && !skip.seeker.InBounds(top, t.bound) {
			if target, ok := skip.step(top); ok {
				err = h.Seek(ctx, t.bound.WithStart(target, t.bound.StartInclusive))
			} else {
				err = h.Next(ctx)
			}
			if err != nil {
				return last, err
			}
			t.scanned.Add(1)
			continue
		}

		if b.cancelled() {
			return last, ErrCancelled
		}
		t.scanned.Add(1)

		if ek, ok := b.match(top); ok {
			if !t.state.total.Increment() {
				return last, ErrMaxResultsExceeded
			}
			if b.cancelled() {
				return last, ErrCancelled
			}
			if _, err := t.state.cache.Add(ctx, ek); err != nil {
				return last, err
			}
			t.matched.Add(1)
		}
		if err := h.Next(ctx); err != nil {
			return last, err
		}
	}
	return last, nil
}
