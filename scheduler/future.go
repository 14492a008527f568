package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	stateQueued int32 = iota
	stateStarted
	stateRemoved
)

// Future is the handle of a submitted task.
type Future struct {
	task      Task
	pool      string
	createdAt time.Time

	state      atomic.Int32
	lastAccess atomic.Int64

	once sync.Once
	done chan struct{}
	err  error
}

func newFuture(task Task, pool string, now time.Time) *Future {
	f := &Future{task: task, pool: pool, createdAt: now, done: make(chan struct{})}
	f.touch(now)
	return f
}

// Task returns the task behind the future.
func (f *Future) Task() Task { return f.task }

// Name returns the task identity.
func (f *Future) Name() string { return f.task.Name() }

// CreatedAt returns when the future was created.
func (f *Future) CreatedAt() time.Time { return f.createdAt }

// Started reports whether a worker picked the task up.
func (f *Future) Started() bool { return f.state.Load() == stateStarted }

// Done is closed when the task finished or will never run.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the task result. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task finished or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) touch(now time.Time) {
	f.lastAccess.Store(now.UnixNano())
}

func (f *Future) idleSince() time.Time {
	return time.Unix(0, f.lastAccess.Load())
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// cancelIfQueued keeps a queued task from ever starting.
func (f *Future) cancelIfQueued(err error) bool {
	if f.state.CompareAndSwap(stateQueued, stateRemoved) {
		f.complete(err)
		return true
	}
	return false
}

// run executes the task unless it was removed while queued.
func (f *Future) run() {
	if !f.state.CompareAndSwap(stateQueued, stateStarted) {
		return
	}
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: f.task.Name(), Value: r}
		}
		f.complete(err)
	}()
	err = f.task.Run()
}
