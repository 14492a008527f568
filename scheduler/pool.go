package scheduler

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// pool pairs a resizable ants pool with an unbounded FIFO of pending
// futures. A single dispatcher feeds the pool, blocking while all workers
// are busy, so pending futures stay cancellable until a worker is free.
type pool struct {
	name   string
	ants   *ants.Pool
	logger *slog.Logger

	mu      sync.Mutex
	pending []*Future
	notify  chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newPool(name string, size int, logger *slog.Logger) (*pool, error) {
	p := &pool{
		name:   name,
		logger: logger.With("pool", name),
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	ap, err := ants.NewPool(max(size, 1), ants.WithPanicHandler(func(v any) {
		p.logger.Error("worker panic", "value", v)
	}))
	if err != nil {
		return nil, err
	}
	p.ants = ap

	p.wg.Add(1)
	go p.dispatch()
	return p, nil
}

func (p *pool) enqueue(f *Future) {
	p.mu.Lock()
	p.pending = append(p.pending, f)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *pool) next() (*Future, bool) {
	for {
		p.mu.Lock()
		if len(p.pending) > 0 {
			f := p.pending[0]
			p.pending[0] = nil
			p.pending = p.pending[1:]
			p.mu.Unlock()
			return f, true
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-p.stopCh:
			return nil, false
		}
	}
}

func (p *pool) dispatch() {
	defer p.wg.Done()
	for {
		f, ok := p.next()
		if !ok {
			return
		}
		if f.state.Load() != stateQueued {
			continue
		}
		if err := p.ants.Submit(f.run); err != nil {
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrClosed
			}
			f.cancelIfQueued(err)
		}
	}
}

// waiting returns the number of futures not yet handed to a worker.
func (p *pool) waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.pending {
		if f.state.Load() == stateQueued {
			n++
		}
	}
	return n + p.ants.Waiting()
}

// resize changes the worker count. ants tunes capacity in one step, so
// growing and shrinking need no ordering between a floor and a ceiling.
func (p *pool) resize(size int) bool {
	if size <= 0 || size == p.ants.Cap() {
		return false
	}
	p.ants.Tune(size)
	return true
}

// close stops dispatching and fails every pending future with err.
func (p *pool) close(err error) {
	close(p.stopCh)
	p.ants.Release()
	p.wg.Wait()

	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, f := range pending {
		f.cancelIfQueued(err)
	}
}
