package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrAlreadyReturned is returned when a handle is given back twice.
	ErrAlreadyReturned = errors.New("source: handle already returned")
	// ErrPoolClosed is returned when borrowing from a closed pool.
	ErrPoolClosed = errors.New("source: pool closed")
)

// Factory creates a new independent source.
type Factory func(ctx context.Context) (Source, error)

// CopyFactory returns a Factory that copies template.
func CopyFactory(template Copier) Factory {
	return func(context.Context) (Source, error) {
		return template.Copy()
	}
}

// Handle is a borrowed source. It must be returned to its pool exactly once.
type Handle struct {
	Source
	pool     *Pool
	returned atomic.Bool
}

// Pool hands out at most a fixed number of sources at a time.
type Pool struct {
	factory Factory
	sem     *semaphore.Weighted
	size    int

	mu     sync.Mutex
	idle   []Source
	closed bool

	borrowed atomic.Int64
}

// NewPool creates a pool of at most size concurrently borrowed sources.
func NewPool(size int, factory Factory) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		factory: factory,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
	}
}

// Borrow blocks until a source is available or ctx is done.
func (p *Pool) Borrow(ctx context.Context) (*Handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	var src Source
	if n := len(p.idle); n > 0 {
		src = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if src == nil {
		var err error
		if src, err = p.factory(ctx); err != nil {
			p.sem.Release(1)
			return nil, err
		}
	}

	p.borrowed.Add(1)
	return &Handle{Source: src, pool: p}, nil
}

// Return gives h back to its pool.
func (p *Pool) Return(h *Handle) error {
	if h == nil {
		return nil
	}
	if h.pool != p {
		return errors.New("source: handle belongs to another pool")
	}
	if !h.returned.CompareAndSwap(false, true) {
		return ErrAlreadyReturned
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		closeSource(h.Source)
	} else {
		p.idle = append(p.idle, h.Source)
		p.mu.Unlock()
	}

	p.borrowed.Add(-1)
	p.sem.Release(1)
	return nil
}

// Borrowed returns the number of handles currently out.
func (p *Pool) Borrowed() int { return int(p.borrowed.Load()) }

// Size returns the pool capacity.
func (p *Pool) Size() int { return p.size }

// Close releases idle sources. Outstanding handles are closed on return.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, s := range idle {
		errs = append(errs, closeSource(s))
	}
	return errors.Join(errs...)
}

func closeSource(s Source) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
