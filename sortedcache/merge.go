package sortedcache

import (
	"bytes"
	"errors"

	"github.com/hupe1980/ivarator/key"
)

// cursor is an ascending stream of encoded keys.
type cursor interface {
	next() (bool, error)
	current() []byte
	close() error
}

// memCursor walks a sorted in-memory snapshot.
type memCursor struct {
	keys [][]byte
	pos  int
}

func newMemCursor(keys [][]byte) *memCursor {
	return &memCursor{keys: keys, pos: -1}
}

func (m *memCursor) next() (bool, error) {
	if m.pos < len(m.keys) {
		m.pos++
	}
	return m.pos < len(m.keys), nil
}

func (m *memCursor) current() []byte {
	if m.pos < 0 || m.pos >= len(m.keys) {
		return nil
	}
	return m.keys[m.pos]
}

func (m *memCursor) close() error { return nil }

// mergeHeap is a binary min-heap of cursors ordered by their current key.
type mergeHeap struct {
	items []cursor
}

func (h *mergeHeap) less(i, j int) bool {
	return bytes.Compare(h.items[i].current(), h.items[j].current()) < 0
}

func (h *mergeHeap) push(c cursor) {
	h.items = append(h.items, c)
	h.siftUp(len(h.items) - 1)
}

func (h *mergeHeap) pop() cursor {
	n := len(h.items)
	root := h.items[0]
	h.items[0] = h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return root
}

func (h *mergeHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.less(i, p) {
			return
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *mergeHeap) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && h.less(r, l) {
			best = r
		}
		if !h.less(best, i) {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}

// Iterator merges the buffer and segments of a cache into one ascending,
// duplicate-free key stream. It is not safe for concurrent use.
type Iterator struct {
	heap    mergeHeap
	all     []cursor
	enc     []byte
	key     key.Key
	valid   bool
	closed  bool
	err     error
	visited int64
}

// newIterator primes every cursor, skipping keys below lower, and
// positions the iterator on the first key.
func newIterator(cursors []cursor, lower []byte) (*Iterator, error) {
	it := &Iterator{all: cursors}
	for _, c := range cursors {
		for {
			ok, err := c.next()
			if err != nil {
				_ = it.Close()
				return nil, err
			}
			if !ok {
				break
			}
			if lower == nil || bytes.Compare(c.current(), lower) >= 0 {
				it.heap.push(c)
				break
			}
		}
	}
	if err := it.advance(); err != nil {
		_ = it.Close()
		return nil, err
	}
	return it, nil
}

// advance pops the smallest key and moves every cursor holding it.
func (it *Iterator) advance() error {
	if len(it.heap.items) == 0 {
		it.valid = false
		return nil
	}
	it.enc = append(it.enc[:0], it.heap.items[0].current()...)
	for len(it.heap.items) > 0 && bytes.Equal(it.heap.items[0].current(), it.enc) {
		c := it.heap.pop()
		ok, err := c.next()
		if err != nil {
			it.valid = false
			return err
		}
		if ok {
			it.heap.push(c)
		}
	}
	k, err := key.Decode(it.enc)
	if err != nil {
		it.valid = false
		return err
	}
	it.key = k
	it.valid = true
	it.visited++
	return nil
}

// Valid reports whether the iterator is positioned on a key.
func (it *Iterator) Valid() bool { return it.valid && it.err == nil }

// Key returns the current key.
func (it *Iterator) Key() key.Key { return it.key }

// Next moves to the following key.
func (it *Iterator) Next() error {
	if it.closed {
		return ErrClosed
	}
	if it.err != nil {
		return it.err
	}
	if !it.valid {
		return nil
	}
	if err := it.advance(); err != nil {
		it.err = err
		return err
	}
	return nil
}

// Visited returns how many distinct keys the iterator has produced.
func (it *Iterator) Visited() int64 { return it.visited }

// Close releases all segment readers.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.valid = false
	var errs []error
	for _, c := range it.all {
		if err := c.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
