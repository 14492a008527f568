package ivarator

import "github.com/hupe1980/ivarator/key"

// CompositeSeeker skips over index entries of composite fields that cannot
// match. Composite values join several component values with a separator,
// so a bounded range over the composite may contain long runs of entries
// whose later components fall outside the bounds.
type CompositeSeeker interface {
	// InBounds reports whether k can match within bound.
	InBounds(k key.Key, bound key.Range) bool
	// NextSeekKey returns the next key after k that can match within bound.
	NextSeekKey(k key.Key, bound key.Range) (key.Key, bool)
}

// compositeSkip tracks the incremental advance of one task. After
// threshold consecutive out-of-bounds entries below the pending seek key
// the task re-seeks instead of stepping.
type compositeSkip struct {
	seeker    CompositeSeeker
	bound     key.Range
	threshold int

	next    key.Key
	hasNext bool
	count   int
}

// step decides what to do with an out-of-bounds key: it returns the key
// to seek to, or false to advance by one.
func (c *compositeSkip) step(top key.Key) (key.Key, bool) {
	seek := false
	if c.hasNext && top.Less(c.next) {
		seek = c.count >= c.threshold
	} else {
		c.count = 0
		c.hasNext = false
		if k, ok := c.seeker.NextSeekKey(top, c.bound); ok && top.Less(k) && c.ahead(k) {
			c.next, c.hasNext = k, true
			seek = c.count >= c.threshold
		}
	}
	if seek {
		target := c.next
		c.hasNext = false
		c.count = 0
		return target, true
	}
	c.count++
	return key.Key{}, false
}

// ahead reports whether k lies after the bound's start and not past its end.
func (c *compositeSkip) ahead(k key.Key) bool {
	if !c.bound.StartUnbounded && key.Compare(k, c.bound.Start) <= 0 {
		return false
	}
	return c.bound.EndUnbounded || key.Compare(k, c.bound.End) <= 0
}
