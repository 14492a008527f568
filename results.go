package ivarator

import "sync/atomic"

// TotalResults caps the number of matches across all tasks of one row
// scan. A max of zero or less means unlimited.
type TotalResults struct {
	max  int64
	size atomic.Int64
}

// NewTotalResults returns a counter allowing max results.
func NewTotalResults(max int64) *TotalResults {
	return &TotalResults{max: max}
}

// Increment counts one result and reports whether it is within the cap.
func (t *TotalResults) Increment() bool {
	return t.Add(1)
}

// Add counts n results and reports whether the total is within the cap.
func (t *TotalResults) Add(n int64) bool {
	if t.max <= 0 {
		return true
	}
	return t.size.Add(n) <= t.max
}

// Exceeded reports whether the cap has been passed.
func (t *TotalResults) Exceeded() bool {
	return t.max > 0 && t.size.Load() > t.max
}

// Size returns the number of results counted so far.
func (t *TotalResults) Size() int64 { return t.size.Load() }
