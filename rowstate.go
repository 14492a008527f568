package ivarator

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/ivarator/sortedcache"
)

// rowState is the accumulator of one row scan. Tasks write into it and a
// rebuilt Builder adopts it to resume the scan.
type rowState struct {
	row    string
	cache  *sortedcache.Cache
	total  *TotalResults
	ranges int

	mu       sync.Mutex
	done     *roaring.Bitmap
	complete bool
}

func newRowState(row string, cache *sortedcache.Cache, total *TotalResults, ranges int) *rowState {
	return &rowState{row: row, cache: cache, total: total, ranges: ranges, done: roaring.New()}
}

// markDone records that the bounding range at index i was fully scanned.
func (s *rowState) markDone(i int) {
	s.mu.Lock()
	s.done.Add(uint32(i))
	s.mu.Unlock()
}

func (s *rowState) doneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.done.GetCardinality())
}

func (s *rowState) isComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

func (s *rowState) setComplete() {
	s.mu.Lock()
	s.complete = true
	s.mu.Unlock()
}
