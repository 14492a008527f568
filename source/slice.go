package source

import (
	"context"
	"slices"
	"sort"

	"github.com/hupe1980/ivarator/key"
)

// SliceSource serves an immutable sorted slice of entries.
type SliceSource struct {
	entries []Entry
	rng     key.Range
	pos     int
}

// NewSliceSource sorts a copy of entries and returns a source over it.
// Duplicate keys keep their last value.
func NewSliceSource(entries []Entry) *SliceSource {
	sorted := slices.Clone(entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key.Less(sorted[j].Key) })
	deduped := sorted[:0]
	for _, e := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Key.Equal(e.Key) {
			deduped[n-1] = e
			continue
		}
		deduped = append(deduped, e)
	}
	return &SliceSource{entries: deduped, pos: len(deduped)}
}

func (s *SliceSource) Seek(ctx context.Context, r key.Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rng = r
	s.pos = sort.Search(len(s.entries), func(i int) bool { return !r.BeforeStartKey(s.entries[i].Key) })
	s.clamp()
	return nil
}

func (s *SliceSource) HasTop() bool { return s.pos < len(s.entries) }

func (s *SliceSource) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.pos < len(s.entries) {
		s.pos++
		s.clamp()
	}
	return nil
}

func (s *SliceSource) Key() key.Key { return s.entries[s.pos].Key }

func (s *SliceSource) Value() []byte { return s.entries[s.pos].Value }

// Copy returns an unpositioned source sharing the immutable entries.
func (s *SliceSource) Copy() (Source, error) {
	return &SliceSource{entries: s.entries, pos: len(s.entries)}, nil
}

// Len returns the number of entries.
func (s *SliceSource) Len() int { return len(s.entries) }

func (s *SliceSource) clamp() {
	if s.pos < len(s.entries) && s.rng.AfterEndKey(s.entries[s.pos].Key) {
		s.pos = len(s.entries)
	}
}
