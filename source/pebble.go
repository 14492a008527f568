package source

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/hupe1980/ivarator/key"
)

// PebbleSource reads keys stored with key.Encode from a pebble reader.
type PebbleSource struct {
	reader pebble.Reader
	iter   *pebble.Iterator
	top    key.Key
	valid  bool
}

// NewPebbleSource returns an unpositioned source over reader.
func NewPebbleSource(reader pebble.Reader) *PebbleSource {
	return &PebbleSource{reader: reader}
}

func (s *PebbleSource) Seek(ctx context.Context, r key.Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.closeIter(); err != nil {
		return err
	}

	lower, upper := key.EncodedBound(r)
	iter, err := s.reader.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return fmt.Errorf("source: pebble iterator: %w", err)
	}
	s.iter = iter
	s.iter.First()
	return s.load()
}

func (s *PebbleSource) HasTop() bool { return s.valid }

func (s *PebbleSource) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.valid {
		return nil
	}
	s.iter.Next()
	return s.load()
}

func (s *PebbleSource) Key() key.Key { return s.top }

func (s *PebbleSource) Value() []byte {
	v := s.iter.Value()
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Copy returns an unpositioned source over the same reader.
func (s *PebbleSource) Copy() (Source, error) {
	return NewPebbleSource(s.reader), nil
}

// Close releases the underlying iterator.
func (s *PebbleSource) Close() error {
	return s.closeIter()
}

func (s *PebbleSource) load() error {
	s.valid = s.iter.Valid()
	if !s.valid {
		return s.iter.Error()
	}
	k, err := key.Decode(s.iter.Key())
	if err != nil {
		s.valid = false
		return err
	}
	s.top = k
	return nil
}

func (s *PebbleSource) closeIter() error {
	if s.iter == nil {
		return nil
	}
	err := s.iter.Close()
	s.iter = nil
	s.valid = false
	return err
}

// Load writes entries into db in a single synced batch.
func Load(db *pebble.DB, entries []Entry) error {
	b := db.NewBatch()
	defer b.Close()
	for _, e := range entries {
		if err := b.Set(key.Encode(e.Key), e.Value, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}
