package source

import (
	"context"

	"github.com/hupe1980/ivarator/key"
)

// Source is a forward-only cursor over a sorted key/value store.
//
// After Seek the cursor is positioned at the first key inside the range, if
// any. HasTop reports whether Key and Value are valid. Next advances within
// the last seeked range.
type Source interface {
	Seek(ctx context.Context, r key.Range) error
	HasTop() bool
	Next(ctx context.Context) error
	Key() key.Key
	Value() []byte
}

// Copier is implemented by sources that can produce independent copies
// positioned nowhere. Copies must be safe to use concurrently with the
// original.
type Copier interface {
	Copy() (Source, error)
}

// Entry is a key/value pair.
type Entry struct {
	Key   key.Key
	Value []byte
}
