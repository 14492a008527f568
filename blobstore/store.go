package blobstore

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	//
	// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
	// The default maps to `os.ErrNotExist`.
	ErrNotFound = os.ErrNotExist

	// ErrAppendNotSupported is returned by stores that cannot append in place.
	ErrAppendNotSupported = errors.New("blobstore: append not supported")
)

// Store is an abstraction for reading and writing blobs addressed by
// slash-separated names.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a blob for streaming writes. The blob becomes visible
	// when the writer is closed; Abort discards it.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Exists reports whether a blob is present.
	Exists(ctx context.Context, name string) (bool, error)
}

// Appender is implemented by stores that can append to an existing blob.
type Appender interface {
	Append(ctx context.Context, name string, data []byte) error
}

// BulkDeleter is implemented by stores that delete many blobs per request.
type BulkDeleter interface {
	DeleteAll(ctx context.Context, names []string) error
}

// DirMaker is implemented by stores with real directories that must exist
// before blobs can be written beneath them.
type DirMaker interface {
	MkdirAll(ctx context.Context, prefix string) error
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over [off, off+length).
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	io.Closer
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.Writer
	io.Closer
	// Sync flushes buffered data where the backend supports it.
	Sync() error
	// Abort discards the blob. Calling Close after Abort is a no-op.
	Abort() error
}

// ReadAll reads a whole blob.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	size := b.Size()
	if size == 0 {
		return []byte{}, nil
	}
	rc, err := b.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// DeletePrefix removes every blob under prefix, in bulk where the store
// supports it and concurrently otherwise.
func DeletePrefix(ctx context.Context, s Store, prefix string) error {
	names, err := s.List(ctx, prefix)
	if err != nil || len(names) == 0 {
		return err
	}
	if bd, ok := s.(BulkDeleter); ok {
		return bd.DeleteAll(ctx, names)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		g.Go(func() error {
			return s.Delete(ctx, name)
		})
	}
	return g.Wait()
}

// HasPrefix reports whether name lies under prefix. A prefix ending in "/"
// matches like a directory.
func HasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}
