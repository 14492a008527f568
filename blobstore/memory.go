package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps blobs in process memory. It backs tests and
// single-process deployments where cache dirs need not survive a restart.
type MemoryStore struct {
	blobs *xsync.MapOf[string, []byte]
}

var (
	_ Store       = (*MemoryStore)(nil)
	_ Appender    = (*MemoryStore)(nil)
	_ BulkDeleter = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: xsync.NewMapOf[string, []byte]()}
}

// Open returns a read handle on the current content of name.
func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	data, ok := m.blobs.Load(name)
	if !ok {
		return nil, ErrNotFound
	}
	// Stored slices are never mutated; writers swap in new ones.
	return bytesBlob(data), nil
}

// Create buffers a blob until Close.
func (m *MemoryStore) Create(_ context.Context, name string) (WritableBlob, error) {
	return &memoryWriter{store: m, name: name}, nil
}

func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.blobs.Store(name, bytes.Clone(data))
	return nil
}

// Append adds data to name, creating it if needed.
func (m *MemoryStore) Append(_ context.Context, name string, data []byte) error {
	m.blobs.Compute(name, func(prev []byte, _ bool) ([]byte, bool) {
		return append(slices.Clip(prev), data...), false
	})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.blobs.Delete(name)
	return nil
}

func (m *MemoryStore) DeleteAll(_ context.Context, names []string) error {
	for _, name := range names {
		m.blobs.Delete(name)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	m.blobs.Range(func(name string, _ []byte) bool {
		if HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	slices.Sort(names)
	return names, nil
}

func (m *MemoryStore) Exists(_ context.Context, name string) (bool, error) {
	_, ok := m.blobs.Load(name)
	return ok, nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int { return m.blobs.Size() }

// bytesBlob serves reads from a byte slice.
type bytesBlob []byte

func (b bytesBlob) Size() int64  { return int64(len(b)) }
func (b bytesBlob) Close() error { return nil }

func (b bytesBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	return readAtBytes(b, p, off)
}

func (b bytesBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= int64(len(b)) || length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return io.NopCloser(bytes.NewReader(b[off:min(off+length, int64(len(b)))])), nil
}

func readAtBytes(data, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

var errWriterDone = errors.New("blobstore: write after close")

// memoryWriter publishes its buffer on Close.
type memoryWriter struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
	done  atomic.Bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.done.Load() {
		return 0, errWriterDone
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Sync() error { return nil }

func (w *memoryWriter) Close() error {
	if w.done.CompareAndSwap(false, true) {
		w.store.blobs.Store(w.name, bytes.Clone(w.buf.Bytes()))
	}
	return nil
}

func (w *memoryWriter) Abort() error {
	if w.done.CompareAndSwap(false, true) {
		w.buf.Reset()
	}
	return nil
}
