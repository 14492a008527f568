package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/ivarator/blobstore"
	"github.com/minio/minio-go/v7"
)

// Store keeps cache dirs in a MinIO or other S3-compatible bucket.
//
// Object storage has neither directories nor append, so marker writes fall
// back to overwriting with Put.
type Store struct {
	client *minio.Client
	bucket string
	root   string
	put    minio.PutObjectOptions
}

var (
	_ blobstore.Store       = (*Store)(nil)
	_ blobstore.BulkDeleter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithPartSize sets the multipart chunk size of streamed segment uploads.
func WithPartSize(n uint64) Option {
	return func(s *Store) { s.put.PartSize = n }
}

// WithStorageClass sets the storage class of written objects.
func WithStorageClass(class string) Option {
	return func(s *Store) { s.put.StorageClass = class }
}

// NewStore returns a store rooted at root (e.g. "ivarator/") in bucket.
func NewStore(client *minio.Client, bucket, root string, opts ...Option) *Store {
	s := &Store{client: client, bucket: bucket, root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) object(name string) string {
	return path.Join(s.root, name)
}

func notFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func (s *Store) stat(ctx context.Context, name string) (minio.ObjectInfo, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.object(name), minio.StatObjectOptions{})
	switch {
	case err == nil:
		return info, true, nil
	case notFound(err):
		return minio.ObjectInfo{}, false, nil
	}
	return minio.ObjectInfo{}, false, fmt.Errorf("minio: stat %s: %w", name, err)
}

// Open opens a segment or marker for ranged reads.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	info, ok, err := s.stat(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return &object{store: s, name: s.object(name), size: info.Size}, nil
}

// Exists reports whether name is present.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.stat(ctx, name)
	return ok, err
}

// Put replaces name with data in a single request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.object(name), bytes.NewReader(data), int64(len(data)), s.put)
	return err
}

// Create streams a new object. It becomes visible on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	w := &upload{pw: pw, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		_, w.err = s.client.PutObject(ctx, s.bucket, s.object(name), pr, -1, s.put)
		_ = pr.CloseWithError(w.err)
	}()
	return w, nil
}

// Delete removes name. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.object(name), minio.RemoveObjectOptions{})
	if err != nil && !notFound(err) {
		return err
	}
	return nil
}

// DeleteAll removes names with multi-object delete requests.
func (s *Store) DeleteAll(ctx context.Context, names []string) error {
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for _, name := range names {
			select {
			case objects <- minio.ObjectInfo{Key: s.object(name)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for res := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil && !notFound(res.Err) {
			errs = append(errs, fmt.Errorf("minio: delete %s: %w", res.ObjectName, res.Err))
		}
	}
	if len(errs) == 0 {
		return ctx.Err()
	}
	return errors.Join(errs...)
}

// List returns the sorted names under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.object(prefix)
	if strings.HasSuffix(prefix, "/") {
		full += "/"
	}

	var names []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: full, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		if name := strings.TrimPrefix(strings.TrimPrefix(info.Key, s.root), "/"); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// object is an open object. Every read is a ranged GET.
type object struct {
	store *Store
	name  string
	size  int64
}

func (o *object) Size() int64  { return o.size }
func (o *object) Close() error { return nil }

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= o.size {
		return 0, io.EOF
	}
	rc, err := o.ReadRange(ctx, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.ReadFull(rc, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= o.size || length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	var opts minio.GetObjectOptions
	if err := opts.SetRange(off, min(off+length, o.size)-1); err != nil {
		return nil, err
	}
	return o.store.client.GetObject(ctx, o.store.bucket, o.name, opts)
}

// upload feeds a streaming PutObject through a pipe.
type upload struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	once sync.Once
}

func (u *upload) Write(p []byte) (int, error) { return u.pw.Write(p) }

func (u *upload) Sync() error { return nil }

func (u *upload) Close() error {
	var err error
	u.once.Do(func() {
		_ = u.pw.Close()
		<-u.done
		u.cancel()
		err = u.err
	})
	return err
}

// Abort cancels the upload; nothing becomes visible.
func (u *upload) Abort() error {
	u.once.Do(func() {
		u.cancel()
		_ = u.pw.CloseWithError(context.Canceled)
		<-u.done
	})
	return nil
}
