package s3

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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/ivarator/blobstore"
)

// maxDeleteBatch is the object limit of one DeleteObjects request.
const maxDeleteBatch = 1000

// Client is the subset of the S3 API used by Store.
type Client interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Store keeps cache dirs in an S3 bucket. Segments are streamed with
// multipart uploads; markers are written with single PutObject calls.
type Store struct {
	client      Client
	bucket      string
	root        string
	partSize    int64
	concurrency int
}

var (
	_ blobstore.Store       = (*Store)(nil)
	_ blobstore.BulkDeleter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithPartSize sets the multipart chunk size of segment uploads.
func WithPartSize(n int64) Option {
	return func(s *Store) { s.partSize = n }
}

// WithUploadConcurrency sets how many parts of one segment upload in parallel.
func WithUploadConcurrency(n int) Option {
	return func(s *Store) { s.concurrency = n }
}

// NewStore returns a store rooted at root (e.g. "ivarator/") in bucket.
func NewStore(client Client, bucket, root string, opts ...Option) *Store {
	s := &Store{
		client:      client,
		bucket:      bucket,
		root:        root,
		partSize:    manager.DefaultUploadPartSize,
		concurrency: manager.DefaultUploadConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromEnv loads the default AWS configuration (environment, shared
// config, instance role) and returns a store for bucket.
func NewStoreFromEnv(ctx context.Context, bucket, root string, optFns ...func(*config.LoadOptions) error) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, root), nil
}

func (s *Store) object(name string) string {
	return path.Join(s.root, name)
}

func notFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// head returns the size of name, or false when it does not exist.
func (s *Store) head(ctx context.Context, name string) (int64, bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.object(name)),
	})
	switch {
	case err == nil:
		return aws.ToInt64(out.ContentLength), true, nil
	case notFound(err):
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("s3: head %s: %w", name, err)
}

// Open opens a segment or marker for ranged reads.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	size, ok, err := s.head(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return &s3Blob{client: s.client, bucket: s.bucket, key: s.object(name), size: size}, nil
}

// Exists reports whether name is present.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.head(ctx, name)
	return ok, err
}

// Put replaces name with data in a single request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.object(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

// Create streams a new object through the upload manager. It becomes
// visible on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = s.partSize
		u.Concurrency = s.concurrency
	})
	w := &s3WritableBlob{pw: pw, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		_, w.err = uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.object(name)),
			Body:   pr,
		})
		_ = pr.CloseWithError(w.err)
	}()
	return w, nil
}

// Delete removes name. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.object(name)),
	})
	if err != nil && !notFound(err) {
		return err
	}
	return nil
}

// DeleteAll removes names in batches of DeleteObjects requests.
func (s *Store) DeleteAll(ctx context.Context, names []string) error {
	var errs []error
	for batch := range slices.Chunk(names, maxDeleteBatch) {
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, name := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(s.object(name))}
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3: delete objects: %w", err)
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("s3: delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
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
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if name := strings.TrimPrefix(strings.TrimPrefix(aws.ToString(obj.Key), s.root), "/"); name != "" {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

// s3Blob is an open object. Every read is a ranged GET.
type s3Blob struct {
	client Client
	bucket string
	key    string
	size   int64
}

func (b *s3Blob) Close() error { return nil }

func (b *s3Blob) Size() int64 { return b.size }

func (b *s3Blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}
	rc, err := b.ReadRange(ctx, off, int64(len(p)))
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

func (b *s3Blob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= b.size || length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, min(off+length, b.size)-1)),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// s3WritableBlob feeds a multipart upload through a pipe.
type s3WritableBlob struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	once sync.Once
}

func (b *s3WritableBlob) Write(p []byte) (int, error) { return b.pw.Write(p) }

// Sync is a no-op; the object is finalized by Close.
func (b *s3WritableBlob) Sync() error { return nil }

func (b *s3WritableBlob) Close() error {
	var err error
	b.once.Do(func() {
		_ = b.pw.Close()
		<-b.done
		b.cancel()
		err = b.err
	})
	return err
}

// Abort cancels the upload; the manager aborts any multipart upload.
func (b *s3WritableBlob) Abort() error {
	b.once.Do(func() {
		b.cancel()
		_ = b.pw.CloseWithError(context.Canceled)
		<-b.done
	})
	return nil
}
