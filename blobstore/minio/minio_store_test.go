package minio

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/ivarator/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	bucket := "test-ivarator"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, fmt.Sprintf("run-%d/", time.Now().UnixNano()))

	ok, err := store.Exists(ctx, "q1/row1/complete")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "q1/row1/ownership", []byte("host://a")))
	got, err := blobstore.ReadAll(ctx, store, "q1/row1/ownership")
	require.NoError(t, err)
	assert.Equal(t, "host://a", string(got))

	wb, err := store.Create(ctx, "q1/row1/seg-000001")
	require.NoError(t, err)
	_, err = wb.Write([]byte("streamed segment"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	blob, err := store.Open(ctx, "q1/row1/seg-000001")
	require.NoError(t, err)
	buf := make([]byte, 7)
	_, err = blob.ReadAt(ctx, buf, 9)
	require.NoError(t, err)
	assert.Equal(t, "segment", string(buf))
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "q1/row1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1/row1/ownership", "q1/row1/seg-000001"}, names)

	require.NoError(t, blobstore.DeletePrefix(ctx, store, "q1/"))
	_, err = store.Open(ctx, "q1/row1/ownership")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
