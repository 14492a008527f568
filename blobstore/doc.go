// Package blobstore provides the storage abstraction behind the persisted
// sorted cache.
//
// Store is the interface for reading and writing blobs (segments, markers).
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap reads, atomic rename-on-close
//     writes and in-place append
//   - MemoryStore: in-memory store for tests
//   - minio.Store: MinIO and S3-compatible storage
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.DDBMarkerStore: small marker blobs in DynamoDB
//
// # Optional capabilities
//
// Stores with real directories implement [DirMaker]; writing below a
// directory that does not exist fails with [ErrNotFound]. Stores that can
// append in place implement [Appender]; callers fall back to [Store.Put]
// otherwise.
package blobstore
