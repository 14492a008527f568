// Package minio provides a blobstore.Store implementation using the MinIO client.
//
// MinIO is an S3-compatible object storage system. The store works with any
// S3-compatible backend (Ceph, Garage, SeaweedFS) and is a good fit for
// sharing ivarator cache directories between scan servers.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "ivarator", "cache/")
//	dirs := []sortedcache.Dir{{Store: store, Prefix: queryID}}
//
// Object storage has no append, so completion and ownership markers are
// always written with Put.
package minio
