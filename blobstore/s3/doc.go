// Package s3 provides Amazon S3 and DynamoDB implementations of blobstore.Store.
//
// # Usage
//
//	store, err := s3.NewStoreFromEnv(ctx, "my-bucket", "ivarator/")
//	markers := s3.NewDDBMarkerStore(dynamodb.NewFromConfig(cfg), "ivarator-markers", "ivarator")
//
// A cache keeps its ownership and completion markers in the first (control)
// directory, so a typical layout puts markers in DynamoDB and segments in S3:
//
//	dirs := []sortedcache.Dir{
//	    {Store: markers, Prefix: queryID},
//	    {Store: store, Prefix: queryID},
//	}
//
// # Features
//
//   - Range reads for streaming segment merges
//   - Multipart uploads for large segments
//   - Automatic pagination for listing
//   - Strongly consistent marker reads through DynamoDB
package s3
