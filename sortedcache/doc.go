// Package sortedcache implements a per-row sorted key set persisted to one
// or more blob stores.
//
// Keys are buffered in memory and flushed as immutable, block-compressed
// segment blobs once the buffer reaches a threshold. Iteration merges the
// buffer and every segment into one ascending, duplicate-free stream. When
// the number of segments exceeds the configured fan-in, the oldest segments
// are compacted into one.
//
// # Layout
//
// For a Dir{Store, Prefix} and row r the cache writes:
//
//	{prefix}/{escaped r}/seg-{seq}-{id}.ivs   segment blobs
//	{prefix}/{escaped r}/ownership            owner id (control dir only)
//	{prefix}/{escaped r}/complete             completion marker (control dir only)
//
// The first Dir passed to Open is the control dir; Control manages its
// markers. Segment writes fall back to later dirs when a dir fails.
//
// # Segment format
//
//	header: "IVSC" | version u8 | compression u8 | reserved u16
//	block:  rawLen u32 | storedLen u32 | xxhash64(raw) u64 | payload
//	footer: keyCount u64 | blockCount u32 | "IVSE"
//
// A block payload is a sequence of uvarint-length-prefixed encoded keys
// (see key.Encode). storedLen 0 means the payload is stored uncompressed.
package sortedcache
