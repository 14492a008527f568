// Package source defines the range-scan cursor consumed and exposed by the
// ivarator, a bounded borrow/return pool of cursors, and two adapters: an
// in-memory [SliceSource] and a [PebbleSource] over a pebble database.
//
// Sources are not safe for concurrent use. Concurrent scanners each borrow
// their own copy from a [Pool]:
//
//	pool := source.NewPool(8, source.CopyFactory(source.NewPebbleSource(db)))
//	h, err := pool.Borrow(ctx)
//	if err != nil { ... }
//	defer pool.Return(h)
package source
