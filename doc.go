// Package ivarator evaluates field index predicates over a sorted key/value
// store and serves the matching documents in key order.
//
// A field index entry has the form
//
//	row : fi\x00FIELD : value\x00datatype\x00uid
//
// and is turned into the document key row : datatype\x00uid (or the event
// key row : datatype\x00uid : FIELD\x00value) when its value matches.
//
// # Quick Start
//
//	sched, _ := scheduler.New(config.NewStatic(config.Defaults()))
//	defer sched.Close()
//
//	pool := source.NewPool(8, source.CopyFactory(source.NewPebbleSource(db)))
//	dirs := []sortedcache.Dir{{Store: blobstore.NewMemoryStore(), Prefix: "q1"}}
//
//	cfg := ivarator.DefaultConfig()
//	cfg.QueryID = "q1"
//	cfg.Field = "COLOR"
//	cfg.Splitter, _ = ivarator.NewRegexSplitter("re.*", 4)
//
//	b, _ := ivarator.NewBuilder(cfg, ivarator.Deps{Scheduler: sched, Sources: pool, Dirs: dirs},
//	    ivarator.WithWaitWindow(5*time.Second))
//	defer b.Close()
//
//	err := b.Seek(ctx, key.All())
//	for err == nil && b.HasTop() {
//	    fmt.Println(b.Key())
//	    err = b.Next(ctx)
//	}
//
// # Row scans
//
// For every row the predicate is split into bounding ranges. Each range is
// scanned by a ScanTask on the scheduler's scan pool; the tasks write into a
// sorted cache (package sortedcache) which is persisted and marked complete
// once every task finished. A completed cache is reused by later scans of
// the same row unless Config.AllowDirReuse is false.
//
// # Wait windows
//
// With WithWaitWindow a call gives up waiting after the window and returns a
// *WaitWindowOverrunError:
//
//	var overrun *ivarator.WaitWindowOverrunError
//	if errors.As(err, &overrun) {
//	    err = b.Seek(ctx, overrun.Range)
//	}
//
// The tasks are suspended at their next key and stay registered with the
// scheduler, so the seek, on this Builder or on a new one created from the
// same Config, resumes them instead of starting over.
//
// # Unsorted mode
//
// With Config.Unsorted the index is streamed in place and event keys are
// returned in index order without building a cache.
package ivarator
