package sortedcache

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/ivarator/blobstore"
	"github.com/hupe1980/ivarator/key"
	"golang.org/x/sync/errgroup"
)

type segmentRef struct {
	dir  int
	name string
	seq  uint64
}

// Stats describes the state of a Cache.
type Stats struct {
	Buffered     int
	Segments     int
	Flushes      int
	Compactions  int
	KeysWritten  int64
	BytesWritten int64
}

// Cache is a sorted, duplicate-free set of keys for one row, buffered in
// memory and persisted as segments across one or more dirs.
//
// Cache is safe for concurrent use.
type Cache struct {
	dirs   []Dir
	row    string
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	buffer    map[string]struct{}
	segments  []segmentRef
	seq       uint64
	writeDir  int
	persisted bool
	stats     Stats
}

// Open opens the cache of row over dirs. Segments already present in any
// dir are picked up, so a cache persisted by an earlier owner can be read
// back; callers decide through Control whether that content is trusted.
func Open(ctx context.Context, dirs []Dir, row string, opts ...Option) (*Cache, error) {
	if len(dirs) == 0 {
		return nil, ErrNoDirs
	}
	o := buildOptions(opts)
	c := &Cache{
		dirs:   slices.Clone(dirs),
		row:    row,
		opts:   o,
		logger: o.Logger.With("row", row),
		buffer: make(map[string]struct{}),
	}

	for i, d := range c.dirs {
		if err := prepareDir(ctx, d, row); err != nil {
			if i == 0 {
				return nil, fmt.Errorf("sortedcache: prepare control dir %s: %w", d, err)
			}
			c.logger.Warn("cache dir unavailable", "dir", d.String(), "error", err)
		}
	}

	segs, err := c.listSegments(ctx)
	if err != nil {
		return nil, err
	}
	c.segments = segs
	for _, s := range segs {
		c.seq = max(c.seq, s.seq+1)
	}
	c.persisted = len(segs) > 0
	c.stats.Segments = len(segs)
	return c, nil
}

// listSegments lists the segments of the row in every dir concurrently.
func (c *Cache) listSegments(ctx context.Context) ([]segmentRef, error) {
	found := make([][]segmentRef, len(c.dirs))
	g, ctx := errgroup.WithContext(ctx)
	for i, d := range c.dirs {
		g.Go(func() error {
			prefix := d.RowPrefix(c.row)
			names, err := d.Store.List(ctx, prefix+segmentPrefix)
			if err != nil {
				return fmt.Errorf("sortedcache: list %s: %w", d, err)
			}
			for _, name := range names {
				if seq, ok := parseSegmentSeq(prefix, name); ok {
					found[i] = append(found[i], segmentRef{dir: i, name: name, seq: seq})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var segs []segmentRef
	for _, f := range found {
		segs = append(segs, f...)
	}
	slices.SortFunc(segs, func(a, b segmentRef) int {
		if c := cmp.Compare(a.seq, b.seq); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	return segs, nil
}

// Row returns the row this cache holds.
func (c *Cache) Row() string { return c.row }

// Dirs returns the cache dirs; the first is the control dir.
func (c *Cache) Dirs() []Dir { return slices.Clone(c.dirs) }

// Add inserts k. It reports whether k was new to the in-memory buffer;
// a key already flushed to a segment is deduplicated at read time.
func (c *Cache) Add(ctx context.Context, k key.Key) (bool, error) {
	enc := string(key.Encode(k))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.buffer[enc]; ok {
		return false, nil
	}
	c.buffer[enc] = struct{}{}
	c.persisted = false
	if len(c.buffer) >= c.opts.BufferThreshold {
		if err := c.flushLocked(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Flush writes the buffer to a new segment.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

// Persist flushes the buffer and marks the cache persisted.
func (c *Cache) Persist(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(ctx); err != nil {
		return err
	}
	c.persisted = true
	return nil
}

// IsPersisted reports whether every key is on durable storage.
func (c *Cache) IsPersisted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persisted && len(c.buffer) == 0
}

// Stats returns a snapshot of the cache state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Buffered = len(c.buffer)
	s.Segments = len(c.segments)
	return s
}

func (c *Cache) sortedBuffer() [][]byte {
	keys := make([][]byte, 0, len(c.buffer))
	for k := range c.buffer {
		keys = append(keys, []byte(k))
	}
	slices.SortFunc(keys, bytes.Compare)
	return keys
}

func (c *Cache) flushLocked(ctx context.Context) error {
	if len(c.buffer) == 0 {
		return nil
	}
	keys := c.sortedBuffer()
	start := time.Now()

	ref, written, err := c.writeSegment(ctx, func(context.Context) ([]cursor, error) {
		return []cursor{newMemCursor(keys)}, nil
	})
	c.opts.Metrics.RecordSegmentFlush(len(keys), written, time.Since(start), err)
	if err != nil {
		return err
	}

	c.segments = append(c.segments, ref)
	c.buffer = make(map[string]struct{})
	c.stats.Flushes++
	c.stats.KeysWritten += int64(len(keys))
	c.stats.BytesWritten += written
	c.logger.Debug("flushed segment", "name", ref.name, "keys", len(keys), "bytes", written)

	return c.compactLocked(ctx)
}

// writeSegment writes the merge of the cursors returned by open to a new
// segment. Each dir is tried NumRetries+1 times, starting with the dir
// that last succeeded; a missing dir is skipped immediately.
func (c *Cache) writeSegment(ctx context.Context, open func(context.Context) ([]cursor, error)) (segmentRef, int64, error) {
	seq := c.seq
	c.seq++

	var errs []error
	attempts := 0
	for i := range c.dirs {
		idx := (c.writeDir + i) % len(c.dirs)
		d := c.dirs[idx]
		name := segmentName(d.RowPrefix(c.row), seq)

		for try := 0; try <= c.opts.NumRetries; try++ {
			if err := ctx.Err(); err != nil {
				return segmentRef{}, 0, err
			}
			attempts++
			written, err := c.writeSegmentTo(ctx, d.Store, name, open)
			if err == nil {
				c.writeDir = idx
				return segmentRef{dir: idx, name: name, seq: seq}, written, nil
			}
			errs = append(errs, err)
			c.logger.Warn("segment write failed", "dir", d.String(), "name", name, "attempt", try+1, "error", err)
			if errors.Is(err, blobstore.ErrNotFound) {
				break
			}
		}
	}
	return segmentRef{}, 0, &WriteError{Name: c.row, Attempts: attempts, Err: errors.Join(errs...)}
}

type countingWriter struct {
	w blobstore.WritableBlob
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (c *Cache) writeSegmentTo(ctx context.Context, store blobstore.Store, name string, open func(context.Context) ([]cursor, error)) (int64, error) {
	cursors, err := open(ctx)
	if err != nil {
		return 0, err
	}
	it, err := newIterator(cursors, nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	wb, err := store.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: wb}
	bw := bufio.NewWriterSize(cw, 64*1024)

	err = func() error {
		sw, err := newSegmentWriter(bw, c.opts.Compression, c.opts.BlockSize)
		if err != nil {
			return err
		}
		for it.Valid() {
			if err := sw.add(it.enc); err != nil {
				return err
			}
			if err := it.Next(); err != nil {
				return err
			}
		}
		if err := sw.finish(); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return wb.Sync()
	}()
	if err != nil {
		_ = wb.Abort()
		return 0, err
	}
	if err := wb.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// compactLocked merges the oldest segments until at most MaxOpenFiles-1
// remain, leaving room for the buffer in a full merge.
func (c *Cache) compactLocked(ctx context.Context) error {
	limit := c.opts.MaxOpenFiles - 1
	for len(c.segments) > limit {
		n := min(len(c.segments)-limit+1, c.opts.MaxOpenFiles)
		inputs := slices.Clone(c.segments[:n])
		start := time.Now()

		ref, _, err := c.writeSegment(ctx, func(ctx context.Context) ([]cursor, error) {
			return c.openSegments(ctx, inputs)
		})
		c.opts.Metrics.RecordCompaction(len(inputs), time.Since(start), err)
		if err != nil {
			return fmt.Errorf("sortedcache: compact %d segments: %w", len(inputs), err)
		}

		c.segments = append([]segmentRef{ref}, c.segments[n:]...)
		c.stats.Compactions++
		for _, in := range inputs {
			if err := c.dirs[in.dir].Store.Delete(ctx, in.name); err != nil {
				c.logger.Warn("failed to delete compacted segment", "name", in.name, "error", err)
			}
		}
		c.logger.Debug("compacted segments", "inputs", len(inputs), "into", ref.name)
	}
	return nil
}

func (c *Cache) openSegments(ctx context.Context, refs []segmentRef) ([]cursor, error) {
	cursors := make([]cursor, 0, len(refs)+1)
	for _, ref := range refs {
		r, err := openSegment(ctx, c.dirs[ref.dir].Store, ref.name)
		if err != nil {
			for _, cur := range cursors {
				_ = cur.close()
			}
			return nil, err
		}
		cursors = append(cursors, r)
	}
	return cursors, nil
}

// Iterator returns an iterator over every key in ascending order.
func (c *Cache) Iterator(ctx context.Context) (*Iterator, error) {
	return c.tail(ctx, nil)
}

// Tail returns an iterator over the keys at or after start; with
// inclusive false, start itself is skipped.
func (c *Cache) Tail(ctx context.Context, start key.Key, inclusive bool) (*Iterator, error) {
	lower := key.Encode(start)
	if !inclusive {
		lower = append(lower, 0x00)
	}
	return c.tail(ctx, lower)
}

func (c *Cache) tail(ctx context.Context, lower []byte) (*Iterator, error) {
	c.mu.Lock()
	buffered := c.sortedBuffer()
	refs := slices.Clone(c.segments)
	c.mu.Unlock()

	cursors, err := c.openSegments(ctx, refs)
	if err != nil {
		return nil, err
	}
	if len(buffered) > 0 {
		cursors = append(cursors, newMemCursor(buffered))
	}
	return newIterator(cursors, lower)
}

// Clear drops the buffer and deletes the row's segments from every dir.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = make(map[string]struct{})
	c.persisted = false

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range c.dirs {
		g.Go(func() error {
			return blobstore.DeletePrefix(gctx, d.Store, d.RowPrefix(c.row)+segmentPrefix)
		})
	}
	if err := g.Wait(); err != nil {
		// Keep the refs that may still exist so a later Clear retries them.
		return fmt.Errorf("sortedcache: clear %q: %w", c.row, err)
	}
	c.segments = nil
	return nil
}
