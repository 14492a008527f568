package ivarator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/ivarator/key"
	"github.com/hupe1980/ivarator/metrics"
	"github.com/hupe1980/ivarator/scheduler"
	"github.com/hupe1980/ivarator/sortedcache"
	"github.com/hupe1980/ivarator/source"
)

// keyIterator yields the keys of a finished row in order.
type keyIterator interface {
	Valid() bool
	Key() key.Key
	Next() error
	Close() error
}

// Builder is a source.Source over the document (or event) keys whose field
// index entries match a predicate. For every row it splits the predicate
// into bounding ranges, scans them in parallel on the scheduler's scan pool
// into a sorted cache and then serves the row from the cache.
//
// A Builder is used by a single goroutine. Its tasks outlive it: a call
// that runs out of the wait window returns a *WaitWindowOverrunError, and
// seeking again on any Builder built from the same Config picks up the
// suspended tasks.
type Builder struct {
	cfg     Config
	deps    Deps
	opts    options
	logger  *Logger
	metrics metrics.Collector
	ownerID string
	control *sortedcache.Control

	cancel    atomic.Pointer[cancellation]
	startTime atomic.Int64
	timedOut  atomic.Bool
	lastRange atomic.Pointer[key.Range]

	row      string
	hasRow   bool
	bounding []key.Range
	state    *rowState
	it       keyIterator
	pending  []key.Key
	fiSource *source.Handle

	top         key.Key
	hasTop      bool
	lastEmitted *key.Key
	yield       *key.Range
	deadline    time.Time
	scanned     int64
}

var (
	_ source.Source   = (*Builder)(nil)
	_ scheduler.Owner = (*Builder)(nil)
)

// NewBuilder creates a Builder for cfg.
func NewBuilder(cfg Config, deps Deps, optFns ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(cfg.Unsorted); err != nil {
		return nil, err
	}
	opts := applyOptions(optFns)

	b := &Builder{
		cfg:     cfg,
		deps:    deps,
		opts:    opts,
		logger:  opts.logger.WithQuery(cfg.QueryID, cfg.ScanID),
		metrics: opts.metricsCollector,
		ownerID: sortedcache.NewOwnerID(),
	}
	if len(deps.Dirs) > 0 {
		b.control = sortedcache.NewControl(deps.Dirs[0], b.cacheOptions()...)
	}
	b.cancel.Store(newCancellation(cfg.QueryID, opts.liveness, opts.livenessInterval))
	b.startTime.Store(opts.clock().UnixNano())
	return b, nil
}

func (b *Builder) cacheOptions() []sortedcache.Option {
	return []sortedcache.Option{
		sortedcache.WithBufferThreshold(b.cfg.BufferThreshold),
		sortedcache.WithMaxOpenFiles(b.cfg.MaxOpenFiles),
		sortedcache.WithNumRetries(b.cfg.NumRetries),
		sortedcache.WithCompression(b.cfg.Compression),
		sortedcache.WithLogger(b.logger.Logger),
		sortedcache.WithMetrics(b.metrics),
	}
}

// OwnerID returns the identity written to the ownership marker.
func (b *Builder) OwnerID() string { return b.ownerID }

// TaskName returns the identity of the task scanning r for this config.
func (b *Builder) TaskName(r key.Range) string {
	dir := "-"
	if b.control != nil {
		dir = b.control.Dir().String()
	}
	return fmt.Sprintf("%s scanId:%s queryId:%s row:%s dir:%s term:%d range:%s rangeHash:%d",
		b.cfg.describe(), b.cfg.ScanID, b.cfg.QueryID, r.Start.Row, dir, b.cfg.TermNumber, r, r.Hash())
}

// ScanStart implements scheduler.Owner.
func (b *Builder) ScanStart() time.Time { return time.Unix(0, b.startTime.Load()) }

// ScanTimeout implements scheduler.Owner.
func (b *Builder) ScanTimeout() time.Duration { return b.cfg.ScanTimeout }

// SetTimedOut implements scheduler.Owner.
func (b *Builder) SetTimedOut() {
	b.timedOut.Store(true)
	b.cancel.Load().cancel()
}

func (b *Builder) cancelled() bool { return b.cancel.Load().isCancelled() }

func (b *Builder) startTiming() { b.startTime.Store(b.opts.clock().UnixNano()) }

// checkTiming flags the scan once it ran past the scan timeout.
func (b *Builder) checkTiming() {
	if b.opts.clock().After(b.ScanStart().Add(b.cfg.ScanTimeout)) {
		b.SetTimedOut()
	}
}

func (b *Builder) startWindow() {
	b.deadline = time.Time{}
	if b.opts.waitWindow > 0 {
		b.deadline = b.opts.clock().Add(b.opts.waitWindow)
	}
}

func (b *Builder) HasTop() bool { return b.hasTop }

func (b *Builder) Key() key.Key { return b.top }

// Value returns an empty value; the result is carried by the key.
func (b *Builder) Value() []byte { return []byte{} }

// Seek positions the builder at the first matching key in r.
func (b *Builder) Seek(ctx context.Context, r key.Range) error {
	b.startWindow()
	b.lastEmitted = nil
	b.hasTop = false
	b.releaseFiSource()

	last := b.lastRange.Load()
	continuation := last != nil && last.ContainsRange(r)
	resuming := b.yield != nil && *b.yield == r && b.hasRow && !b.cfg.Unsorted
	b.yield = nil
	if resuming {
		// Seeking the range of our own overrun: the row is unchanged.
		b.lastRange.Store(&r)
		return b.findTop(ctx)
	}
	if !continuation || b.cfg.Unsorted {
		b.clearRow()
	} else if b.it != nil && (!b.it.Valid() || key.Compare(b.it.Key(), r.Start) > 0) {
		if err := b.reopenIterator(ctx); err != nil {
			return err
		}
	}

	var lastFi *key.Key
	if b.cfg.Unsorted && !r.StartUnbounded && r.Start.Family != "" {
		if k, ok := indexKeyOf(r.Start, r.StartInclusive); ok {
			lastFi = &k
		}
	}

	row, found, err := b.probe(ctx, r)
	if err != nil {
		return err
	}

	if !found {
		if r.StartUnbounded || !b.extendsBeyondRow(r) {
			b.clearRow()
			b.lastRange.Store(&r)
			b.hasRow = false
			return nil
		}
		b.row, b.hasRow = r.Start.Row, true
		b.lastRange.Store(&r)
		if err := b.moveToNextRow(ctx); err != nil {
			return err
		}
		if !b.hasRow {
			return nil
		}
		return b.findTop(ctx)
	}

	if !continuation || !b.hasRow || b.row != row {
		b.row, b.hasRow = row, true
	}
	b.lastRange.Store(&r)
	b.bounding = b.boundingRanges(b.row)
	if lastFi != nil {
		if err := b.positionUnsorted(ctx, *lastFi); err != nil {
			return err
		}
	}
	return b.findTop(ctx)
}

// Next advances to the next matching key.
func (b *Builder) Next(ctx context.Context) error {
	if !b.hasTop {
		return nil
	}
	b.startWindow()
	top := b.top
	b.lastEmitted = &top
	return b.findTop(ctx)
}

// probe looks for the first index entry of the field at the start row of r.
func (b *Builder) probe(ctx context.Context, r key.Range) (string, bool, error) {
	h, err := b.deps.Sources.Borrow(ctx)
	if err != nil {
		return "", false, fmt.Errorf("ivarator: borrow source: %w", err)
	}
	defer b.returnSource(h)

	if err := h.Seek(ctx, b.initialSeekRange(r)); err != nil {
		return "", false, err
	}
	b.scanned++
	if !h.HasTop() {
		return "", false, nil
	}
	return h.Key().Row, true, nil
}

// initialSeekRange restricts a bounded seek to the field index of its
// start row.
func (b *Builder) initialSeekRange(r key.Range) key.Range {
	if r.StartUnbounded {
		return r
	}
	start := key.New(r.Start.Row, FieldIndexFamily(b.cfg.Field), "")
	return key.NewRange(start, true, key.FollowingKey(start, key.PartialRowFamily), false)
}

// extendsBeyondRow reports whether r reaches past its start row.
func (b *Builder) extendsBeyondRow(r key.Range) bool {
	next := key.FollowingKey(key.New(r.Start.Row, "", ""), key.PartialRow)
	return r.EndUnbounded || r.Contains(next)
}

func (b *Builder) boundingRanges(row string) []key.Range {
	if b.cfg.Negated {
		return []key.Range{fieldRange(row, b.cfg.Field)}
	}
	return b.cfg.Splitter.Ranges(row, b.cfg.Field)
}

// positionUnsorted drops the bounding ranges the caller has already seen.
func (b *Builder) positionUnsorted(ctx context.Context, lastFi key.Key) error {
	for len(b.bounding) > 0 && b.bounding[0].AfterEndKey(lastFi) {
		b.bounding = b.bounding[1:]
	}
	if len(b.bounding) == 0 {
		return b.moveToNextRow(ctx)
	}
	if b.bounding[0].Contains(lastFi) {
		b.bounding[0] = b.bounding[0].WithStart(lastFi, true)
	}
	return nil
}

// match applies the predicate to an index key and returns the result key.
func (b *Builder) match(k key.Key) (key.Key, bool) {
	e, ok := ParseFieldIndexKey(k)
	if !ok || e.Field != b.cfg.Field {
		return key.Key{}, false
	}
	if tf := b.cfg.TimeFilter; tf != nil && !tf.Contains(k.Timestamp) {
		return key.Key{}, false
	}
	if df := b.cfg.DatatypeFilter; df != nil && !df(e.Datatype) {
		return key.Key{}, false
	}
	if b.cfg.Splitter.Match(e.Value) == b.cfg.Negated {
		return key.Key{}, false
	}
	t := b.cfg.ReturnKeyType
	if b.cfg.Unsorted {
		t = ReturnEvent
	}
	return eventKey(k, e, t), true
}

func (b *Builder) findTop(ctx context.Context) error {
	b.hasTop = false
	if b.cancelled() {
		return b.cancelError()
	}
	for !b.hasTop {
		if b.it != nil {
			if err := b.takeFromIterator(ctx); err != nil {
				return err
			}
			if b.hasTop {
				break
			}
		}

		b.startTiming()
		b.clearRow()
		if !b.hasRow {
			break
		}

		var err error
		if b.cfg.Unsorted {
			err = b.nextUnsorted(ctx)
		} else {
			err = b.fillSorted(ctx)
		}
		if err != nil {
			return err
		}
		if b.timedOut.Load() {
			return ErrScanTimeout
		}
		if b.cancelled() {
			return b.cancelError()
		}
		if b.state != nil {
			if err := b.forcePersistence(ctx); err != nil {
				return err
			}
		}
		if b.it == nil {
			if err := b.reopenIterator(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) cancelError() error {
	if b.timedOut.Load() {
		return ErrScanTimeout
	}
	return ErrCancelled
}

// takeFromIterator moves the next key inside the seek range to the top.
func (b *Builder) takeFromIterator(ctx context.Context) error {
	last := b.lastRange.Load()
	for b.it.Valid() {
		k := b.it.Key()
		if b.cfg.Unsorted || last.Contains(k) {
			b.top, b.hasTop = k, true
			return b.it.Next()
		}
		if last.AfterEndKey(k) {
			return nil
		}
		if last.BeforeStartKey(k) && b.state != nil {
			if err := b.it.Close(); err != nil {
				return err
			}
			it, err := b.state.cache.Tail(ctx, last.Start, last.StartInclusive)
			if err != nil {
				b.it = nil
				return err
			}
			b.it = it
			continue
		}
		if err := b.it.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) reopenIterator(ctx context.Context) error {
	if b.it != nil {
		if err := b.it.Close(); err != nil {
			b.logger.Warn("close iterator", "error", err)
		}
		b.it = nil
	}
	if b.cfg.Unsorted {
		b.it = &sliceIterator{keys: b.pending}
		return nil
	}
	if b.state == nil {
		return nil
	}
	it, err := b.state.cache.Iterator(ctx)
	if err != nil {
		return err
	}
	b.it = it
	return nil
}

func (b *Builder) clearRow() {
	if b.it != nil {
		if err := b.it.Close(); err != nil {
			b.logger.Warn("close iterator", "error", err)
		}
		b.it = nil
	}
	b.state = nil
}

// moveToNextRow advances to the next row holding any key in the seek range.
func (b *Builder) moveToNextRow(ctx context.Context) error {
	last := *b.lastRange.Load()
	next := key.FollowingKey(key.New(b.row, "", ""), key.PartialRow)
	b.bounding = nil
	if !last.EndUnbounded && !last.Contains(next) {
		b.hasRow = false
		return nil
	}

	h, err := b.deps.Sources.Borrow(ctx)
	if err != nil {
		return fmt.Errorf("ivarator: borrow source: %w", err)
	}
	defer b.returnSource(h)

	if err := h.Seek(ctx, last.WithStart(next, true)); err != nil {
		return err
	}
	b.scanned++
	if !h.HasTop() {
		b.hasRow = false
		return nil
	}
	b.row = h.Key().Row
	b.bounding = b.boundingRanges(b.row)
	return nil
}

func (b *Builder) returnSource(h *source.Handle) {
	if err := b.deps.Sources.Return(h); err != nil {
		b.logger.Warn("return source", "error", err)
	}
}

func (b *Builder) releaseFiSource() {
	if b.fiSource != nil {
		b.returnSource(b.fiSource)
		b.fiSource = nil
	}
}

// nextUnsorted reads index entries in place until one matches or every
// row of the seek range is exhausted.
func (b *Builder) nextUnsorted(ctx context.Context) error {
	b.pending = nil
	if b.fiSource == nil {
		h, err := b.deps.Sources.Borrow(ctx)
		if err != nil {
			return fmt.Errorf("ivarator: borrow source: %w", err)
		}
		b.fiSource = h
		if len(b.bounding) > 0 {
			if err := h.Seek(ctx, b.bounding[0]); err != nil {
				return err
			}
		}
	}

	for b.hasRow && len(b.pending) == 0 && !b.cancelled() {
		for b.hasRow && (len(b.bounding) == 0 || !b.fiSource.HasTop()) {
			if len(b.bounding) > 0 {
				b.bounding = b.bounding[1:]
			}
			if len(b.bounding) == 0 {
				if err := b.moveToNextRow(ctx); err != nil {
					return err
				}
			}
			if len(b.bounding) > 0 {
				if err := b.fiSource.Seek(ctx, b.bounding[0]); err != nil {
					return err
				}
			}
		}
		if !b.hasRow {
			break
		}

		top := b.fiSource.Key()
		b.scanned++
		b.checkTiming()
		if ek, ok := b.match(top); ok {
			b.pending = append(b.pending, ek)
		}
		if err := b.fiSource.Next(ctx); err != nil {
			return err
		}
	}
	if !b.hasRow {
		b.releaseFiSource()
	}
	return nil
}

// setupRow opens the cache of row, reusing it when a previous scan
// completed it.
func (b *Builder) setupRow(ctx context.Context, row string) error {
	if b.cancelled() {
		return nil
	}
	if !b.cfg.AllowDirReuse {
		f, err := b.deps.Scheduler.Evaluate("invalidate "+b.TaskName(key.RowRange(row)), func() error {
			return sortedcache.Invalidate(ctx, b.deps.Dirs, row)
		})
		if err != nil {
			return err
		}
		if err := f.Wait(ctx); err != nil {
			return fmt.Errorf("ivarator: invalidate row %q: %w", row, err)
		}
	}

	cache, err := sortedcache.Open(ctx, b.deps.Dirs, row, b.cacheOptions()...)
	if err != nil {
		return err
	}
	if err := b.control.TakeOwnership(ctx, row, b.ownerID); err != nil {
		return fmt.Errorf("ivarator: take ownership of %q: %w", row, err)
	}
	complete, err := b.control.IsComplete(ctx, row)
	if err != nil {
		return err
	}

	b.state = newRowState(row, cache, NewTotalResults(b.cfg.MaxResults), len(b.bounding))
	log := b.logger.WithRow(row)
	if !complete {
		if err := cache.Clear(ctx); err != nil {
			return err
		}
		log.Debug("creating empty cache", "dirs", len(b.deps.Dirs))
		return nil
	}
	b.state.setComplete()
	it, err := cache.Iterator(ctx)
	if err != nil {
		return err
	}
	b.it = it
	log.Debug("reusing completed cache")
	return nil
}

// forcePersistence persists the row and marks it complete, unless another
// builder took the row over in the meantime.
func (b *Builder) forcePersistence(ctx context.Context) error {
	st := b.state
	if st.isComplete() {
		return nil
	}
	if !st.cache.IsPersisted() {
		if err := st.cache.Persist(ctx); err != nil {
			return err
		}
	}
	owned, err := b.control.HasOwnership(ctx, st.row, b.ownerID)
	if err != nil {
		return err
	}
	if !owned {
		b.logger.WithRow(st.row).Warn("lost ownership of row, not marking it complete")
		return nil
	}
	if err := b.control.MarkComplete(ctx, st.row); err != nil {
		return err
	}
	st.setComplete()
	return nil
}

// fillSorted scans the current row into its cache and advances to the next
// row once every task finished.
func (b *Builder) fillSorted(ctx context.Context) error {
	started := b.opts.clock()
	log := b.logger.WithRow(b.row)

	resumed, err := b.resumeFromRegistry(ctx)
	if err != nil {
		return err
	}
	if !resumed {
		if err := b.setupRow(ctx, b.row); err != nil {
			return err
		}
		if b.it != nil {
			b.metrics.RecordRowScan(metrics.OutcomeReused, b.opts.clock().Sub(started))
			return b.moveToNextRow(ctx)
		}
	}
	if b.state == nil {
		return nil
	}

	futures, err := b.dispatch()
	if err != nil {
		return err
	}
	st := b.state

	var (
		failure    error
		failedTask string
		overrun    bool
	)
	for i := range futures {
		b.checkTiming()
		if b.cancelled() {
			break
		}
		f, timedOut, err := b.await(ctx, futures[i])
		futures[i] = f
		switch {
		case timedOut:
			overrun = true
		case errors.Is(err, ErrCancelled) && b.cancelled():
		case err != nil:
			failure, failedTask = err, f.Name()
			if ctx.Err() != nil {
				failure = fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			b.cancel.Load().cancel()
		default:
			st.markDone(futureTask(f).index)
		}
		if overrun || failure != nil {
			break
		}
	}

	if overrun {
		if name, err := pendingFailure(futures); err != nil {
			overrun, failure, failedTask = false, err, name
			b.cancel.Load().cancel()
		} else if st.total.Exceeded() {
			overrun, failure = false, ErrMaxResultsExceeded
			b.cancel.Load().cancel()
		}
	}

	var matched, scanned int64
	for _, f := range futures {
		t := futureTask(f)
		matched += t.Matched()
		scanned += t.Scanned()
	}
	elapsed := b.opts.clock().Sub(started)

	if overrun {
		b.suspendForYield(futures)
		b.metrics.RecordRowScan(metrics.OutcomeOverrun, elapsed)
		log.Info("wait window overrun, yielding", "done", st.doneCount(), "ranges", len(futures))
		return b.overrunError()
	}

	if ctx.Err() != nil {
		for _, f := range futures {
			futureTask(f).Suspend(0, ErrCancelled)
			b.deps.Scheduler.Unregister(f)
		}
	} else {
		for _, f := range futures {
			b.deps.Scheduler.Suspend(f, true, true)
		}
	}
	b.metrics.RecordScan(scanned, matched)

	switch {
	case failure != nil:
		b.metrics.RecordRowScan(metrics.OutcomeFailed, elapsed)
		b.logger.LogRowScan(st.row, len(futures), matched, scanned, metrics.OutcomeFailed, failure)
		if b.timedOut.Load() {
			return ErrScanTimeout
		}
		return &ScanError{Row: st.row, Task: failedTask, cause: failure}
	case b.cancelled():
		b.metrics.RecordRowScan(metrics.OutcomeCancelled, elapsed)
		b.logger.LogRowScan(st.row, len(futures), matched, scanned, metrics.OutcomeCancelled, nil)
		return nil
	}
	b.metrics.RecordRowScan(metrics.OutcomeComplete, elapsed)
	b.logger.LogRowScan(st.row, len(futures), matched, scanned, metrics.OutcomeComplete, nil)
	return b.moveToNextRow(ctx)
}

func futureTask(f *scheduler.Future) *ScanTask {
	t, _ := f.Task().(*ScanTask)
	return t
}

// dispatch submits one task per bounding range. When another builder won
// the race for some range the row state of its tasks is adopted and the
// remaining ranges are dispatched against it.
func (b *Builder) dispatch() ([]*scheduler.Future, error) {
	const maxAttempts = 3
	for attempt := 1; ; attempt++ {
		futures := make([]*scheduler.Future, len(b.bounding))
		var foreign *rowState
		for i, r := range b.bounding {
			f, err := b.fillRange(i, r)
			if err != nil {
				b.stopTasks(futures[:i])
				return nil, err
			}
			futures[i] = f
			if t := futureTask(f); t != nil && t.state != b.state && foreign == nil {
				foreign = t.state
			}
		}
		if foreign == nil || attempt == maxAttempts {
			return futures, nil
		}
		for _, f := range futures {
			if futureTask(f).state == b.state {
				b.deps.Scheduler.Suspend(f, false, true)
			}
		}
		b.logger.WithRow(b.row).Info("another builder is scanning the row, joining it")
		b.state = foreign
	}
}

func (b *Builder) fillRange(i int, r key.Range) (*scheduler.Future, error) {
	if f, ok := b.deps.Scheduler.Lookup(b.TaskName(r)); ok {
		return f, nil
	}
	return b.deps.Scheduler.Submit(newScanTask(b, b.state, i, r))
}

func (b *Builder) stopTasks(futures []*scheduler.Future) {
	for _, f := range futures {
		if f != nil {
			b.deps.Scheduler.Suspend(f, false, true)
		}
	}
}

// await waits for f within the wait window. A task that another builder
// suspended is resumed in place.
func (b *Builder) await(ctx context.Context, f *scheduler.Future) (*scheduler.Future, bool, error) {
	for {
		timedOut, err := b.wait(ctx, f)
		if timedOut || err != nil {
			return f, timedOut, err
		}
		if !resumable(f) {
			return f, false, f.Err()
		}
		next, err := b.takeOver(futureTask(f), f)
		if err != nil {
			return f, false, err
		}
		if next == nil {
			return f, true, nil
		}
		f = next
	}
}

func (b *Builder) wait(ctx context.Context, f *scheduler.Future) (bool, error) {
	select {
	case <-f.Done():
		return false, nil
	default:
	}
	var timeout <-chan time.Time
	if !b.deadline.IsZero() {
		remaining := b.deadline.Sub(b.opts.clock())
		if remaining <= 0 {
			return true, nil
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-f.Done():
		return false, nil
	case <-timeout:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (b *Builder) takeOver(t *ScanTask, f *scheduler.Future) (*scheduler.Future, error) {
	if err := t.PrepareForResume(b); err == nil {
		b.deps.Scheduler.Unregister(f)
		return b.deps.Scheduler.Submit(t)
	}
	if g, ok := b.deps.Scheduler.Lookup(t.Name()); ok && g != f {
		return g, nil
	}
	return nil, nil
}

// pendingFailure returns the error of any task that already failed.
func pendingFailure(futures []*scheduler.Future) (string, error) {
	for _, f := range futures {
		select {
		case <-f.Done():
			if err := f.Err(); err != nil && !resumable(f) {
				return f.Name(), err
			}
		default:
		}
	}
	return "", nil
}

// resumable reports whether the finished future f was stopped by a
// builder rather than by failure, eviction or timeout.
func resumable(f *scheduler.Future) bool {
	t := futureTask(f)
	if t == nil {
		return false
	}
	err := f.Err()
	switch t.Status() {
	case scheduler.StatusCreated, scheduler.StatusResumable:
		return errors.Is(err, scheduler.ErrRemoved)
	case scheduler.StatusSuspended:
		return err == nil
	default:
		return false
	}
}

// suspendForYield stops the tasks of the row at their next key and keeps
// the ones that can be resumed registered.
func (b *Builder) suspendForYield(futures []*scheduler.Future) {
	for _, f := range futures {
		b.deps.Scheduler.Suspend(f, false, false)
		switch futureTask(f).Status() {
		case scheduler.StatusCreated, scheduler.StatusResumable, scheduler.StatusSuspended, scheduler.StatusCompleted:
		default:
			b.deps.Scheduler.Unregister(f)
		}
	}
}

func (b *Builder) overrunError() error {
	last := *b.lastRange.Load()
	err := &WaitWindowOverrunError{YieldKey: last.Start, Range: last}
	if b.lastEmitted != nil {
		err = &WaitWindowOverrunError{YieldKey: *b.lastEmitted, Range: last.WithStart(*b.lastEmitted, false)}
	}
	b.yield = &err.Range
	return err
}

// resumeFromRegistry adopts the tasks a previous builder left in the
// scheduler for the current row. It reports false when there is nothing
// consistent to adopt.
func (b *Builder) resumeFromRegistry(ctx context.Context) (bool, error) {
	var (
		tasks   []*ScanTask
		futures []*scheduler.Future
	)
	for _, r := range b.bounding {
		f, ok := b.deps.Scheduler.Lookup(b.TaskName(r))
		if !ok {
			continue
		}
		if t := futureTask(f); t != nil {
			tasks = append(tasks, t)
			futures = append(futures, f)
		}
	}
	if len(tasks) == 0 {
		return false, nil
	}

	log := b.logger.WithRow(b.row)
	st, prev := tasks[0].state, tasks[0].builder.Load()
	consistent := st != nil && st.row == b.row
	for _, t := range tasks[1:] {
		if t.state != st || t.builder.Load() != prev {
			consistent = false
		}
	}
	if !consistent {
		log.Info("found inconsistent tasks in registry, rebuilding row", "tasks", len(tasks))
		for _, f := range futures {
			b.deps.Scheduler.Suspend(f, false, true)
		}
		return false, nil
	}

	b.state = st
	if prev != nil && prev != b {
		b.cancel.Store(prev.cancel.Load())
		b.startTime.Store(prev.startTime.Load())
	}
	if err := b.control.TakeOwnership(ctx, st.row, b.ownerID); err != nil {
		return false, fmt.Errorf("ivarator: take ownership of %q: %w", st.row, err)
	}

	var resumed, completed, live int
	for i, t := range tasks {
		f := futures[i]
		t.builder.Store(b)
		select {
		case <-f.Done():
		default:
			live++
			continue
		}
		switch t.Status() {
		case scheduler.StatusCompleted:
			st.markDone(t.index)
			completed++
		case scheduler.StatusCreated, scheduler.StatusResumable, scheduler.StatusSuspended:
			b.deps.Scheduler.Unregister(f)
			if err := t.PrepareForResume(b); err != nil {
				log.Warn("cannot resume task", "task", t.Name(), "error", err)
				continue
			}
			if _, err := b.deps.Scheduler.Submit(t); err != nil {
				return true, err
			}
			resumed++
		default:
			b.deps.Scheduler.Unregister(f)
		}
	}
	log.Info("resuming row scan",
		"resumed", resumed,
		"completed", completed,
		"running", live,
		"recreated", len(b.bounding)-resumed-completed-live,
	)
	return true, nil
}

// Close releases the resources of the builder. Tasks still registered
// with the scheduler are left to the registry's eviction.
func (b *Builder) Close() error {
	b.releaseFiSource()
	var err error
	if b.it != nil {
		err = b.it.Close()
		b.it = nil
	}
	b.state = nil
	b.hasTop = false
	return err
}

// BuilderStats describes the progress of the current row.
type BuilderStats struct {
	Row        string
	Ranges     int
	RangesDone int
	Scanned    int64
	Results    int64
	TimedOut   bool
	Cancelled  bool
}

// Stats returns a snapshot of the builder's progress.
func (b *Builder) Stats() BuilderStats {
	s := BuilderStats{
		Row:       b.row,
		Ranges:    len(b.bounding),
		Scanned:   b.scanned,
		TimedOut:  b.timedOut.Load(),
		Cancelled: b.cancel.Load().cancelled.Load(),
	}
	if b.state != nil {
		s.RangesDone = b.state.doneCount()
		s.Results = b.state.total.Size()
	}
	return s
}

// sliceIterator iterates the pending keys of the unsorted mode.
type sliceIterator struct {
	keys []key.Key
	pos  int
}

func (s *sliceIterator) Valid() bool  { return s.pos < len(s.keys) }
func (s *sliceIterator) Key() key.Key { return s.keys[s.pos] }
func (s *sliceIterator) Next() error  { s.pos++; return nil }
func (s *sliceIterator) Close() error { return nil }
