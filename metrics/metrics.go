package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Row scan outcomes passed to RecordRowScan.
const (
	OutcomeComplete  = "complete"
	OutcomeReused    = "reused"
	OutcomeOverrun   = "overrun"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Collector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems, or use
// PrometheusCollector.
type Collector interface {
	// RecordTaskSubmitted is called when a task is scheduled on pool.
	// deduplicated is true when an existing future was returned instead.
	RecordTaskSubmitted(pool string, deduplicated bool)

	// RecordTaskEvicted is called when the registry evicts an idle future.
	RecordTaskEvicted(started bool)

	// RecordTaskTimedOut is called when the sweep stops an overdue task.
	RecordTaskTimedOut()

	// RecordPoolSize is called after a pool was resized.
	RecordPoolSize(pool string, size int)

	// RecordScan is called when a scan task stops, with the keys it
	// visited and the keys it matched.
	RecordScan(scanned, matched int64)

	// RecordSegmentFlush is called after a sorted cache segment write.
	RecordSegmentFlush(keys int, bytes int64, duration time.Duration, err error)

	// RecordCompaction is called after segments were merged.
	RecordCompaction(inputs int, duration time.Duration, err error)

	// RecordRowScan is called when a builder finishes a row, with one of
	// the Outcome constants.
	RecordRowScan(outcome string, duration time.Duration)
}

// NoopCollector is a no-op implementation of Collector.
// Use this when metrics collection is not needed.
type NoopCollector struct{}

func (NoopCollector) RecordTaskSubmitted(string, bool)                    {}
func (NoopCollector) RecordTaskEvicted(bool)                              {}
func (NoopCollector) RecordTaskTimedOut()                                 {}
func (NoopCollector) RecordPoolSize(string, int)                          {}
func (NoopCollector) RecordScan(int64, int64)                             {}
func (NoopCollector) RecordSegmentFlush(int, int64, time.Duration, error) {}
func (NoopCollector) RecordCompaction(int, time.Duration, error)          {}
func (NoopCollector) RecordRowScan(string, time.Duration)                 {}

// BasicCollector provides simple in-memory metrics collection.
// Useful for tests and debugging without external dependencies.
type BasicCollector struct {
	TasksSubmitted    atomic.Int64
	TasksDeduplicated atomic.Int64
	TasksEvicted      atomic.Int64
	TasksTimedOut     atomic.Int64
	KeysScanned       atomic.Int64
	KeysMatched       atomic.Int64
	SegmentFlushes    atomic.Int64
	SegmentErrors     atomic.Int64
	SegmentKeys       atomic.Int64
	SegmentBytes      atomic.Int64
	Compactions       atomic.Int64
	CompactionErrors  atomic.Int64
	RowScanNanos      atomic.Int64

	mu        sync.Mutex
	poolSizes map[string]int
	outcomes  map[string]int64
}

// RecordTaskSubmitted implements Collector.
func (b *BasicCollector) RecordTaskSubmitted(_ string, deduplicated bool) {
	if deduplicated {
		b.TasksDeduplicated.Add(1)
		return
	}
	b.TasksSubmitted.Add(1)
}

// RecordTaskEvicted implements Collector.
func (b *BasicCollector) RecordTaskEvicted(bool) {
	b.TasksEvicted.Add(1)
}

// RecordTaskTimedOut implements Collector.
func (b *BasicCollector) RecordTaskTimedOut() {
	b.TasksTimedOut.Add(1)
}

// RecordPoolSize implements Collector.
func (b *BasicCollector) RecordPoolSize(pool string, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poolSizes == nil {
		b.poolSizes = make(map[string]int)
	}
	b.poolSizes[pool] = size
}

// RecordScan implements Collector.
func (b *BasicCollector) RecordScan(scanned, matched int64) {
	b.KeysScanned.Add(scanned)
	b.KeysMatched.Add(matched)
}

// RecordSegmentFlush implements Collector.
func (b *BasicCollector) RecordSegmentFlush(keys int, bytes int64, _ time.Duration, err error) {
	b.SegmentFlushes.Add(1)
	if err != nil {
		b.SegmentErrors.Add(1)
		return
	}
	b.SegmentKeys.Add(int64(keys))
	b.SegmentBytes.Add(bytes)
}

// RecordCompaction implements Collector.
func (b *BasicCollector) RecordCompaction(_ int, _ time.Duration, err error) {
	b.Compactions.Add(1)
	if err != nil {
		b.CompactionErrors.Add(1)
	}
}

// RecordRowScan implements Collector.
func (b *BasicCollector) RecordRowScan(outcome string, duration time.Duration) {
	b.RowScanNanos.Add(duration.Nanoseconds())
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.outcomes == nil {
		b.outcomes = make(map[string]int64)
	}
	b.outcomes[outcome]++
}

// Stats returns a snapshot of current metrics.
func (b *BasicCollector) Stats() Stats {
	b.mu.Lock()
	pools := make(map[string]int, len(b.poolSizes))
	for k, v := range b.poolSizes {
		pools[k] = v
	}
	outcomes := make(map[string]int64, len(b.outcomes))
	for k, v := range b.outcomes {
		outcomes[k] = v
	}
	b.mu.Unlock()

	return Stats{
		TasksSubmitted:    b.TasksSubmitted.Load(),
		TasksDeduplicated: b.TasksDeduplicated.Load(),
		TasksEvicted:      b.TasksEvicted.Load(),
		TasksTimedOut:     b.TasksTimedOut.Load(),
		KeysScanned:       b.KeysScanned.Load(),
		KeysMatched:       b.KeysMatched.Load(),
		SegmentFlushes:    b.SegmentFlushes.Load(),
		SegmentErrors:     b.SegmentErrors.Load(),
		SegmentKeys:       b.SegmentKeys.Load(),
		SegmentBytes:      b.SegmentBytes.Load(),
		Compactions:       b.Compactions.Load(),
		CompactionErrors:  b.CompactionErrors.Load(),
		RowScanNanos:      b.RowScanNanos.Load(),
		PoolSizes:         pools,
		RowOutcomes:       outcomes,
	}
}

// Stats is a snapshot of BasicCollector state.
type Stats struct {
	TasksSubmitted    int64
	TasksDeduplicated int64
	TasksEvicted      int64
	TasksTimedOut     int64
	KeysScanned       int64
	KeysMatched       int64
	SegmentFlushes    int64
	SegmentErrors     int64
	SegmentKeys       int64
	SegmentBytes      int64
	Compactions       int64
	CompactionErrors  int64
	RowScanNanos      int64
	PoolSizes         map[string]int
	RowOutcomes       map[string]int64
}
