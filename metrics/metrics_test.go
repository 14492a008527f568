package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicCollector(t *testing.T) {
	var c BasicCollector

	c.RecordTaskSubmitted("scan", false)
	c.RecordTaskSubmitted("scan", true)
	c.RecordTaskEvicted(false)
	c.RecordTaskTimedOut()
	c.RecordPoolSize("scan", 4)
	c.RecordScan(100, 7)
	c.RecordSegmentFlush(10, 512, time.Millisecond, nil)
	c.RecordSegmentFlush(10, 512, time.Millisecond, errors.New("boom"))
	c.RecordCompaction(3, time.Millisecond, nil)
	c.RecordRowScan(OutcomeComplete, time.Second)
	c.RecordRowScan(OutcomeOverrun, time.Second)

	s := c.Stats()
	assert.Equal(t, int64(1), s.TasksSubmitted)
	assert.Equal(t, int64(1), s.TasksDeduplicated)
	assert.Equal(t, int64(1), s.TasksEvicted)
	assert.Equal(t, int64(1), s.TasksTimedOut)
	assert.Equal(t, 4, s.PoolSizes["scan"])
	assert.Equal(t, int64(100), s.KeysScanned)
	assert.Equal(t, int64(7), s.KeysMatched)
	assert.Equal(t, int64(2), s.SegmentFlushes)
	assert.Equal(t, int64(1), s.SegmentErrors)
	assert.Equal(t, int64(10), s.SegmentKeys)
	assert.Equal(t, int64(512), s.SegmentBytes)
	assert.Equal(t, int64(1), s.Compactions)
	assert.Equal(t, int64(1), s.RowOutcomes[OutcomeComplete])
	assert.Equal(t, int64(1), s.RowOutcomes[OutcomeOverrun])
	assert.Equal(t, (2 * time.Second).Nanoseconds(), s.RowScanNanos)
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	c.RecordTaskSubmitted("scan", false)
	c.RecordTaskSubmitted("scan", false)
	c.RecordPoolSize("evaluation", 3)
	c.RecordScan(5, 2)
	c.RecordRowScan(OutcomeReused, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasks.WithLabelValues("scan", "false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.poolSize.WithLabelValues("evaluation")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.keys.WithLabelValues("scanned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rowScans.WithLabelValues(OutcomeReused)))

	_, err = NewPrometheusCollector(reg)
	assert.Error(t, err, "duplicate registration must fail")
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NoopCollector{}
	c.RecordRowScan(OutcomeFailed, 0)
	c.RecordSegmentFlush(0, 0, 0, nil)
}
