package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports metrics through client_golang.
type PrometheusCollector struct {
	tasks          *prometheus.CounterVec
	evictions      *prometheus.CounterVec
	timeouts       prometheus.Counter
	poolSize       *prometheus.GaugeVec
	keys           *prometheus.CounterVec
	flushes        *prometheus.CounterVec
	flushBytes     prometheus.Counter
	flushLatency   prometheus.Histogram
	compactions    *prometheus.CounterVec
	rowScans       *prometheus.CounterVec
	rowScanLatency prometheus.Histogram
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers its metrics
// on reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ivarator_tasks_submitted_total",
			Help: "Tasks submitted to the scheduler",
		}, []string{"pool", "deduplicated"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ivarator_tasks_evicted_total",
			Help: "Registry entries evicted after being idle",
		}, []string{"started"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ivarator_tasks_timed_out_total",
			Help: "Tasks stopped by the timeout sweep",
		}),
		poolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ivarator_pool_size",
			Help: "Current worker pool capacity",
		}, []string{"pool"}),
		keys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ivarator_keys_total",
			Help: "Index keys visited by scan tasks",
		}, []string{"kind"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ivarator_segment_flushes_total",
			Help: "Sorted cache segment writes",
		}, []string{"status"}),
		flushBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ivarator_segment_bytes_total",
			Help: "Bytes written to sorted cache segments",
		}),
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ivarator_segment_flush_seconds",
			Help:    "Latency of segment writes",
			Buckets: prometheus.DefBuckets,
		}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ivarator_compactions_total",
			Help: "Segment compactions",
		}, []string{"status"}),
		rowScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ivarator_row_scans_total",
			Help: "Row scans by outcome",
		}, []string{"outcome"}),
		rowScanLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ivarator_row_scan_seconds",
			Help:    "Time spent building a row cache per call",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		}),
	}

	for _, m := range []prometheus.Collector{
		c.tasks, c.evictions, c.timeouts, c.poolSize, c.keys, c.flushes,
		c.flushBytes, c.flushLatency, c.compactions, c.rowScans, c.rowScanLatency,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (c *PrometheusCollector) RecordTaskSubmitted(pool string, deduplicated bool) {
	c.tasks.WithLabelValues(pool, boolLabel(deduplicated)).Inc()
}

func (c *PrometheusCollector) RecordTaskEvicted(started bool) {
	c.evictions.WithLabelValues(boolLabel(started)).Inc()
}

func (c *PrometheusCollector) RecordTaskTimedOut() {
	c.timeouts.Inc()
}

func (c *PrometheusCollector) RecordPoolSize(pool string, size int) {
	c.poolSize.WithLabelValues(pool).Set(float64(size))
}

func (c *PrometheusCollector) RecordScan(scanned, matched int64) {
	c.keys.WithLabelValues("scanned").Add(float64(scanned))
	c.keys.WithLabelValues("matched").Add(float64(matched))
}

func (c *PrometheusCollector) RecordSegmentFlush(_ int, bytes int64, duration time.Duration, err error) {
	c.flushes.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.flushBytes.Add(float64(bytes))
	}
	c.flushLatency.Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordCompaction(_ int, _ time.Duration, err error) {
	c.compactions.WithLabelValues(status(err)).Inc()
}

func (c *PrometheusCollector) RecordRowScan(outcome string, duration time.Duration) {
	c.rowScans.WithLabelValues(outcome).Inc()
	c.rowScanLatency.Observe(duration.Seconds())
}
