package ivarator

import (
	"log/slog"
	"time"

	"github.com/hupe1980/ivarator/metrics"
)

type options struct {
	logger           *Logger
	metricsCollector metrics.Collector
	liveness         Liveness
	livenessInterval time.Duration
	waitWindow       time.Duration
	clock            func() time.Time
}

// Option configures the collaborators of a Builder.
type Option func(*options)

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := ivarator.NewJSONLogger(slog.LevelInfo)
//	b, _ := ivarator.NewBuilder(cfg, deps, ivarator.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetrics configures a metrics collector.
// Pass nil to disable metrics collection.
func WithMetrics(mc metrics.Collector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLiveness configures the check that cancels scans of queries that
// are no longer running. It is consulted at most once per interval.
func WithLiveness(l Liveness, interval time.Duration) Option {
	return func(o *options) {
		o.liveness = l
		o.livenessInterval = interval
	}
}

// WithWaitWindow bounds how long a single Seek or Next call may block on
// a row scan before it yields with a *WaitWindowOverrunError. Zero waits
// until the scan finishes.
func WithWaitWindow(d time.Duration) Option {
	return func(o *options) {
		o.waitWindow = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: metrics.NoopCollector{},
		logger:           NoopLogger(),
		livenessInterval: time.Minute,
		clock:            time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = metrics.NoopCollector{}
	}
	return o
}
