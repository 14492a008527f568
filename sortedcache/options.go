package sortedcache

import (
	"io"
	"log/slog"

	"github.com/hupe1980/ivarator/metrics"
)

// Defaults used when an option is left at its zero value.
const (
	DefaultBufferThreshold = 10000
	DefaultMaxOpenFiles    = 100
	DefaultNumRetries      = 2
)

// Options configures a Cache or Control.
type Options struct {
	// BufferThreshold is the number of buffered keys that triggers a
	// segment flush.
	BufferThreshold int

	// MaxOpenFiles bounds the number of segments merged at once. Once a row
	// has more segments, the oldest are compacted.
	MaxOpenFiles int

	// NumRetries is the number of retries after a failed blob write.
	NumRetries int

	// Compression selects the block codec of new segments.
	Compression Compression

	// BlockSize is the target raw size of a segment block.
	BlockSize int

	Logger  *slog.Logger
	Metrics metrics.Collector
}

// Option configures Options.
type Option func(*Options)

// WithBufferThreshold sets the flush threshold.
func WithBufferThreshold(n int) Option {
	return func(o *Options) { o.BufferThreshold = n }
}

// WithMaxOpenFiles sets the merge fan-in.
func WithMaxOpenFiles(n int) Option {
	return func(o *Options) { o.MaxOpenFiles = n }
}

// WithNumRetries sets the write retry count.
func WithNumRetries(n int) Option {
	return func(o *Options) { o.NumRetries = n }
}

// WithCompression sets the segment block codec.
func WithCompression(c Compression) Option {
	return func(o *Options) { o.Compression = c }
}

// WithBlockSize sets the target raw block size.
func WithBlockSize(n int) Option {
	return func(o *Options) { o.BlockSize = n }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(o *Options) { o.Metrics = m }
}

func buildOptions(opts []Option) Options {
	o := Options{
		BufferThreshold: DefaultBufferThreshold,
		MaxOpenFiles:    DefaultMaxOpenFiles,
		NumRetries:      DefaultNumRetries,
		Compression:     CompressionLZ4,
		BlockSize:       defaultBlockSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.BufferThreshold <= 0 {
		o.BufferThreshold = DefaultBufferThreshold
	}
	if o.MaxOpenFiles < 2 {
		o.MaxOpenFiles = 2
	}
	if o.NumRetries < 0 {
		o.NumRetries = 0
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NoopCollector{}
	}
	return o
}
