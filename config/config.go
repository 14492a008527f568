package config

import (
	"errors"
	"fmt"
	"time"
)

// Pool names understood by Provider.PoolSize.
const (
	PoolScan       = "scan"
	PoolEvaluation = "evaluation"
)

// Provider supplies scheduler settings. Implementations must be safe for
// concurrent use; values may change between calls.
type Provider interface {
	// PoolSize returns the worker count of the named pool.
	PoolSize(pool string) int
	// RunnableTimeout bounds how long a task may run, and how long an idle
	// registry entry is kept (times 1.1).
	RunnableTimeout() time.Duration
	// MaintenanceInterval is the pool resize period.
	MaintenanceInterval() time.Duration
	// SweepInterval is the timeout sweep period.
	SweepInterval() time.Duration
}

// Settings is the full configuration surface.
type Settings struct {
	ScanPoolSize        int           `mapstructure:"scan_pool_size"`
	EvaluationPoolSize  int           `mapstructure:"evaluation_pool_size"`
	RunnableTimeout     time.Duration `mapstructure:"runnable_timeout"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`

	ScanTimeout            time.Duration `mapstructure:"scan_timeout"`
	BufferThreshold        int           `mapstructure:"buffer_threshold"`
	MaxOpenFiles           int           `mapstructure:"max_open_files"`
	NumRetries             int           `mapstructure:"num_retries"`
	MaxResults             int64         `mapstructure:"max_results"`
	MaxRangeSplit          int           `mapstructure:"max_range_split"`
	CompositeSeekThreshold int           `mapstructure:"composite_seek_threshold"`
	AllowDirReuse          bool          `mapstructure:"allow_dir_reuse"`
	LivenessInterval       time.Duration `mapstructure:"liveness_interval"`
	Compression            string        `mapstructure:"compression"`
	SourcePoolSize         int           `mapstructure:"source_pool_size"`
}

// Defaults returns the default settings.
func Defaults() Settings {
	return Settings{
		ScanPoolSize:        100,
		EvaluationPoolSize:  100,
		RunnableTimeout:     60 * time.Minute,
		MaintenanceInterval: 10 * time.Second,
		SweepInterval:       time.Minute,

		ScanTimeout:            time.Hour,
		BufferThreshold:        10000,
		MaxOpenFiles:           100,
		NumRetries:             2,
		MaxResults:             -1,
		MaxRangeSplit:          11,
		CompositeSeekThreshold: 10,
		LivenessInterval:       time.Minute,
		Compression:            "lz4",
		SourcePoolSize:         32,
	}
}

// Validate checks the settings for values that cannot work.
func (s Settings) Validate() error {
	var errs []error
	if s.ScanPoolSize <= 0 {
		errs = append(errs, fmt.Errorf("scan_pool_size must be positive, got %d", s.ScanPoolSize))
	}
	if s.EvaluationPoolSize <= 0 {
		errs = append(errs, fmt.Errorf("evaluation_pool_size must be positive, got %d", s.EvaluationPoolSize))
	}
	if s.RunnableTimeout <= 0 {
		errs = append(errs, errors.New("runnable_timeout must be positive"))
	}
	if s.MaintenanceInterval <= 0 || s.SweepInterval <= 0 {
		errs = append(errs, errors.New("maintenance_interval and sweep_interval must be positive"))
	}
	if s.ScanTimeout <= 0 {
		errs = append(errs, errors.New("scan_timeout must be positive"))
	}
	if s.BufferThreshold <= 0 {
		errs = append(errs, fmt.Errorf("buffer_threshold must be positive, got %d", s.BufferThreshold))
	}
	if s.MaxOpenFiles < 2 {
		errs = append(errs, fmt.Errorf("max_open_files must be at least 2, got %d", s.MaxOpenFiles))
	}
	if s.NumRetries < 0 {
		errs = append(errs, fmt.Errorf("num_retries must not be negative, got %d", s.NumRetries))
	}
	if s.MaxRangeSplit <= 0 {
		errs = append(errs, fmt.Errorf("max_range_split must be positive, got %d", s.MaxRangeSplit))
	}
	if s.SourcePoolSize <= 0 {
		errs = append(errs, fmt.Errorf("source_pool_size must be positive, got %d", s.SourcePoolSize))
	}
	return errors.Join(errs...)
}

// Static is a Provider over fixed settings.
type Static struct {
	Settings Settings
}

var _ Provider = (*Static)(nil)

// NewStatic returns a Static provider over s.
func NewStatic(s Settings) *Static {
	return &Static{Settings: s}
}

func (s *Static) PoolSize(pool string) int {
	return poolSize(s.Settings, pool)
}

func (s *Static) RunnableTimeout() time.Duration     { return s.Settings.RunnableTimeout }
func (s *Static) MaintenanceInterval() time.Duration { return s.Settings.MaintenanceInterval }
func (s *Static) SweepInterval() time.Duration       { return s.Settings.SweepInterval }

func poolSize(s Settings, pool string) int {
	switch pool {
	case PoolScan:
		return s.ScanPoolSize
	case PoolEvaluation:
		return s.EvaluationPoolSize
	default:
		return 1
	}
}
