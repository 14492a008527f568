package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. IVARATOR_SCAN_POOL_SIZE.
const EnvPrefix = "IVARATOR"

// Viper is a Provider backed by spf13/viper. Reads go through a snapshot
// that is swapped whenever the watched file changes and still validates.
type Viper struct {
	v      *viper.Viper
	logger *slog.Logger

	mu        sync.RWMutex
	settings  Settings
	listeners []func(Settings)
}

var _ Provider = (*Viper)(nil)

// ViperOption configures NewViper.
type ViperOption func(*Viper)

// WithViperLogger sets the logger used for reload failures.
func WithViperLogger(l *slog.Logger) ViperOption {
	return func(p *Viper) { p.logger = l }
}

// NewViper loads settings from file (optional, any viper-supported format)
// and IVARATOR_* environment variables on top of Defaults.
func NewViper(file string, opts ...ViperOption) (*Viper, error) {
	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read %s: %w", file, err)
			}
		}
	}

	p := &Viper{v: v, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	s, err := decode(v)
	if err != nil {
		return nil, err
	}
	p.settings = s
	return p, nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("scan_pool_size", d.ScanPoolSize)
	v.SetDefault("evaluation_pool_size", d.EvaluationPoolSize)
	v.SetDefault("runnable_timeout", d.RunnableTimeout)
	v.SetDefault("maintenance_interval", d.MaintenanceInterval)
	v.SetDefault("sweep_interval", d.SweepInterval)
	v.SetDefault("scan_timeout", d.ScanTimeout)
	v.SetDefault("buffer_threshold", d.BufferThreshold)
	v.SetDefault("max_open_files", d.MaxOpenFiles)
	v.SetDefault("num_retries", d.NumRetries)
	v.SetDefault("max_results", d.MaxResults)
	v.SetDefault("max_range_split", d.MaxRangeSplit)
	v.SetDefault("composite_seek_threshold", d.CompositeSeekThreshold)
	v.SetDefault("allow_dir_reuse", d.AllowDirReuse)
	v.SetDefault("liveness_interval", d.LivenessInterval)
	v.SetDefault("compression", d.Compression)
	v.SetDefault("source_pool_size", d.SourcePoolSize)
}

func decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("config: invalid: %w", err)
	}
	return s, nil
}

// Watch reloads the config file on change. Invalid updates are logged and
// ignored, keeping the last good snapshot.
func (p *Viper) Watch() {
	p.v.OnConfigChange(func(e fsnotify.Event) {
		if err := p.Reload(); err != nil {
			p.logger.Warn("ignoring config change", "file", e.Name, "error", err)
		}
	})
	p.v.WatchConfig()
}

// Reload re-reads the config file and swaps the snapshot.
func (p *Viper) Reload() error {
	if p.v.ConfigFileUsed() != "" {
		if err := p.v.ReadInConfig(); err != nil {
			return err
		}
	}
	s, err := decode(p.v)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.settings = s
	listeners := append([]func(Settings){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
	return nil
}

// OnChange registers fn to run after every successful reload.
func (p *Viper) OnChange(fn func(Settings)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Settings returns the current snapshot.
func (p *Viper) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

func (p *Viper) PoolSize(pool string) int {
	return poolSize(p.Settings(), pool)
}

func (p *Viper) RunnableTimeout() time.Duration     { return p.Settings().RunnableTimeout }
func (p *Viper) MaintenanceInterval() time.Duration { return p.Settings().MaintenanceInterval }
func (p *Viper) SweepInterval() time.Duration       { return p.Settings().SweepInterval }
