package ivarator

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/ivarator/config"
	"github.com/hupe1980/ivarator/scheduler"
	"github.com/hupe1980/ivarator/sortedcache"
	"github.com/hupe1980/ivarator/source"
)

// Config is the immutable description of one predicate scan. Builders
// created from equal configs share task identities, so a rebuilt Builder
// resumes the work of its predecessor.
type Config struct {
	QueryID    string
	ScanID     string
	Field      string
	Splitter   RangeSplitter
	TermNumber int

	Negated        bool
	DatatypeFilter DatatypeFilter
	TimeFilter     *TimeFilter
	ReturnKeyType  ReturnKeyType
	// Unsorted streams matches in index order instead of building a
	// sorted cache per row.
	Unsorted bool

	ScanTimeout     time.Duration
	BufferThreshold int
	MaxOpenFiles    int
	NumRetries      int
	Compression     sortedcache.Compression
	// MaxResults caps the matches of one row; zero or less is unlimited.
	MaxResults    int64
	AllowDirReuse bool

	CompositeSeeker        CompositeSeeker
	CompositeSeekThreshold int
}

// DefaultConfig returns a config with the default tunables. Identity and
// predicate fields are left empty.
func DefaultConfig() Config {
	return Config{}.WithSettings(config.Defaults())
}

// WithSettings returns a copy of c with the tunables taken from s.
func (c Config) WithSettings(s config.Settings) Config {
	c.ScanTimeout = s.ScanTimeout
	c.BufferThreshold = s.BufferThreshold
	c.MaxOpenFiles = s.MaxOpenFiles
	c.NumRetries = s.NumRetries
	c.MaxResults = s.MaxResults
	c.AllowDirReuse = s.AllowDirReuse
	c.CompositeSeekThreshold = s.CompositeSeekThreshold
	if comp, err := sortedcache.ParseCompression(s.Compression); err == nil {
		c.Compression = comp
	}
	return c
}

// Validate checks the config.
func (c Config) Validate() error {
	var errs []error
	if c.QueryID == "" {
		errs = append(errs, errors.New("query id is required"))
	}
	if c.Field == "" {
		errs = append(errs, errors.New("field is required"))
	}
	if c.Splitter == nil {
		errs = append(errs, errors.New("splitter is required"))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scan timeout must be positive, got %s", c.ScanTimeout))
	}
	if c.BufferThreshold <= 0 {
		errs = append(errs, fmt.Errorf("buffer threshold must be positive, got %d", c.BufferThreshold))
	}
	if c.MaxOpenFiles < 2 {
		errs = append(errs, fmt.Errorf("max open files must be at least 2, got %d", c.MaxOpenFiles))
	}
	if c.NumRetries < 0 {
		errs = append(errs, fmt.Errorf("num retries must not be negative, got %d", c.NumRetries))
	}
	if c.CompositeSeekThreshold < 0 {
		errs = append(errs, fmt.Errorf("composite seek threshold must not be negative, got %d", c.CompositeSeekThreshold))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// describe identifies the predicate; it is part of every task identity.
func (c Config) describe() string {
	s := fmt.Sprintf("%s %s", c.Field, c.Splitter)
	if c.Negated {
		s = "!" + s
	}
	return s
}

// Deps are the shared services a Builder runs on.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Sources   *source.Pool
	// Dirs are the cache dirs; the first is the control dir. Unsorted
	// builders do not need any.
	Dirs []sortedcache.Dir
}

func (d Deps) validate(unsorted bool) error {
	var errs []error
	if d.Scheduler == nil {
		errs = append(errs, errors.New("scheduler is required"))
	}
	if d.Sources == nil {
		errs = append(errs, errors.New("source pool is required"))
	}
	if len(d.Dirs) == 0 && !unsorted {
		errs = append(errs, errors.New("at least one cache dir is required"))
	}
	if unsorted && d.Sources != nil && d.Sources.Size() < 2 {
		errs = append(errs, fmt.Errorf("unsorted scans need a source pool of at least 2, got %d", d.Sources.Size()))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
