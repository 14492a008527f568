package ivarator

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ivarator/key"
)

var (
	// ErrMaxResultsExceeded is returned when a row scan matched more keys
	// than Config.MaxResults allows.
	ErrMaxResultsExceeded = errors.New("ivarator: exceeded the maximum result count")

	// ErrCancelled is returned once the owning query is no longer running.
	ErrCancelled = errors.New("ivarator: query cancelled")

	// ErrScanTimeout is returned when a row scan ran past Config.ScanTimeout.
	ErrScanTimeout = errors.New("ivarator: scan timed out")

	// ErrNotResumable is returned by PrepareForResume for tasks that are
	// neither created nor suspended.
	ErrNotResumable = errors.New("ivarator: task is not resumable")

	// ErrInvalidConfig is wrapped by Config.Validate errors.
	ErrInvalidConfig = errors.New("ivarator: invalid config")
)

// ScanError reports a failed row scan.
//
// The first failing task's error can be accessed via errors.Unwrap.
type ScanError struct {
	Row   string
	Task  string
	cause error
}

func (e *ScanError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("ivarator: scan of row %q failed: %v", e.Row, e.cause)
	}
	return fmt.Sprintf("ivarator: scan of row %q failed in task %s: %v", e.Row, e.Task, e.cause)
}

func (e *ScanError) Unwrap() error { return e.cause }

// WaitWindowOverrunError signals that a call ran out of its wait window
// before the row scan finished. It is not a failure: the scan state is kept
// and seeking Range again, on this builder or a new one built from the same
// Config, continues where the suspended tasks stopped.
type WaitWindowOverrunError struct {
	// YieldKey is the last key returned, or the start of the seek range
	// when nothing was returned yet.
	YieldKey key.Key
	// Range is the range to seek to continue.
	Range key.Range
}

func (e *WaitWindowOverrunError) Error() string {
	return fmt.Sprintf("ivarator: wait window overrun, resume at %s", e.YieldKey)
}

// IsOverrun reports whether err is a wait window overrun.
func IsOverrun(err error) bool {
	var o *WaitWindowOverrunError
	return errors.As(err, &o)
}
