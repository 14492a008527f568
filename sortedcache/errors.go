package sortedcache

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt is returned when a segment fails validation.
	ErrCorrupt = errors.New("sortedcache: corrupt segment")

	// ErrOutOfOrder is returned when keys are written to a segment out of order.
	ErrOutOfOrder = errors.New("sortedcache: keys out of order")

	// ErrNoDirs is returned by Open without any cache dir.
	ErrNoDirs = errors.New("sortedcache: no cache dirs")

	// ErrClosed is returned when using an iterator after Close.
	ErrClosed = errors.New("sortedcache: closed")
)

// WriteError reports a blob write that failed after all retries.
type WriteError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sortedcache: write %s failed after %d attempts: %v", e.Name, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
