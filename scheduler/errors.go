package scheduler

import "errors"

var (
	// ErrClosed is returned when submitting to a closed scheduler.
	ErrClosed = errors.New("scheduler: closed")

	// ErrEvicted completes futures whose registry entry expired.
	ErrEvicted = errors.New("scheduler: future evicted from the registry")

	// ErrRemoved completes futures that were removed before they started.
	ErrRemoved = errors.New("scheduler: task removed before it started")

	// ErrTimedOut is passed to tasks stopped by the timeout sweep.
	ErrTimedOut = errors.New("scheduler: task timed out")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return "scheduler: task " + e.Task + " panicked: " + errorString(e.Value)
}

func errorString(v any) string {
	switch x := v.(type) {
	case error:
		return x.Error()
	case string:
		return x
	default:
		return "non-error panic value"
	}
}
