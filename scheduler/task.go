package scheduler

import "time"

// Status is the lifecycle state of a task.
type Status int32

const (
	StatusCreated Status = iota
	StatusResumable
	StatusRunning
	StatusSuspended
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusResumable:
		return "RESUMABLE"
	case StatusRunning:
		return "RUNNING"
	case StatusSuspended:
		return "SUSPENDED"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Task is a unit of work with suspend support.
type Task interface {
	// Name is the deterministic identity used for deduplication.
	Name() string
	// QueryID groups tasks for reporting.
	QueryID() string
	// Run executes the task on a pool worker.
	Run() error
	Status() Status
	// StartedAt returns when the current run started, or the zero time.
	StartedAt() time.Time
	// WaitUntilStarted blocks until the task runs or timeout elapses and
	// reports whether it started.
	WaitUntilStarted(timeout time.Duration) bool
	// Suspend asks a running task to stop at its next safe point and waits
	// up to wait for it to do so. A non-nil reason is returned from Run.
	Suspend(wait time.Duration, reason error) bool
	// Owner returns the component the task works for, or nil.
	Owner() Owner
}

// Owner is the component whose scan a task belongs to.
type Owner interface {
	ScanStart() time.Time
	ScanTimeout() time.Duration
	SetTimedOut()
}
