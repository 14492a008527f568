package ivarator

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Liveness reports whether the query owning a scan is still running.
type Liveness interface {
	QueryRunning(queryID string) bool
}

// LivenessFunc adapts a function to Liveness.
type LivenessFunc func(queryID string) bool

// QueryRunning implements Liveness.
func (f LivenessFunc) QueryRunning(queryID string) bool { return f(queryID) }

// cancellation is the shared cancel state of a row scan. The liveness
// collaborator is consulted at most once per interval; once cancelled a
// scan never un-cancels.
type cancellation struct {
	queryID   string
	liveness  Liveness
	sometimes *rate.Sometimes
	cancelled atomic.Bool
}

func newCancellation(queryID string, liveness Liveness, interval time.Duration) *cancellation {
	return &cancellation{
		queryID:   queryID,
		liveness:  liveness,
		sometimes: &rate.Sometimes{Interval: interval},
	}
}

func (c *cancellation) isCancelled() bool {
	if c.cancelled.Load() || c.liveness == nil {
		return c.cancelled.Load()
	}
	c.sometimes.Do(func() {
		if !c.liveness.QueryRunning(c.queryID) {
			c.cancelled.Store(true)
		}
	})
	return c.cancelled.Load()
}

func (c *cancellation) cancel() {
	c.cancelled.Store(true)
}
