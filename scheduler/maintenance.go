package scheduler

import (
	"sort"
	"time"

	"github.com/hupe1980/ivarator/config"
)

// idleFactor scales the runnable timeout into the registry idle timeout,
// so entries outlive the tasks they describe.
const idleFactor = 1.1

// Maintain resizes the pools to the provider's current sizes and evicts
// idle registry entries. It runs periodically unless background loops are
// disabled.
func (s *Scheduler) Maintain() {
	for name, p := range s.pools {
		size := s.provider.PoolSize(name)
		if p.resize(size) {
			s.logger.Info("resized pool", "pool", name, "size", size)
			s.opts.metrics.RecordPoolSize(name, size)
		}
	}
	s.evictIdle(s.opts.clock())
}

func (s *Scheduler) evictIdle(now time.Time) {
	ttl := time.Duration(float64(s.provider.RunnableTimeout()) * idleFactor)
	s.registry.Range(func(_ string, f *Future) bool {
		if now.Sub(f.idleSince()) > ttl {
			s.evict(f)
		}
		return true
	})
}

func (s *Scheduler) evict(f *Future) {
	s.unregister(f)
	started := !f.cancelIfQueued(ErrEvicted)
	if started {
		f.Task().Suspend(0, ErrEvicted)
	}
	s.opts.metrics.RecordTaskEvicted(started)
	s.logger.Info("evicted future", "task", f.Name(), "query_id", f.Task().QueryID(), "started", started)
}

// Sweep stops running tasks that exceeded their owner's scan timeout or
// the runnable timeout, and logs pool usage per query.
func (s *Scheduler) Sweep() {
	now := s.opts.clock()
	runnableTimeout := s.provider.RunnableTimeout()
	perQuery := make(map[string]int)

	s.registry.Range(func(_ string, f *Future) bool {
		task := f.Task()
		if task.Status() != StatusRunning {
			return true
		}
		owner := task.Owner()
		switch {
		case owner != nil && now.Sub(owner.ScanStart()) > owner.ScanTimeout():
			owner.SetTimedOut()
			s.timeout(f, "scan timeout exceeded", owner.ScanTimeout())
		case !task.StartedAt().IsZero() && now.Sub(task.StartedAt()) > runnableTimeout:
			if owner != nil {
				owner.SetTimedOut()
			}
			s.timeout(f, "runnable timeout exceeded", runnableTimeout)
		default:
			perQuery[task.QueryID()]++
		}
		return true
	})

	queries := make([]string, 0, len(perQuery))
	for q := range perQuery {
		queries = append(queries, q)
	}
	sort.Strings(queries)
	running := make([]any, 0, 2*len(queries))
	for _, q := range queries {
		running = append(running, q, perQuery[q])
	}
	st := s.Stats()
	scan := st[config.PoolScan]
	s.logger.Info("scan pool state",
		"capacity", scan.Capacity,
		"running", scan.Running,
		"waiting", scan.Waiting,
		"query_tasks", running,
	)
}

func (s *Scheduler) timeout(f *Future, reason string, limit time.Duration) {
	f.Task().Suspend(0, ErrTimedOut)
	s.unregister(f)
	s.opts.metrics.RecordTaskTimedOut()
	s.logger.Warn("timed out task", "task", f.Name(), "query_id", f.Task().QueryID(), "reason", reason, "limit", limit)
}
