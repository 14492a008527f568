package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/ivarator/config"
	"github.com/hupe1980/ivarator/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingTask runs until released or suspended.
type blockingTask struct {
	name     string
	query    string
	owner    Owner
	runs     atomic.Int32
	suspends atomic.Int32
	status   atomic.Int32
	started  atomic.Int64
	startCh  chan struct{}
	release  chan struct{}
	stop     chan error
	once     sync.Once
}

func newBlockingTask(name string) *blockingTask {
	return &blockingTask{
		name:    name,
		query:   "q1",
		startCh: make(chan struct{}),
		release: make(chan struct{}),
		stop:    make(chan error, 1),
	}
}

func (t *blockingTask) Name() string    { return t.name }
func (t *blockingTask) QueryID() string { return t.query }
func (t *blockingTask) Owner() Owner    { return t.owner }
func (t *blockingTask) Status() Status  { return Status(t.status.Load()) }

func (t *blockingTask) StartedAt() time.Time {
	if n := t.started.Load(); n != 0 {
		return time.Unix(0, n)
	}
	return time.Time{}
}

func (t *blockingTask) Run() error {
	t.runs.Add(1)
	t.started.Store(time.Now().UnixNano())
	t.status.Store(int32(StatusRunning))
	t.once.Do(func() { close(t.startCh) })
	select {
	case <-t.release:
		t.status.Store(int32(StatusCompleted))
		return nil
	case err := <-t.stop:
		t.status.Store(int32(StatusSuspended))
		return err
	}
}

func (t *blockingTask) WaitUntilStarted(timeout time.Duration) bool {
	select {
	case <-t.startCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *blockingTask) Suspend(_ time.Duration, reason error) bool {
	t.suspends.Add(1)
	select {
	case t.stop <- reason:
	default:
	}
	return true
}

type fakeOwner struct {
	start    time.Time
	timeout  time.Duration
	timedOut atomic.Bool
}

func (o *fakeOwner) ScanStart() time.Time       { return o.start }
func (o *fakeOwner) ScanTimeout() time.Duration { return o.timeout }
func (o *fakeOwner) SetTimedOut()               { o.timedOut.Store(true) }

func newTestScheduler(t *testing.T, mutate func(*config.Settings), opts ...Option) *Scheduler {
	t.Helper()
	s := config.Defaults()
	s.ScanPoolSize = 1
	s.EvaluationPoolSize = 1
	if mutate != nil {
		mutate(&s)
	}
	sched, err := New(config.NewStatic(s), append([]Option{WithoutBackgroundLoops()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })
	return sched
}

func TestSubmit_Deduplicates(t *testing.T) {
	collector := &metrics.BasicCollector{}
	sched := newTestScheduler(t, nil, WithMetrics(collector))

	task := newBlockingTask("row-a")
	f1, err := sched.Submit(task)
	require.NoError(t, err)
	f2, err := sched.Submit(newBlockingTask("row-a"))
	require.NoError(t, err)
	assert.Same(t, f1, f2)

	require.True(t, task.WaitUntilStarted(time.Second))
	close(task.release)
	require.NoError(t, f1.Wait(t.Context()))
	assert.Equal(t, int32(1), task.runs.Load())

	st := collector.Stats()
	assert.Equal(t, int64(1), st.TasksSubmitted)
	assert.Equal(t, int64(1), st.TasksDeduplicated)
}

func TestRemove_BeforeStart(t *testing.T) {
	sched := newTestScheduler(t, nil)

	first := newBlockingTask("first")
	f1, err := sched.Submit(first)
	require.NoError(t, err)
	require.True(t, first.WaitUntilStarted(time.Second))

	second := newBlockingTask("second")
	f2, err := sched.Submit(second)
	require.NoError(t, err)

	assert.True(t, sched.Remove("second"))
	assert.ErrorIs(t, f2.Wait(t.Context()), ErrRemoved)

	close(first.release)
	require.NoError(t, f1.Wait(t.Context()))
	assert.Equal(t, int32(0), second.runs.Load())

	_, ok := sched.Lookup("second")
	assert.False(t, ok)
}

func TestSuspend_RunningTask(t *testing.T) {
	sched := newTestScheduler(t, nil)

	task := newBlockingTask("row")
	f, err := sched.Submit(task)
	require.NoError(t, err)
	require.True(t, task.WaitUntilStarted(time.Second))

	removed := sched.Suspend(f, true, true)
	assert.False(t, removed)
	require.NoError(t, f.Wait(t.Context()))
	assert.Equal(t, StatusSuspended, task.Status())
	assert.Equal(t, 0, sched.Len())
}

func TestMaintain_EvictsIdleEntries(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	collector := &metrics.BasicCollector{}
	sched := newTestScheduler(t, func(s *config.Settings) {
		s.RunnableTimeout = time.Minute
	}, WithClock(clock), WithMetrics(collector))

	running := newBlockingTask("running")
	f1, err := sched.Submit(running)
	require.NoError(t, err)
	require.True(t, running.WaitUntilStarted(time.Second))

	queued := newBlockingTask("queued")
	f2, err := sched.Submit(queued)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	sched.Maintain()
	assert.Equal(t, int32(1), running.suspends.Load())
	assert.Zero(t, queued.suspends.Load())

	assert.ErrorIs(t, f2.Wait(t.Context()), ErrEvicted)
	assert.ErrorIs(t, f1.Wait(t.Context()), ErrEvicted)
	assert.Equal(t, 0, sched.Len())
	assert.Equal(t, int64(2), collector.Stats().TasksEvicted)
}

func TestMaintain_KeepsTouchedEntries(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	sched := newTestScheduler(t, func(s *config.Settings) {
		s.RunnableTimeout = time.Minute
	}, WithClock(clock))

	task := newBlockingTask("row")
	_, err := sched.Submit(task)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(50 * time.Second)
	mu.Unlock()
	_, ok := sched.Lookup("row")
	require.True(t, ok)

	mu.Lock()
	now = now.Add(30 * time.Second)
	mu.Unlock()
	sched.Maintain()

	assert.Equal(t, 1, sched.Len())
}

func TestSweep_ScanTimeout(t *testing.T) {
	sched := newTestScheduler(t, nil)

	owner := &fakeOwner{start: time.Now().Add(-time.Hour), timeout: time.Minute}
	task := newBlockingTask("row")
	task.owner = owner
	f, err := sched.Submit(task)
	require.NoError(t, err)
	require.True(t, task.WaitUntilStarted(time.Second))

	sched.Sweep()

	assert.ErrorIs(t, f.Wait(t.Context()), ErrTimedOut)
	assert.True(t, owner.timedOut.Load())
	assert.Equal(t, 0, sched.Len())
}

func TestSweep_LeavesHealthyTasks(t *testing.T) {
	sched := newTestScheduler(t, nil)

	task := newBlockingTask("row")
	task.owner = &fakeOwner{start: time.Now(), timeout: time.Hour}
	_, err := sched.Submit(task)
	require.NoError(t, err)
	require.True(t, task.WaitUntilStarted(time.Second))

	sched.Sweep()
	assert.Equal(t, 1, sched.Len())
	close(task.release)
}

type resizingProvider struct {
	*config.Static
	size atomic.Int32
}

func (p *resizingProvider) PoolSize(pool string) int {
	if pool == config.PoolScan {
		return int(p.size.Load())
	}
	return p.Static.PoolSize(pool)
}

func TestMaintain_ResizesPools(t *testing.T) {
	provider := &resizingProvider{Static: config.NewStatic(config.Defaults())}
	provider.size.Store(2)

	collector := &metrics.BasicCollector{}
	sched, err := New(provider, WithoutBackgroundLoops(), WithMetrics(collector))
	require.NoError(t, err)
	defer sched.Close()

	assert.Equal(t, 2, sched.Stats()[config.PoolScan].Capacity)

	provider.size.Store(5)
	sched.Maintain()
	assert.Equal(t, 5, sched.Stats()[config.PoolScan].Capacity)
	assert.Equal(t, 5, collector.Stats().PoolSizes[config.PoolScan])
}

func TestEvaluate_RecoversPanic(t *testing.T) {
	sched := newTestScheduler(t, nil)

	f, err := sched.Evaluate("boom", func() error { panic("bad expression") })
	require.NoError(t, err)

	var pe *PanicError
	require.ErrorAs(t, f.Wait(t.Context()), &pe)
	assert.Equal(t, "boom", pe.Task)

	f, err = sched.Evaluate("ok", func() error { return errors.New("eval failed") })
	require.NoError(t, err)
	assert.EqualError(t, f.Wait(t.Context()), "eval failed")
}

func TestClose(t *testing.T) {
	settings := config.Defaults()
	settings.ScanPoolSize = 1
	sched, err := New(config.NewStatic(settings))
	require.NoError(t, err)

	running := newBlockingTask("running")
	f1, err := sched.Submit(running)
	require.NoError(t, err)
	require.True(t, running.WaitUntilStarted(time.Second))

	f2, err := sched.Submit(newBlockingTask("queued"))
	require.NoError(t, err)

	require.NoError(t, sched.Close())
	assert.ErrorIs(t, f1.Wait(t.Context()), ErrClosed)
	assert.ErrorIs(t, f2.Wait(t.Context()), ErrClosed)

	_, err = sched.Submit(newBlockingTask("late"))
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, sched.Close())
}
