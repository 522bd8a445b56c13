package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/poppy/pkg/collector"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/processor"
	"github.com/Ramsey-B/poppy/pkg/redis"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	if l.held[key] {
		l.mu.Unlock()
		return redis.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

type fakeJobs struct {
	running     map[models.JobType]bool
	failedJobs  int
	cleanups    int
	refreshes   int
	lastTimeout time.Duration
}

func (f *fakeJobs) HasRunningJob(_ context.Context, jobType models.JobType) (bool, error) {
	return f.running[jobType], nil
}

func (f *fakeJobs) Statistics(_ context.Context, window time.Duration, _ models.JobType) (*models.BatchStatistics, error) {
	return &models.BatchStatistics{Window: window.String(), FailedJobs: f.failedJobs}, nil
}

func (f *fakeJobs) CleanupStuck(_ context.Context, timeout time.Duration) (int, error) {
	f.cleanups++
	f.lastTimeout = timeout
	return 0, nil
}

func (f *fakeJobs) RefreshGauges(context.Context, time.Duration) error {
	f.refreshes++
	return nil
}

type fakePipeline struct {
	collects  atomic.Int32
	processes atomic.Int32
	err       error
}

func (f *fakePipeline) Collect(context.Context, string) (*collector.Result, error) {
	f.collects.Add(1)
	return &collector.Result{}, f.err
}

func (f *fakePipeline) Process(context.Context, bool) (*processor.Result, error) {
	f.processes.Add(1)
	return &processor.Result{}, f.err
}

func TestRunTask_Outcomes(t *testing.T) {
	locker := newMemLocker()
	s := NewScheduler(nil, locker, Config{}, noopLogger())
	ctx := context.Background()

	ok := Task{Name: "ok", Interval: time.Hour, Run: func(context.Context) error { return nil }}
	assert.Equal(t, OutcomeSuccess, s.RunTask(ctx, ok))
	assert.Equal(t, []string{LockKeyPrefix + "ok"}, locker.keys)

	failing := Task{Name: "failing", Interval: time.Hour, Run: func(context.Context) error { return errors.New("boom") }}
	assert.Equal(t, OutcomeError, s.RunTask(ctx, failing))

	skipped := Task{Name: "skipped", Interval: time.Hour, Run: func(context.Context) error { return ErrSkipped }}
	assert.Equal(t, OutcomeSkipped, s.RunTask(ctx, skipped))

	locker.held[LockKeyPrefix+"ok"] = true
	assert.Equal(t, OutcomeLocked, s.RunTask(ctx, ok))
}

func TestTasks_SkipWhileRunning(t *testing.T) {
	jobs := &fakeJobs{running: map[models.JobType]bool{models.JobTypeCollect: true, models.JobTypeProcess: true}, failedJobs: 1}
	pipeline := &fakePipeline{}
	s := NewScheduler(nil, newMemLocker(), Config{}, noopLogger())
	ctx := context.Background()

	assert.Equal(t, OutcomeSkipped, s.RunTask(ctx, Task{Name: TaskCollect, Interval: time.Hour, Run: CollectTask(jobs, pipeline)}))
	assert.Equal(t, OutcomeSkipped, s.RunTask(ctx, Task{Name: TaskProcess, Interval: time.Hour, Run: ProcessTask(jobs, pipeline)}))
	assert.Equal(t, OutcomeSkipped, s.RunTask(ctx, Task{Name: TaskRetryFailed, Interval: time.Hour, Run: RetryFailedTask(jobs, pipeline, time.Hour)}))
	assert.Zero(t, pipeline.collects.Load())
	assert.Zero(t, pipeline.processes.Load())
}

func TestRetryFailedTask(t *testing.T) {
	jobs := &fakeJobs{running: map[models.JobType]bool{}}
	pipeline := &fakePipeline{}
	run := RetryFailedTask(jobs, pipeline, 24*time.Hour)

	err := run(context.Background())
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Zero(t, pipeline.processes.Load())

	jobs.failedJobs = 2
	require.NoError(t, run(context.Background()))
	assert.Equal(t, int32(1), pipeline.processes.Load())
}

func TestTasks_DisabledIntervals(t *testing.T) {
	jobs := &fakeJobs{running: map[models.JobType]bool{}}
	pipeline := &fakePipeline{}
	tasks := Tasks(jobs, pipeline, pipeline, Intervals{Cleanup: time.Hour, Gauges: time.Minute})

	s := NewScheduler(tasks, newMemLocker(), Config{}, noopLogger())
	require.Len(t, s.tasks, 2)
	assert.Equal(t, TaskCleanup, s.tasks[0].Name)
	assert.Equal(t, TaskGauges, s.tasks[1].Name)
}

func TestScheduler_RunsDueTasks(t *testing.T) {
	jobs := &fakeJobs{running: map[models.JobType]bool{}}
	pipeline := &fakePipeline{}
	tasks := Tasks(jobs, pipeline, pipeline, Intervals{
		Collect:      time.Hour,
		Cleanup:      time.Hour,
		StuckTimeout: 6 * time.Hour,
	})

	s := NewScheduler(tasks, newMemLocker(), Config{PollInterval: 10 * time.Millisecond, RunOnStart: true}, noopLogger())
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return pipeline.collects.Load() >= 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	// the hourly tasks ran exactly once on start
	assert.Equal(t, int32(1), pipeline.collects.Load())
	assert.Equal(t, 1, jobs.cleanups)
	assert.Equal(t, 6*time.Hour, jobs.lastTimeout)
}

func TestScheduler_WaitsOneIntervalByDefault(t *testing.T) {
	jobs := &fakeJobs{running: map[models.JobType]bool{}}
	pipeline := &fakePipeline{}
	tasks := Tasks(jobs, pipeline, pipeline, Intervals{Collect: time.Hour})

	s := NewScheduler(tasks, newMemLocker(), Config{PollInterval: 5 * time.Millisecond}, noopLogger())
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Zero(t, pipeline.collects.Load())
}
