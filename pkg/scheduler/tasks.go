package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/poppy/pkg/collector"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/processor"
)

// Task names
const (
	TaskCollect     = "collect"
	TaskProcess     = "process"
	TaskRetryFailed = "retry-failed"
	TaskCleanup     = "cleanup-stuck"
	TaskGauges      = "refresh-gauges"
)

// JobService is the part of the batch tracker the scheduled tasks use
type JobService interface {
	HasRunningJob(ctx context.Context, jobType models.JobType) (bool, error)
	Statistics(ctx context.Context, window time.Duration, jobType models.JobType) (*models.BatchStatistics, error)
	CleanupStuck(ctx context.Context, timeout time.Duration) (int, error)
	RefreshGauges(ctx context.Context, window time.Duration) error
}

// Collector runs a grid collection to completion
type Collector interface {
	Collect(ctx context.Context, region string) (*collector.Result, error)
}

// Processor runs raw data processing to completion
type Processor interface {
	Process(ctx context.Context, reprocessAll bool) (*processor.Result, error)
}

// Intervals configures how often each task runs. A zero interval disables the task.
type Intervals struct {
	Collect      time.Duration
	Process      time.Duration
	RetryFailed  time.Duration
	Cleanup      time.Duration
	Gauges       time.Duration
	StuckTimeout time.Duration
	RetryWindow  time.Duration
}

// Tasks builds the pipeline tasks
func Tasks(jobs JobService, c Collector, p Processor, in Intervals) []Task {
	return []Task{
		{Name: TaskCollect, Interval: in.Collect, Run: CollectTask(jobs, c)},
		{Name: TaskProcess, Interval: in.Process, Run: ProcessTask(jobs, p)},
		{Name: TaskRetryFailed, Interval: in.RetryFailed, Run: RetryFailedTask(jobs, p, in.RetryWindow)},
		{Name: TaskCleanup, Interval: in.Cleanup, Run: CleanupTask(jobs, in.StuckTimeout)},
		{Name: TaskGauges, Interval: in.Gauges, Run: GaugesTask(jobs, in.RetryWindow)},
	}
}

func ensureIdle(ctx context.Context, jobs JobService, jobType models.JobType) error {
	running, err := jobs.HasRunningJob(ctx, jobType)
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("%w: a %s job is already running", ErrSkipped, jobType)
	}
	return nil
}

// CollectTask collects every grid point
func CollectTask(jobs JobService, c Collector) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ensureIdle(ctx, jobs, models.JobTypeCollect); err != nil {
			return err
		}
		_, err := c.Collect(ctx, "")
		return err
	}
}

// ProcessTask processes records that have not been processed yet
func ProcessTask(jobs JobService, p Processor) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ensureIdle(ctx, jobs, models.JobTypeProcess); err != nil {
			return err
		}
		_, err := p.Process(ctx, false)
		return err
	}
}

// RetryFailedTask runs processing again when jobs failed inside window
func RetryFailedTask(jobs JobService, p Processor, window time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ensureIdle(ctx, jobs, models.JobTypeProcess); err != nil {
			return err
		}

		stats, err := jobs.Statistics(ctx, window, "")
		if err != nil {
			return err
		}
		if stats.FailedJobs == 0 {
			return fmt.Errorf("%w: no failed jobs in the last %s", ErrSkipped, stats.Window)
		}

		_, err = p.Process(ctx, false)
		return err
	}
}

// CleanupTask fails jobs stuck in RUNNING
func CleanupTask(jobs JobService, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := jobs.CleanupStuck(ctx, timeout)
		return err
	}
}

// GaugesTask refreshes the batch job gauges
func GaugesTask(jobs JobService, window time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return jobs.RefreshGauges(ctx, window)
	}
}
