package batch

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/poppy/pkg/kafka"
	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/repositories"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

const (
	// DefaultStuckTimeout is how long a job may stay RUNNING before cleanup fails it
	DefaultStuckTimeout = 6 * time.Hour
	// DefaultStatisticsWindow is the look-back used by Statistics
	DefaultStatisticsWindow = 24 * time.Hour
	// StuckJobMessage is written on jobs failed by CleanupStuck
	StuckJobMessage = "Job timeout - marked as failed by cleanup"

	batchIDTimeLayout = "20060102150405"
)

// EventPublisher receives job lifecycle events. Publishing is best-effort.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, evt *kafka.JobEventMessage) error
}

// Tracker records every collection and processing run as a batch job row
type Tracker struct {
	repo      repositories.BatchJobRepo
	publisher EventPublisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewTracker creates a new Tracker. publisher may be nil.
func NewTracker(repo repositories.BatchJobRepo, publisher EventPublisher, logger ectologger.Logger) *Tracker {
	return &Tracker{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewBatchID returns a sortable unique id: UTC timestamp plus 6 random hex chars.
func NewBatchID(at time.Time) string {
	return fmt.Sprintf("%s-%s", at.UTC().Format(batchIDTimeLayout), uuid.NewString()[:6])
}

// CreateJob persists a new RUNNING job of the given type
func (t *Tracker) CreateJob(ctx context.Context, jobType models.JobType) (*models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "Tracker.CreateJob")
	defer span.End()

	if !jobType.IsValid() {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	now := t.now()
	job := &models.BatchJob{
		BatchID:   NewBatchID(now),
		JobType:   jobType,
		Status:    models.JobStatusRunning,
		StartedAt: now,
	}
	if err := t.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	metrics.BatchJobsRunning.WithLabelValues(string(jobType)).Inc()
	t.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": job.BatchID,
		"job_type": job.JobType,
	}).Info("Batch job started")
	t.publish(ctx, kafka.EventJobStarted, job)

	return job, nil
}

// HasRunningJob reports whether a job of the type is RUNNING. It is a soft guard:
// two concurrent callers can both observe false.
func (t *Tracker) HasRunningJob(ctx context.Context, jobType models.JobType) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "Tracker.HasRunningJob")
	defer span.End()

	return t.repo.HasRunning(ctx, jobType)
}

// UpdateProgress overwrites the job's counters; the last write wins
func (t *Tracker) UpdateProgress(ctx context.Context, job *models.BatchJob, processed, success, errors int) error {
	ctx, span := tracing.StartSpan(ctx, "Tracker.UpdateProgress")
	defer span.End()

	job.ProcessedCount = processed
	job.SuccessCount = success
	job.ErrorCount = errors
	return t.repo.UpdateProgress(ctx, job.BatchID, processed, success, errors)
}

// Complete moves a RUNNING job to status with its current counters. A job that
// is already terminal is left untouched.
func (t *Tracker) Complete(ctx context.Context, job *models.BatchJob, status models.JobStatus, message string) error {
	ctx, span := tracing.StartSpan(ctx, "Tracker.Complete")
	defer span.End()

	if !status.IsTerminal() {
		return fmt.Errorf("cannot complete batch job %s with status %s", job.BatchID, status)
	}

	completedAt := t.now()
	job.Status = status
	job.CompletedAt = &completedAt
	job.Message = nil
	if message != "" {
		msg := truncate(message, models.MaxJobMessageLength)
		job.Message = &msg
	}

	updated, err := t.repo.Complete(ctx, job)
	if err != nil {
		return err
	}
	if !updated {
		t.logger.WithContext(ctx).Warnf("Batch job %s was already finished, keeping its recorded status", job.BatchID)
		return nil
	}

	duration, _ := job.Duration()
	metrics.BatchJobsRunning.WithLabelValues(string(job.JobType)).Dec()
	metrics.RecordBatchJob(string(job.JobType), string(status), duration.Seconds())
	t.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    job.BatchID,
		"job_type":    job.JobType,
		"status":      status,
		"processed":   job.ProcessedCount,
		"success":     job.SuccessCount,
		"errors":      job.ErrorCount,
		"duration_ms": duration.Milliseconds(),
	}).Info("Batch job finished")
	t.publish(ctx, kafka.EventJobCompleted, job)

	return nil
}

// CompleteWithCounts derives the final status from the job's counters
func (t *Tracker) CompleteWithCounts(ctx context.Context, job *models.BatchJob, message string) error {
	return t.Complete(ctx, job, models.DeriveStatus(job.SuccessCount, job.ErrorCount), message)
}

// Fail marks the job FAILED after an unhandled error
func (t *Tracker) Fail(ctx context.Context, job *models.BatchJob, cause error) error {
	message := "job failed"
	if cause != nil {
		message = cause.Error()
	}
	return t.Complete(ctx, job, models.JobStatusFailed, message)
}

// CleanupStuck fails every RUNNING job started more than timeout ago and
// returns how many were changed
func (t *Tracker) CleanupStuck(ctx context.Context, timeout time.Duration) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Tracker.CleanupStuck")
	defer span.End()

	if timeout <= 0 {
		timeout = DefaultStuckTimeout
	}

	cutoff := t.now().Add(-timeout)
	n, err := t.repo.FailStuck(ctx, cutoff, StuckJobMessage)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		metrics.BatchJobsStuckCleaned.Add(float64(n))
		t.logger.WithContext(ctx).Warnf("Marked %d stuck batch jobs started before %s as failed", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// GetJob returns the job with batchID or a 404
func (t *Tracker) GetJob(ctx context.Context, batchID string) (*models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "Tracker.GetJob")
	defer span.End()

	return t.repo.GetByBatchID(ctx, batchID)
}

// RecentJobs returns the latest jobs, newest first
func (t *Tracker) RecentJobs(ctx context.Context, limit int) ([]models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "Tracker.RecentJobs")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	return t.repo.ListRecent(ctx, limit)
}

// RunningJobs returns every job still RUNNING
func (t *Tracker) RunningJobs(ctx context.Context) ([]models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "Tracker.RunningJobs")
	defer span.End()

	return t.repo.ListRunning(ctx)
}

// Statistics aggregates the jobs started inside window, optionally of one type
func (t *Tracker) Statistics(ctx context.Context, window time.Duration, jobType models.JobType) (*models.BatchStatistics, error) {
	ctx, span := tracing.StartSpan(ctx, "Tracker.Statistics")
	defer span.End()

	if window <= 0 {
		window = DefaultStatisticsWindow
	}

	jobs, err := t.repo.ListSince(ctx, t.now().Add(-window), jobType)
	if err != nil {
		return nil, err
	}

	stats := ComputeStatistics(jobs)
	stats.Window = window.String()
	return stats, nil
}

// RefreshGauges recomputes the job gauges from the last window of jobs
func (t *Tracker) RefreshGauges(ctx context.Context, window time.Duration) error {
	stats, err := t.Statistics(ctx, window, "")
	if err != nil {
		return err
	}

	running, err := t.RunningJobs(ctx)
	if err != nil {
		return err
	}

	perType := map[models.JobType]int{models.JobTypeCollect: 0, models.JobTypeProcess: 0}
	for _, job := range running {
		perType[job.JobType]++
	}
	for jobType, n := range perType {
		metrics.BatchJobsRunning.WithLabelValues(string(jobType)).Set(float64(n))
	}
	metrics.BatchJobsFailedRecent.Set(float64(stats.FailedJobs))
	return nil
}

func (t *Tracker) publish(ctx context.Context, eventType string, job *models.BatchJob) {
	if t.publisher == nil {
		return
	}

	evt := &kafka.JobEventMessage{
		Type:           eventType,
		BatchID:        job.BatchID,
		JobType:        string(job.JobType),
		Status:         string(job.Status),
		TotalCount:     job.TotalCount,
		ProcessedCount: job.ProcessedCount,
		SuccessCount:   job.SuccessCount,
		ErrorCount:     job.ErrorCount,
	}
	if job.Message != nil {
		evt.Message = *job.Message
	}

	if err := t.publisher.PublishJobEvent(ctx, evt); err != nil {
		t.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish %s for batch %s", eventType, job.BatchID)
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
