package handlers

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/poppy/pkg/batch"
	"github.com/Ramsey-B/poppy/pkg/collector"
	appctx "github.com/Ramsey-B/poppy/pkg/context"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/processor"
	"github.com/Ramsey-B/poppy/pkg/validation"
)

const recentJobsLimit = 10

// CollectionRunner starts grid collections
type CollectionRunner interface {
	Begin(ctx context.Context, region string) (*collector.Run, error)
	Execute(ctx context.Context, run *collector.Run) (*collector.Result, error)
	Status() *collector.Status
}

// ProcessingRunner starts raw data processing
type ProcessingRunner interface {
	Begin(ctx context.Context, reprocessAll bool) (*processor.Run, error)
	Execute(ctx context.Context, run *processor.Run) (*processor.Result, error)
}

// JobService reads and maintains batch jobs
type JobService interface {
	GetJob(ctx context.Context, batchID string) (*models.BatchJob, error)
	CleanupStuck(ctx context.Context, timeout time.Duration) (int, error)
	Statistics(ctx context.Context, window time.Duration, jobType models.JobType) (*models.BatchStatistics, error)
	RecentJobs(ctx context.Context, limit int) ([]models.BatchJob, error)
	RunningJobs(ctx context.Context) ([]models.BatchJob, error)
}

// RawCounter summarises the raw store
type RawCounter interface {
	Counts(ctx context.Context) (*models.RawPlaceCounts, error)
}

// BatchHandler handles the batch administration API
type BatchHandler struct {
	collector    CollectionRunner
	processor    ProcessingRunner
	jobs         JobService
	raw          RawCounter
	stuckTimeout time.Duration
	dispatch     Dispatcher
	logger       ectologger.Logger
}

// NewBatchHandler creates a new batch handler. A nil dispatch runs work in a
// detached goroutine.
func NewBatchHandler(
	collector CollectionRunner,
	processor ProcessingRunner,
	jobs JobService,
	raw RawCounter,
	stuckTimeout time.Duration,
	dispatch Dispatcher,
	logger ectologger.Logger,
) *BatchHandler {
	if dispatch == nil {
		dispatch = Background
	}
	if stuckTimeout <= 0 {
		stuckTimeout = batch.DefaultStuckTimeout
	}
	return &BatchHandler{
		collector:    collector,
		processor:    processor,
		jobs:         jobs,
		raw:          raw,
		stuckTimeout: stuckTimeout,
		dispatch:     dispatch,
		logger:       logger,
	}
}

// CleanupResponse reports a stuck job cleanup
type CleanupResponse struct {
	Cleaned int    `json:"cleaned"`
	Timeout string `json:"timeout"`
}

// StatusResponse is the operational view of the pipeline
type StatusResponse struct {
	RawPlaces   models.RawPlaceCounts    `json:"raw_places"`
	RunningJobs []models.BatchJob        `json:"running_jobs"`
	RecentJobs  []models.BatchJob        `json:"recent_jobs"`
	Collection  collector.StatusSnapshot `json:"collection"`
}

// Collect starts a grid collection in the background
// POST /api/v1/admin/batch/collect?region=
func (h *BatchHandler) Collect(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := h.collector.Begin(ctx, c.QueryParam("region"))
	if err != nil {
		return err
	}
	accepted := *run.Job

	h.dispatch(ctx, func(ctx context.Context) {
		ctx = appctx.SetBatchID(ctx, accepted.BatchID)
		ctx = appctx.SetJobType(ctx, string(accepted.JobType))
		result, err := h.collector.Execute(ctx, run)
		if err != nil {
			h.logger.WithContext(ctx).WithError(err).Errorf("Collection %s did not complete", accepted.BatchID)
			return
		}
		h.logger.WithContext(ctx).Infof("Collection %s finished with %s: %d new places, %d failed points",
			result.BatchID, result.Status, result.NewRecords, result.FailedPoints)
	})

	return AcceptedResponse(c, accepted)
}

// Process starts raw data processing in the background
// POST /api/v1/admin/batch/process?reprocess_all=
func (h *BatchHandler) Process(c echo.Context) error {
	ctx := c.Request().Context()

	reprocessAll, err := queryBool(c, "reprocess_all")
	if err != nil {
		return err
	}

	run, err := h.processor.Begin(ctx, reprocessAll)
	if err != nil {
		return err
	}
	accepted := *run.Job

	h.dispatch(ctx, func(ctx context.Context) {
		ctx = appctx.SetBatchID(ctx, accepted.BatchID)
		ctx = appctx.SetJobType(ctx, string(accepted.JobType))
		result, err := h.processor.Execute(ctx, run)
		if err != nil {
			h.logger.WithContext(ctx).WithError(err).Errorf("Processing %s did not complete", accepted.BatchID)
			return
		}
		h.logger.WithContext(ctx).Infof("Processing %s finished with %s: %d/%d records succeeded",
			result.BatchID, result.Status, result.Success, result.Processed)
	})

	return AcceptedResponse(c, accepted)
}

// GetJob returns one batch job
// GET /api/v1/admin/batch/jobs/:batch_id
func (h *BatchHandler) GetJob(c echo.Context) error {
	ctx := c.Request().Context()

	batchID := c.Param("batch_id")
	if batchID == "" {
		return BadRequest("missing batch_id")
	}

	job, err := h.jobs.GetJob(ctx, batchID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, job)
}

// Cleanup fails jobs that have been RUNNING for longer than the stuck timeout
// POST /api/v1/admin/batch/cleanup
func (h *BatchHandler) Cleanup(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := h.jobs.CleanupStuck(ctx, h.stuckTimeout)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to clean up stuck jobs")
		return err
	}

	return SuccessResponse(c, CleanupResponse{Cleaned: n, Timeout: h.stuckTimeout.String()})
}

// Statistics aggregates jobs over a window
// GET /api/v1/admin/batch/statistics?window=&job_type=
func (h *BatchHandler) Statistics(c echo.Context) error {
	ctx := c.Request().Context()

	window := batch.DefaultStatisticsWindow
	if raw := c.QueryParam("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return validation.FieldError("window", "window must be a positive duration such as 24h")
		}
		window = d
	}

	jobType := models.JobType(c.QueryParam("job_type"))
	if jobType != "" && !jobType.IsValid() {
		return validation.FieldError("job_type", "unknown job type %q", jobType)
	}

	stats, err := h.jobs.Statistics(ctx, window, jobType)
	if err != nil {
		return err
	}

	return SuccessResponse(c, stats)
}

// Status reports raw store counts, running and recent jobs and collection state
// GET /api/v1/admin/batch/status
func (h *BatchHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.raw.Counts(ctx)
	if err != nil {
		return err
	}

	running, err := h.jobs.RunningJobs(ctx)
	if err != nil {
		return err
	}

	recent, err := h.jobs.RecentJobs(ctx, recentJobsLimit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, StatusResponse{
		RawPlaces:   *counts,
		RunningJobs: nonNil(running),
		RecentJobs:  nonNil(recent),
		Collection:  h.collector.Status().Snapshot(),
	})
}

func nonNil(jobs []models.BatchJob) []models.BatchJob {
	if jobs == nil {
		return []models.BatchJob{}
	}
	return jobs
}

// RegisterRoutes registers the batch administration routes
func (h *BatchHandler) RegisterRoutes(g *echo.Group) {
	admin := g.Group("/admin/batch")
	admin.POST("/collect", h.Collect)
	admin.POST("/process", h.Process)
	admin.GET("/jobs/:batch_id", h.GetJob)
	admin.POST("/cleanup", h.Cleanup)
	admin.GET("/statistics", h.Statistics)
	admin.GET("/status", h.Status)
}
