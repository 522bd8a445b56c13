package processor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/ratelimit"
	"github.com/Ramsey-B/poppy/pkg/repositories"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

const (
	DefaultPageSize  = 100
	DefaultPageDelay = 100 * time.Millisecond
)

// JobTracker is the part of the batch tracker a processing run needs
type JobTracker interface {
	HasRunningJob(ctx context.Context, jobType models.JobType) (bool, error)
	CreateJob(ctx context.Context, jobType models.JobType) (*models.BatchJob, error)
	UpdateProgress(ctx context.Context, job *models.BatchJob, processed, success, errors int) error
	CompleteWithCounts(ctx context.Context, job *models.BatchJob, message string) error
	Fail(ctx context.Context, job *models.BatchJob, cause error) error
}

// Config tunes a processing run
type Config struct {
	PageSize  int
	PageDelay time.Duration
}

// Result summarises one processing run
type Result struct {
	BatchID   string           `json:"batch_id"`
	Status    models.JobStatus `json:"status"`
	Total     int              `json:"total"`
	Processed int              `json:"processed"`
	Success   int              `json:"success"`
	Errors    int              `json:"errors"`
	Pages     int              `json:"pages"`
}

// Processor normalizes raw places into venues and their operating hours
type Processor struct {
	raw     repositories.RawPlaceRepo
	venues  repositories.VenueRepo
	tracker JobTracker
	cfg     Config
	logger  ectologger.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(raw repositories.RawPlaceRepo, venues repositories.VenueRepo, tracker JobTracker, cfg Config, logger ectologger.Logger) *Processor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	return &Processor{
		raw:     raw,
		venues:  venues,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run is a processing run that has been registered but not executed yet
type Run struct {
	Job          *models.BatchJob
	ReprocessAll bool
}

// Begin refuses to start while another processing job runs, then creates the
// RUNNING job with the number of records it is expected to cover.
func (p *Processor) Begin(ctx context.Context, reprocessAll bool) (*Run, error) {
	ctx, span := tracing.StartSpan(ctx, "Processor.Begin")
	defer span.End()

	running, err := p.tracker.HasRunningJob(ctx, models.JobTypeProcess)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "a %s job is already running", models.JobTypeProcess)
	}

	job, err := p.tracker.CreateJob(ctx, models.JobTypeProcess)
	if err != nil {
		return nil, err
	}

	total, err := p.raw.CountPending(ctx, reprocessAll)
	if err != nil {
		p.fail(ctx, job, err)
		return nil, err
	}
	job.TotalCount = total

	return &Run{Job: job, ReprocessAll: reprocessAll}, nil
}

// Execute walks the source records page by page. Records of a page are
// processed concurrently, pages run one after another with PageDelay between
// them. Per-record failures are recorded on the record and never stop the run.
func (p *Processor) Execute(ctx context.Context, run *Run) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "Processor.Execute")
	defer span.End()

	job := run.Job
	result := &Result{BatchID: job.BatchID, Total: job.TotalCount}

	p.logger.WithContext(ctx).Infof("Processing %d raw places for batch %s (reprocess all: %t)", job.TotalCount, job.BatchID, run.ReprocessAll)

	var afterID int64
	for {
		page, err := p.raw.NextPage(ctx, run.ReprocessAll, afterID, p.cfg.PageSize)
		if err != nil {
			return p.abort(ctx, job, result, err)
		}
		if len(page) == 0 {
			break
		}

		success, failed := p.processPage(ctx, page)
		result.Pages++
		result.Processed += len(page)
		result.Success += success
		result.Errors += failed

		if err := p.tracker.UpdateProgress(ctx, job, result.Processed, result.Success, result.Errors); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warnf("Failed to record progress for batch %s", job.BatchID)
		}
		p.logger.WithContext(ctx).Infof("Processing progress %d/%d, success: %d, errors: %d",
			result.Processed, result.Total, result.Success, result.Errors)

		afterID = page[len(page)-1].ID
		if len(page) < p.cfg.PageSize {
			break
		}
		if err := ratelimit.Sleep(ctx, p.cfg.PageDelay); err != nil {
			return p.abort(ctx, job, result, err)
		}
	}

	job.ProcessedCount = result.Processed
	job.SuccessCount = result.Success
	job.ErrorCount = result.Errors
	if result.Processed > job.TotalCount {
		job.TotalCount = result.Processed
		result.Total = result.Processed
	}

	message := fmt.Sprintf("processed %d raw places: %d succeeded, %d failed", result.Processed, result.Success, result.Errors)
	if err := p.tracker.CompleteWithCounts(ctx, job, message); err != nil {
		p.fail(ctx, job, fmt.Errorf("failed to record completion: %w", err))
		result.Status = job.Status
		return result, err
	}
	result.Status = job.Status

	return result, nil
}

// Process runs Begin and Execute back to back
func (p *Processor) Process(ctx context.Context, reprocessAll bool) (*Result, error) {
	run, err := p.Begin(ctx, reprocessAll)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, run)
}

func (p *Processor) processPage(ctx context.Context, page []models.RawPlace) (int, int) {
	ok := make([]bool, len(page))

	var wg sync.WaitGroup
	for i := range page {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok[i] = p.processItem(ctx, &page[i])
		}(i)
	}
	wg.Wait()

	success := 0
	for _, v := range ok {
		if v {
			success++
		}
	}
	return success, len(page) - success
}

func (p *Processor) processItem(ctx context.Context, raw *models.RawPlace) bool {
	ctx, span := tracing.StartSpan(ctx, "Processor.processItem")
	defer span.End()

	if err := p.saveVenue(ctx, raw); err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"place_id": raw.PlaceID,
		}).Warn("Failed to process raw place")

		if markErr := p.raw.MarkError(ctx, raw.ID, err.Error()); markErr != nil {
			p.logger.WithContext(ctx).WithError(markErr).Errorf("Failed to record error on raw place %s", raw.PlaceID)
		}
		metrics.RecordProcessorItem(false)
		return false
	}

	if err := p.raw.MarkProcessed(ctx, raw.ID); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to mark raw place %s as processed", raw.PlaceID)
		metrics.RecordProcessorItem(false)
		return false
	}

	metrics.RecordProcessorItem(true)
	return true
}

// saveVenue stores the venue and, when the record carries an hours payload,
// replaces its hours in the same transaction
func (p *Processor) saveVenue(ctx context.Context, raw *models.RawPlace) error {
	venue, err := BuildVenue(raw)
	if err != nil {
		return err
	}

	var hours []models.OperatingHour
	replaceHours := raw.HasOpeningHours()
	if replaceHours {
		hours, err = ParseOpeningHours(raw.OpeningHours.Data)
		if err != nil {
			return fmt.Errorf("raw place %s: %w", raw.PlaceID, err)
		}
	}

	return p.venues.SaveWithHours(ctx, venue, hours, replaceHours)
}

func (p *Processor) abort(ctx context.Context, job *models.BatchJob, result *Result, cause error) (*Result, error) {
	job.ProcessedCount = result.Processed
	job.SuccessCount = result.Success
	job.ErrorCount = result.Errors
	p.fail(ctx, job, cause)
	result.Status = job.Status
	return result, cause
}

func (p *Processor) fail(ctx context.Context, job *models.BatchJob, cause error) {
	p.logger.WithContext(ctx).WithError(cause).Errorf("Processing batch %s failed", job.BatchID)
	if err := p.tracker.Fail(context.WithoutCancel(ctx), job, cause); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to mark batch %s as failed", job.BatchID)
	}
}
