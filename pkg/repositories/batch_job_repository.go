package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/poppy/pkg/database"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

const batchJobsTable = "batch_jobs"

var batchJobStruct = database.NewStruct(new(models.BatchJob))

// BatchJobRepository handles the run records of collection and processing jobs
type BatchJobRepository struct {
	*Repository
}

// NewBatchJobRepository creates a new batch job repository
func NewBatchJobRepository(db database.DB, logger ectologger.Logger) *BatchJobRepository {
	return &BatchJobRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new job
func (r *BatchJobRepository) Create(ctx context.Context, job *models.BatchJob) error {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(batchJobsTable).
		Cols("batch_id", "job_type", "status", "total_count", "processed_count", "success_count",
			"error_count", "started_at", "message", "created_at", "updated_at").
		Values(job.BatchID, job.JobType, job.Status, job.TotalCount, job.ProcessedCount, job.SuccessCount,
			job.ErrorCount, job.StartedAt, job.Message, database.Now(), database.Now()).
		Returning("id", "created_at", "updated_at")

	query, args := ib.Build()
	err := r.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": job.BatchID,
			"job_type": job.JobType,
		}).Error("failed to create batch job")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create batch job")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": job.BatchID,
	}).Debugf("Created %s", batchJobsTable)
	return nil
}

// GetByBatchID retrieves a job by its batch id
func (r *BatchJobRepository) GetByBatchID(ctx context.Context, batchID string) (*models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.GetByBatchID")
	defer span.End()

	sb := batchJobStruct.SelectFrom(batchJobsTable)
	sb.Where(sb.Equal("batch_id", batchID))

	query, args := sb.Build()
	var job models.BatchJob
	err := r.conn(ctx).GetContext(ctx, &job, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "batch job %s does not exist", batchID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batchID,
		}).Error("failed to get batch job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get batch job")
	}
	return &job, nil
}

// HasRunning reports whether a job of the type is RUNNING
func (r *BatchJobRepository) HasRunning(ctx context.Context, jobType models.JobType) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.HasRunning")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("1").From(batchJobsTable)
	sb.Where(sb.Equal("job_type", jobType), sb.Equal("status", models.JobStatusRunning))
	sb.Limit(1)

	query, args := sb.Build()
	var one int
	err := r.conn(ctx).GetContext(ctx, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_type": jobType,
		}).Error("failed to check running batch jobs")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check running batch jobs")
	}
	return true, nil
}

// UpdateProgress overwrites the counters of a running job
func (r *BatchJobRepository) UpdateProgress(ctx context.Context, batchID string, processed, success, errorCount int) error {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.UpdateProgress")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(batchJobsTable).
		Set(
			ub.Assign("processed_count", processed),
			ub.Assign("success_count", success),
			ub.Assign("error_count", errorCount),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("batch_id", batchID), ub.Equal("status", models.JobStatusRunning))

	query, args := ub.Build()
	if _, err := r.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batchID,
		}).Error("failed to update batch job progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update batch job progress")
	}
	return nil
}

// Complete writes the final counters, status, message and completion time.
// Only a RUNNING job is updated; false is returned when the job had already
// reached a terminal state.
func (r *BatchJobRepository) Complete(ctx context.Context, job *models.BatchJob) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.Complete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(batchJobsTable).
		Set(
			ub.Assign("status", job.Status),
			ub.Assign("total_count", job.TotalCount),
			ub.Assign("processed_count", job.ProcessedCount),
			ub.Assign("success_count", job.SuccessCount),
			ub.Assign("error_count", job.ErrorCount),
			ub.Assign("completed_at", job.CompletedAt),
			ub.Assign("message", job.Message),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("batch_id", job.BatchID), ub.Equal("status", models.JobStatusRunning))

	query, args := ub.Build()
	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": job.BatchID,
		}).Error("failed to complete batch job")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete batch job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": job.BatchID,
		}).Error("failed to complete batch job")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete batch job")
	}
	return rows > 0, nil
}

// FailStuck marks every job still RUNNING that started before the cutoff as FAILED
func (r *BatchJobRepository) FailStuck(ctx context.Context, startedBefore time.Time, message string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.FailStuck")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(batchJobsTable).
		Set(
			ub.Assign("status", models.JobStatusFailed),
			ub.Assign("completed_at", database.Now()),
			ub.Assign("message", message),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("status", models.JobStatusRunning), ub.LessThan("started_at", startedBefore))

	query, args := ub.Build()
	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"started_before": startedBefore,
		}).Error("failed to clean up stuck batch jobs")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to clean up stuck batch jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to clean up stuck batch jobs")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to clean up stuck batch jobs")
	}
	return int(rows), nil
}

// ListSince returns jobs started at or after since, optionally of one type
func (r *BatchJobRepository) ListSince(ctx context.Context, since time.Time, jobType models.JobType) ([]models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.ListSince")
	defer span.End()

	sb := batchJobStruct.SelectFrom(batchJobsTable)
	conds := []string{sb.GreaterEqualThan("started_at", since)}
	if jobType != "" {
		conds = append(conds, sb.Equal("job_type", jobType))
	}
	sb.Where(conds...)
	sb.OrderBy("started_at").Desc()

	return r.list(ctx, sb, "failed to list batch jobs")
}

// ListRecent returns the most recently started jobs
func (r *BatchJobRepository) ListRecent(ctx context.Context, limit int) ([]models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.ListRecent")
	defer span.End()

	sb := batchJobStruct.SelectFrom(batchJobsTable)
	sb.OrderBy("started_at").Desc()
	sb.Limit(limit)

	return r.list(ctx, sb, "failed to list recent batch jobs")
}

// ListRunning returns every RUNNING job
func (r *BatchJobRepository) ListRunning(ctx context.Context) ([]models.BatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchJobRepository.ListRunning")
	defer span.End()

	sb := batchJobStruct.SelectFrom(batchJobsTable)
	sb.Where(sb.Equal("status", models.JobStatusRunning))
	sb.OrderBy("started_at").Asc()

	return r.list(ctx, sb, "failed to list running batch jobs")
}

func (r *BatchJobRepository) list(ctx context.Context, sb *database.SelectBuilder, failure string) ([]models.BatchJob, error) {
	query, args := sb.Build()
	jobs := []models.BatchJob{}
	if err := r.conn(ctx).SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error(failure)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}

	r.logger.WithContext(ctx).Debugf("Listed %d %s", len(jobs), batchJobsTable)
	return jobs, nil
}
