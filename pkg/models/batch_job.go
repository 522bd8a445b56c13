package models

import (
	"time"
)

// JobType identifies the pipeline a batch job belongs to
type JobType string

const (
	JobTypeCollect JobType = "COLLECT_RAW_DATA"
	JobTypeProcess JobType = "PROCESS_RAW_DATA"
)

// JobStatus represents the lifecycle state of a batch job
type JobStatus string

const (
	JobStatusRunning        JobStatus = "RUNNING"
	JobStatusCompleted      JobStatus = "COMPLETED"
	JobStatusPartialSuccess JobStatus = "PARTIAL_SUCCESS"
	JobStatusFailed         JobStatus = "FAILED"
)

// MaxJobMessageLength bounds the free-text message column.
const MaxJobMessageLength = 1000

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	return t == JobTypeCollect || t == JobTypeProcess
}

// IsTerminal reports whether s can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s != JobStatusRunning
}

// BatchJob is the run record of one collection or processing execution
type BatchJob struct {
	ID             int64      `db:"id" json:"-"`
	BatchID        string     `db:"batch_id" json:"batch_id"`
	JobType        JobType    `db:"job_type" json:"job_type"`
	Status         JobStatus  `db:"status" json:"status"`
	TotalCount     int        `db:"total_count" json:"total_count"`
	ProcessedCount int        `db:"processed_count" json:"processed_count"`
	SuccessCount   int        `db:"success_count" json:"success_count"`
	ErrorCount     int        `db:"error_count" json:"error_count"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Message        *string    `db:"message" json:"message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (BatchJob) TableName() string {
	return "batch_jobs"
}

// Duration returns how long the job ran, or false while it is still running.
func (j *BatchJob) Duration() (time.Duration, bool) {
	if j.CompletedAt == nil {
		return 0, false
	}
	return j.CompletedAt.Sub(j.StartedAt), true
}

// DeriveStatus maps final counters onto a terminal status: no errors is
// COMPLETED, errors without a single success is FAILED, anything else is
// PARTIAL_SUCCESS.
func DeriveStatus(success, errors int) JobStatus {
	switch {
	case errors == 0:
		return JobStatusCompleted
	case success == 0:
		return JobStatusFailed
	default:
		return JobStatusPartialSuccess
	}
}

// JobTypeStatistics aggregates the counters of one job type over a window
type JobTypeStatistics struct {
	JobType        JobType `json:"job_type"`
	TotalJobs      int     `json:"total_jobs"`
	TotalProcessed int     `json:"total_processed"`
	TotalSuccess   int     `json:"total_success"`
	TotalErrors    int     `json:"total_errors"`
	SuccessRate    float64 `json:"success_rate"`
}

// BatchStatistics aggregates batch jobs started inside a window
type BatchStatistics struct {
	Window            string              `json:"window"`
	TotalJobs         int                 `json:"total_jobs"`
	CompletedJobs     int                 `json:"completed_jobs"`
	PartialJobs       int                 `json:"partial_success_jobs"`
	FailedJobs        int                 `json:"failed_jobs"`
	RunningJobs       int                 `json:"running_jobs"`
	SuccessRate       float64             `json:"success_rate"`
	ErrorRate         float64             `json:"error_rate"`
	AverageDurationMs float64             `json:"average_duration_ms"`
	ByJobType         []JobTypeStatistics `json:"by_job_type"`
}
