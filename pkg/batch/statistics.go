package batch

import (
	"sort"

	"github.com/Ramsey-B/poppy/pkg/models"
)

// ComputeStatistics aggregates jobs into status counts, item rates and per-type sums.
// Rates are over items (success or errors / processed), not over jobs.
func ComputeStatistics(jobs []models.BatchJob) *models.BatchStatistics {
	stats := &models.BatchStatistics{ByJobType: []models.JobTypeStatistics{}}
	byType := map[models.JobType]*models.JobTypeStatistics{}

	var processed, success, errors int
	var durationTotal float64
	var finished int

	for i := range jobs {
		job := &jobs[i]
		stats.TotalJobs++

		switch job.Status {
		case models.JobStatusCompleted:
			stats.CompletedJobs++
		case models.JobStatusPartialSuccess:
			stats.PartialJobs++
		case models.JobStatusFailed:
			stats.FailedJobs++
		case models.JobStatusRunning:
			stats.RunningJobs++
		}

		processed += job.ProcessedCount
		success += job.SuccessCount
		errors += job.ErrorCount

		if d, ok := job.Duration(); ok {
			durationTotal += float64(d.Milliseconds())
			finished++
		}

		ts, ok := byType[job.JobType]
		if !ok {
			ts = &models.JobTypeStatistics{JobType: job.JobType}
			byType[job.JobType] = ts
		}
		ts.TotalJobs++
		ts.TotalProcessed += job.ProcessedCount
		ts.TotalSuccess += job.SuccessCount
		ts.TotalErrors += job.ErrorCount
	}

	if processed > 0 {
		stats.SuccessRate = float64(success) / float64(processed)
		stats.ErrorRate = float64(errors) / float64(processed)
	}
	if finished > 0 {
		stats.AverageDurationMs = durationTotal / float64(finished)
	}

	for _, ts := range byType {
		if ts.TotalProcessed > 0 {
			ts.SuccessRate = float64(ts.TotalSuccess) / float64(ts.TotalProcessed)
		}
		stats.ByJobType = append(stats.ByJobType, *ts)
	}
	sort.Slice(stats.ByJobType, func(i, j int) bool {
		return stats.ByJobType[i].JobType < stats.ByJobType[j].JobType
	})

	return stats
}
