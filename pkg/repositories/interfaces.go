package repositories

import (
	"context"
	"time"

	"github.com/Ramsey-B/poppy/pkg/models"
)

// RawPlaceRepo defines the interface for raw place repository operations
type RawPlaceRepo interface {
	ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, records []models.RawPlace) (int, error)
	CountPending(ctx context.Context, reprocessAll bool) (int, error)
	NextPage(ctx context.Context, reprocessAll bool, afterID int64, limit int) ([]models.RawPlace, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkError(ctx context.Context, id int64, message string) error
	Counts(ctx context.Context) (*models.RawPlaceCounts, error)
}

// VenueRepo defines the interface for venue repository operations
type VenueRepo interface {
	SaveWithHours(ctx context.Context, venue *models.Venue, hours []models.OperatingHour, replaceHours bool) error
	SearchOpen(ctx context.Context, query OpenVenueQuery) ([]models.VenueDistance, error)
	CountOpen(ctx context.Context, query OpenVenueQuery) (int, error)
	GetDetail(ctx context.Context, id int64) (*models.VenueDetail, error)
}

// BatchJobRepo defines the interface for batch job repository operations
type BatchJobRepo interface {
	Create(ctx context.Context, job *models.BatchJob) error
	GetByBatchID(ctx context.Context, batchID string) (*models.BatchJob, error)
	HasRunning(ctx context.Context, jobType models.JobType) (bool, error)
	UpdateProgress(ctx context.Context, batchID string, processed, success, errors int) error
	Complete(ctx context.Context, job *models.BatchJob) (bool, error)
	FailStuck(ctx context.Context, startedBefore time.Time, message string) (int, error)
	ListSince(ctx context.Context, since time.Time, jobType models.JobType) ([]models.BatchJob, error)
	ListRecent(ctx context.Context, limit int) ([]models.BatchJob, error)
	ListRunning(ctx context.Context) ([]models.BatchJob, error)
}

// OpenVenueQuery selects venues within Radius meters of (Lat, Lng) that are
// open at Time on DayOfWeek
type OpenVenueQuery struct {
	Lat       float64
	Lng       float64
	Radius    float64
	DayOfWeek int
	Time      models.ClockTime
	Limit     int
	Offset    int
}
