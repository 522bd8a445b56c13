package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/poppy/pkg/database"
	"github.com/Ramsey-B/poppy/pkg/grid"
	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/places"
	"github.com/Ramsey-B/poppy/pkg/ratelimit"
	"github.com/Ramsey-B/poppy/pkg/repositories"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

const (
	DefaultConcurrency  = 3
	DefaultRequestDelay = time.Second
	DefaultRadius       = 3000.0
)

// PlaceSearcher fetches the places around one coordinate
type PlaceSearcher interface {
	SearchNearby(ctx context.Context, lat, lng, radius float64) ([]places.Place, error)
}

// JobTracker is the part of the batch tracker a run needs
type JobTracker interface {
	HasRunningJob(ctx context.Context, jobType models.JobType) (bool, error)
	CreateJob(ctx context.Context, jobType models.JobType) (*models.BatchJob, error)
	CompleteWithCounts(ctx context.Context, job *models.BatchJob, message string) error
	Fail(ctx context.Context, job *models.BatchJob, cause error) error
}

// Config tunes a collection run
type Config struct {
	Radius       float64
	Concurrency  int
	RequestDelay time.Duration
}

// PointResult is the outcome of one grid point
type PointResult struct {
	Name       string `json:"name"`
	Region     string `json:"region"`
	Fetched    int    `json:"fetched"`
	NewRecords int    `json:"new_records"`
	Error      string `json:"error,omitempty"`
}

// Result summarises one collection run
type Result struct {
	BatchID         string                 `json:"batch_id"`
	Status          models.JobStatus       `json:"status"`
	Points          map[string]PointResult `json:"points"`
	NewRecords      int                    `json:"new_records"`
	SucceededPoints int                    `json:"succeeded_points"`
	FailedPoints    int                    `json:"failed_points"`
}

// Collector harvests raw places across the grid into the raw store
type Collector struct {
	places  PlaceSearcher
	raw     repositories.RawPlaceRepo
	tracker JobTracker
	grid    *grid.Grid
	pacer   ratelimit.Pacer
	status  *Status
	cfg     Config
	logger  ectologger.Logger
}

// NewCollector creates a new Collector. The pacer is shared by all workers so
// requests are spaced by RequestDelay across the whole pool.
func NewCollector(
	searcher PlaceSearcher,
	raw repositories.RawPlaceRepo,
	tracker JobTracker,
	g *grid.Grid,
	status *Status,
	cfg Config,
	logger ectologger.Logger,
) *Collector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = 0
	}
	if status == nil {
		status = NewStatus()
	}

	return &Collector{
		places:  searcher,
		raw:     raw,
		tracker: tracker,
		grid:    g,
		pacer:   ratelimit.NewFixedDelay(cfg.RequestDelay),
		status:  status,
		cfg:     cfg,
		logger:  logger,
	}
}

// Status returns the collection status shared with readers
func (c *Collector) Status() *Status {
	return c.status
}

// Run is a collection that has been registered but not executed yet
type Run struct {
	Job    *models.BatchJob
	Points []grid.Point
}

// Begin resolves the region, refuses to start while another collection is
// running and creates the RUNNING job. An empty region selects every point.
func (c *Collector) Begin(ctx context.Context, region string) (*Run, error) {
	ctx, span := tracing.StartSpan(ctx, "Collector.Begin")
	defer span.End()

	points, err := c.grid.Region(region)
	if err != nil {
		return nil, err
	}

	running, err := c.tracker.HasRunningJob(ctx, models.JobTypeCollect)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "a %s job is already running", models.JobTypeCollect)
	}

	job, err := c.tracker.CreateJob(ctx, models.JobTypeCollect)
	if err != nil {
		return nil, err
	}

	return &Run{Job: job, Points: points}, nil
}

// Execute queries every point of the run with a bounded pool, waits for all of
// them and completes the job. A failed point never aborts its siblings.
func (c *Collector) Execute(ctx context.Context, run *Run) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "Collector.Execute")
	defer span.End()

	job := run.Job
	c.status.start(job.BatchID, time.Now().UTC())
	defer func() { c.status.finish(time.Now().UTC()) }()

	c.logger.WithContext(ctx).Infof("Collecting %d grid points for batch %s (concurrency %d, radius %.0fm)",
		len(run.Points), job.BatchID, c.cfg.Concurrency, c.cfg.Radius)

	result := &Result{
		BatchID: job.BatchID,
		Points:  make(map[string]PointResult, len(run.Points)),
	}

	for pr := range c.collectAll(ctx, job.BatchID, run.Points) {
		result.Points[pr.Name] = pr
		result.NewRecords += pr.NewRecords
		if pr.Error != "" {
			result.FailedPoints++
		} else {
			result.SucceededPoints++
		}
	}

	if err := ctx.Err(); err != nil {
		c.failJob(ctx, job, fmt.Errorf("collection interrupted: %w", err))
		result.Status = job.Status
		return result, err
	}

	job.TotalCount = result.NewRecords
	job.ProcessedCount = len(run.Points)
	job.SuccessCount = result.SucceededPoints
	job.ErrorCount = result.FailedPoints

	message := fmt.Sprintf("collected %d new places from %d/%d grid points", result.NewRecords, result.SucceededPoints, len(run.Points))
	if err := c.tracker.CompleteWithCounts(ctx, job, message); err != nil {
		c.failJob(ctx, job, fmt.Errorf("failed to record completion: %w", err))
		result.Status = job.Status
		return result, err
	}
	result.Status = job.Status

	return result, nil
}

// Collect runs Begin and Execute back to back
func (c *Collector) Collect(ctx context.Context, region string) (*Result, error) {
	run, err := c.Begin(ctx, region)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, run)
}

func (c *Collector) collectAll(ctx context.Context, batchID string, points []grid.Point) <-chan PointResult {
	concurrency := c.cfg.Concurrency
	if concurrency > len(points) {
		concurrency = len(points)
	}

	pointChan := make(chan grid.Point, len(points))
	for _, p := range points {
		pointChan <- p
	}
	close(pointChan)

	results := make(chan PointResult, len(points))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range pointChan {
				results <- c.collectPoint(ctx, batchID, p)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (c *Collector) collectPoint(ctx context.Context, batchID string, p grid.Point) PointResult {
	ctx, span := tracing.StartSpan(ctx, "Collector.collectPoint")
	defer span.End()

	c.status.pointStarted()
	pr := PointResult{Name: p.Name, Region: p.Region}

	fetched, inserted, err := c.fetchAndStore(ctx, batchID, p)
	pr.Fetched, pr.NewRecords = fetched, inserted
	if err != nil {
		tracing.RecordError(span, err)
		pr.Error = err.Error()
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batchID,
			"point":    p.Name,
		}).Warn("Grid point collection failed")
	} else {
		c.logger.WithContext(ctx).Debugf("Grid point %s: %d places, %d new", p.Name, fetched, inserted)
	}

	metrics.RecordCollectorPoint(err == nil, inserted)
	c.status.pointFinished(inserted)
	return pr
}

func (c *Collector) fetchAndStore(ctx context.Context, batchID string, p grid.Point) (int, int, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return 0, 0, err
	}

	found, err := c.places.SearchNearby(ctx, p.Lat, p.Lng, c.cfg.Radius)
	if err != nil {
		return 0, 0, err
	}
	if len(found) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, 0, len(found))
	for _, place := range found {
		if place.ID != "" {
			ids = append(ids, place.ID)
		}
	}

	existing, err := c.raw.ExistingPlaceIDs(ctx, ids)
	if err != nil {
		return len(found), 0, err
	}

	records := make([]models.RawPlace, 0, len(found))
	for _, place := range found {
		if _, seen := existing[place.ID]; seen {
			continue
		}
		record, ok := c.toRawPlace(ctx, batchID, place)
		if !ok {
			continue
		}
		existing[place.ID] = struct{}{}
		records = append(records, record)
	}

	if len(records) == 0 {
		return len(found), 0, nil
	}

	inserted, err := c.raw.InsertBatch(ctx, records)
	if err != nil {
		return len(found), 0, err
	}
	return len(found), inserted, nil
}

// toRawPlace keeps the full payload and the untouched opening hours. Places
// without an id or a location cannot be stored and are skipped.
func (c *Collector) toRawPlace(ctx context.Context, batchID string, place places.Place) (models.RawPlace, bool) {
	if place.ID == "" || place.Location == nil {
		c.logger.WithContext(ctx).Debugf("Skipping place %q without id or location", place.ID)
		return models.RawPlace{}, false
	}

	rawData, err := json.Marshal(place)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to encode place %s", place.ID)
		return models.RawPlace{}, false
	}

	record := models.RawPlace{
		PlaceID:   place.ID,
		BatchID:   batchID,
		Latitude:  place.Location.Latitude,
		Longitude: place.Location.Longitude,
		RawData:   database.NewJSONB(json.RawMessage(rawData)),
	}
	if name := place.Name(); name != "" {
		record.DisplayName = &name
	}
	if place.FormattedAddress != "" {
		addr := place.FormattedAddress
		record.FormattedAddress = &addr
	}
	if place.RegularOpeningHours != nil {
		hours, err := json.Marshal(place.RegularOpeningHours)
		if err == nil {
			record.OpeningHours = database.NewJSONB(json.RawMessage(hours))
		}
	}

	return record, true
}

func (c *Collector) failJob(ctx context.Context, job *models.BatchJob, cause error) {
	// the run context is gone; the job row must still be closed
	if err := c.tracker.Fail(context.WithoutCancel(ctx), job, cause); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to mark batch %s as failed", job.BatchID)
	}
}
