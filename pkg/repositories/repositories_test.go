package repositories_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/poppy/pkg/database"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getTestDB connects to the PostGIS database named by DB_HOST and resets the
// schema. Tests are skipped when no database is configured.
func getTestDB(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("DB_HOST") == "" {
		t.Skip("Skipping integration test: DB_HOST is not set")
	}

	logger := getTestLogger()
	cfg := database.Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     envOr("DB_PORT", "5432"),
		User:     envOr("DB_USER_NAME", "user"),
		Password: envOr("DB_PASSWORD", "password"),
		Name:     envOr("DB_NAME", "poppy_test"),
		SSLMode:  "disable",
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg, logger)
	require.NoError(t, err, "Failed to connect to test database")

	inst := db.(*database.DatabaseInstance)
	ms := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
	require.NoError(t, ms.MigratePostgres(inst.DB.DB, cfg.Name))

	_, err = db.ExecContext(ctx, "TRUNCATE venue_operating_hours, venues, raw_places, batch_jobs RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err))
}

func strPtr(s string) *string { return &s }

func rawPlace(placeID, batchID string) models.RawPlace {
	return models.RawPlace{
		PlaceID:      placeID,
		BatchID:      batchID,
		DisplayName:  strPtr("cafe " + placeID),
		Latitude:     37.4979,
		Longitude:    127.0276,
		OpeningHours: database.NewJSONB(json.RawMessage(`{"periods":[]}`)),
		RawData:      database.NewJSONB(json.RawMessage(fmt.Sprintf(`{"id":%q}`, placeID))),
	}
}

func TestRawPlaceRepository(t *testing.T) {
	db := getTestDB(t)
	repo := repositories.NewRawPlaceRepository(db, getTestLogger())
	ctx := context.Background()

	inserted, err := repo.InsertBatch(ctx, []models.RawPlace{rawPlace("p1", "b1"), rawPlace("p2", "b1")})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// p2 already exists and is skipped
	inserted, err = repo.InsertBatch(ctx, []models.RawPlace{rawPlace("p2", "b2"), rawPlace("p3", "b2")})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	existing, err := repo.ExistingPlaceIDs(ctx, []string{"p1", "p3", "p9"})
	require.NoError(t, err)
	assert.Len(t, existing, 2)
	assert.Contains(t, existing, "p1")
	assert.NotContains(t, existing, "p9")

	pending, err := repo.CountPending(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	page, err := repo.NextPage(ctx, false, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p1", page[0].PlaceID)
	assert.True(t, page[0].HasOpeningHours())

	require.NoError(t, repo.MarkProcessed(ctx, page[0].ID))
	require.NoError(t, repo.MarkError(ctx, page[1].ID, "venue has no name"))

	next, err := repo.NextPage(ctx, false, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "p3", next[0].PlaceID)

	all, err := repo.CountPending(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, all)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Total)
	assert.Equal(t, int64(1), counts.Unprocessed)
	assert.Equal(t, int64(1), counts.Errored)

	assertStatus(t, repo.MarkProcessed(ctx, 999999), http.StatusNotFound)
}

func hour(t *testing.T, day int, open, close string) models.OperatingHour {
	o, err := models.ParseClockTime(open)
	require.NoError(t, err)
	c, err := models.ParseClockTime(close)
	require.NoError(t, err)
	h, err := models.NewOperatingHour(day, o, c)
	require.NoError(t, err)
	return h
}

func TestVenueRepository_SearchOpen(t *testing.T) {
	db := getTestDB(t)
	repo := repositories.NewVenueRepository(db, getTestLogger())
	ctx := context.Background()

	// A is ~200m from the center, B ~1.5km, C is closed on Monday night
	a := &models.Venue{PlaceID: "A", Name: "A", Latitude: 37.4997, Longitude: 127.0276}
	b := &models.Venue{PlaceID: "B", Name: "B", Latitude: 37.5114, Longitude: 127.0276}
	c := &models.Venue{PlaceID: "C", Name: "C", Latitude: 37.4980, Longitude: 127.0277}

	require.NoError(t, repo.SaveWithHours(ctx, a, []models.OperatingHour{hour(t, models.Monday, "09:00", "22:00")}, true))
	require.NoError(t, repo.SaveWithHours(ctx, b, []models.OperatingHour{hour(t, models.Monday, "20:00", "02:00")}, true))
	require.NoError(t, repo.SaveWithHours(ctx, c, []models.OperatingHour{hour(t, models.Monday, "08:00", "18:00")}, true))

	at := func(s string) models.ClockTime {
		ct, err := models.ParseClockTime(s)
		require.NoError(t, err)
		return ct
	}

	q := repositories.OpenVenueQuery{Lat: 37.4979, Lng: 127.0276, Radius: 500, DayOfWeek: models.Monday, Time: at("21:00"), Limit: 20}
	venues, err := repo.SearchOpen(ctx, q)
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, "A", venues[0].PlaceID)
	assert.InDelta(t, 200, venues[0].DistanceMeters, 20)

	q.Radius = 2000
	venues, err = repo.SearchOpen(ctx, q)
	require.NoError(t, err)
	require.Len(t, venues, 2)
	assert.Equal(t, "A", venues[0].PlaceID)
	assert.Equal(t, "B", venues[1].PlaceID)

	count, err := repo.CountOpen(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// the close minute is outside the interval
	q.Time = at("22:00")
	venues, err = repo.SearchOpen(ctx, q)
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, "B", venues[0].PlaceID)

	// crossing interval evaluated on the same day's row
	q.Time = at("01:00")
	venues, err = repo.SearchOpen(ctx, q)
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, "B", venues[0].PlaceID)

	q.DayOfWeek = models.Tuesday
	venues, err = repo.SearchOpen(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, venues)

	// paging keeps the total
	q = repositories.OpenVenueQuery{Lat: 37.4979, Lng: 127.0276, Radius: 2000, DayOfWeek: models.Monday, Time: at("21:00"), Limit: 1, Offset: 1}
	venues, err = repo.SearchOpen(ctx, q)
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, "B", venues[0].PlaceID)
}

func TestVenueRepository_SaveReplacesHours(t *testing.T) {
	db := getTestDB(t)
	repo := repositories.NewVenueRepository(db, getTestLogger())
	ctx := context.Background()

	v := &models.Venue{PlaceID: "X", Name: "Old", Latitude: 37.5, Longitude: 127.0}
	require.NoError(t, repo.SaveWithHours(ctx, v, []models.OperatingHour{
		hour(t, models.Monday, "09:00", "18:00"),
		hour(t, models.Tuesday, "09:00", "18:00"),
	}, true))
	firstID := v.ID
	require.NotZero(t, firstID)

	v2 := &models.Venue{PlaceID: "X", Name: "New", Latitude: 37.5, Longitude: 127.0}
	require.NoError(t, repo.SaveWithHours(ctx, v2, []models.OperatingHour{hour(t, models.Friday, "10:00", "20:00")}, true))
	assert.Equal(t, firstID, v2.ID)

	detail, err := repo.GetDetail(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "New", detail.Name)
	require.Len(t, detail.OperatingHours, 1)
	assert.Equal(t, models.Friday, detail.OperatingHours[0].DayOfWeek)
	assert.Equal(t, "10:00", detail.OperatingHours[0].OpenTime.String())

	// without a payload the existing hours are kept
	v3 := &models.Venue{PlaceID: "X", Name: "Newer", Latitude: 37.5, Longitude: 127.0}
	require.NoError(t, repo.SaveWithHours(ctx, v3, nil, false))
	detail, err = repo.GetDetail(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "Newer", detail.Name)
	assert.Len(t, detail.OperatingHours, 1)

	_, err = repo.GetDetail(ctx, 424242)
	assertStatus(t, err, http.StatusNotFound)
}

func TestBatchJobRepository(t *testing.T) {
	db := getTestDB(t)
	repo := repositories.NewBatchJobRepository(db, getTestLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	stuck := &models.BatchJob{BatchID: "stuck", JobType: models.JobTypeCollect, Status: models.JobStatusRunning, StartedAt: now.Add(-7 * time.Hour)}
	fresh := &models.BatchJob{BatchID: "fresh", JobType: models.JobTypeProcess, Status: models.JobStatusRunning, StartedAt: now.Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, stuck))
	require.NoError(t, repo.Create(ctx, fresh))
	assert.NotZero(t, stuck.ID)

	running, err := repo.HasRunning(ctx, models.JobTypeCollect)
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, repo.UpdateProgress(ctx, "fresh", 10, 9, 1))

	n, err := repo.FailStuck(ctx, now.Add(-6*time.Hour), "Job timeout - marked as failed by cleanup")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByBatchID(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)

	got, err = repo.GetByBatchID(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 9, got.SuccessCount)

	completedAt := time.Now().UTC()
	got.Status = models.JobStatusPartialSuccess
	got.CompletedAt = &completedAt
	ok, err := repo.Complete(ctx, got)
	require.NoError(t, err)
	assert.True(t, ok)

	// terminal jobs are never completed twice
	got.Status = models.JobStatusCompleted
	ok, err = repo.Complete(ctx, got)
	require.NoError(t, err)
	assert.False(t, ok)

	jobs, err := repo.ListSince(ctx, now.Add(-24*time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = repo.ListSince(ctx, now.Add(-24*time.Hour), models.JobTypeProcess)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusPartialSuccess, jobs[0].Status)

	recent, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh", recent[0].BatchID)

	runningJobs, err := repo.ListRunning(ctx)
	require.NoError(t, err)
	assert.Empty(t, runningJobs)

	_, err = repo.GetByBatchID(ctx, "missing")
	assertStatus(t, err, http.StatusNotFound)
}
