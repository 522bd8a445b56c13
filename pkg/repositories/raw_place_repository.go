package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/poppy/pkg/database"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

const rawPlacesTable = "raw_places"

// MaxErrorMessageLength bounds raw_places.error_message.
const MaxErrorMessageLength = 1000

var rawPlaceStruct = database.NewStruct(new(models.RawPlace))

// RawPlaceRepository handles the append-only store of harvested places
type RawPlaceRepository struct {
	*Repository
}

// NewRawPlaceRepository creates a new raw place repository
func NewRawPlaceRepository(db database.DB, logger ectologger.Logger) *RawPlaceRepository {
	return &RawPlaceRepository{
		Repository: NewRepository(db, logger),
	}
}

// ExistingPlaceIDs returns the subset of placeIDs already stored
func (r *RawPlaceRepository) ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]struct{}, error) {
	ctx, span := tracing.StartSpan(ctx, "RawPlaceRepository.ExistingPlaceIDs")
	defer span.End()

	existing := make(map[string]struct{}, len(placeIDs))
	if len(placeIDs) == 0 {
		return existing, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select("place_id").From(rawPlacesTable)
	sb.Where("place_id = ANY(" + sb.Var(pq.Array(placeIDs)) + ")")

	query, args := sb.Build()
	var found []string
	err := r.conn(ctx).SelectContext(ctx, &found, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(placeIDs),
		}).Error("failed to look up existing place ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up existing place ids")
	}

	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// InsertBatch inserts records, skipping any place id already stored, and
// returns how many rows were actually inserted
func (r *RawPlaceRepository) InsertBatch(ctx context.Context, records []models.RawPlace) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "RawPlaceRepository.InsertBatch")
	defer span.End()

	if len(records) == 0 {
		return 0, nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(rawPlacesTable).
		Cols("place_id", "batch_id", "display_name", "formatted_address", "latitude", "longitude",
			"opening_hours", "raw_data", "processed", "created_at", "updated_at")
	for _, rec := range records {
		ib.Values(rec.PlaceID, rec.BatchID, rec.DisplayName, rec.FormattedAddress, rec.Latitude, rec.Longitude,
			rec.OpeningHours, rec.RawData, false, database.Now(), database.Now())
	}
	ib.OnConflictDoNothing("place_id")

	query, args := ib.Build()
	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count":    len(records),
			"batch_id": records[0].BatchID,
		}).Error("failed to insert raw places")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert raw places")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to insert raw places")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert raw places")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": records[0].BatchID,
	}).Debugf("Created %d %s", rows, rawPlacesTable)
	return int(rows), nil
}

func pendingFilter(sb *database.SelectBuilder, reprocessAll bool) []string {
	if reprocessAll {
		return nil
	}
	return []string{sb.Equal("processed", false), sb.IsNull("error_message")}
}

// CountPending counts the records a processing run will visit
func (r *RawPlaceRepository) CountPending(ctx context.Context, reprocessAll bool) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "RawPlaceRepository.CountPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(rawPlacesTable)
	if conds := pendingFilter(sb, reprocessAll); len(conds) > 0 {
		sb.Where(conds...)
	}

	query, args := sb.Build()
	var count int
	if err := r.conn(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"reprocess_all": reprocessAll,
		}).Error("failed to count pending raw places")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending raw places")
	}
	return count, nil
}

// NextPage returns up to limit records with id greater than afterID in id order.
// Paging by key keeps later pages stable while earlier records are flipped to
// processed.
func (r *RawPlaceRepository) NextPage(ctx context.Context, reprocessAll bool, afterID int64, limit int) ([]models.RawPlace, error) {
	ctx, span := tracing.StartSpan(ctx, "RawPlaceRepository.NextPage")
	defer span.End()

	sb := rawPlaceStruct.SelectFrom(rawPlacesTable)
	conds := append(pendingFilter(sb, reprocessAll), sb.GreaterThan("id", afterID))
	sb.Where(conds...)
	sb.OrderBy("id").Asc()
	sb.Limit(limit)

	query, args := sb.Build()
	var records []models.RawPlace
	err := r.conn(ctx).SelectContext(ctx, &records, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"after_id": afterID,
			"limit":    limit,
		}).Error("failed to list raw places")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list raw places")
	}

	r.logger.WithContext(ctx).Debugf("Listed %d %s after id %d", len(records), rawPlacesTable, afterID)
	return records, nil
}

// MarkProcessed flags a record as transformed and clears any earlier error
func (r *RawPlaceRepository) MarkProcessed(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "RawPlaceRepository.MarkProcessed")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(rawPlacesTable).
		Set(ub.Assign("processed", true), ub.Assign("error_message", nil), ub.Assign("updated_at", database.Now())).
		Where(ub.Equal("id", id))

	return r.execOne(ctx, ub.Build, id, "failed to mark raw place processed")
}

// MarkError records why a record could not be transformed
func (r *RawPlaceRepository) MarkError(ctx context.Context, id int64, message string) error {
	ctx, span := tracing.StartSpan(ctx, "RawPlaceRepository.MarkError")
	defer span.End()

	message = truncate(message, MaxErrorMessageLength)

	ub := database.NewUpdateBuilder()
	ub.Update(rawPlacesTable).
		Set(ub.Assign("processed", false), ub.Assign("error_message", message), ub.Assign("updated_at", database.Now())).
		Where(ub.Equal("id", id))

	return r.execOne(ctx, ub.Build, id, "failed to mark raw place error")
}

func (r *RawPlaceRepository) execOne(ctx context.Context, build func() (string, []any), id int64, failure string) error {
	query, args := build()
	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"raw_place_id": id,
		}).Error(failure)
		return httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"raw_place_id": id,
		}).Error(failure)
		return httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "raw place %d does not exist", id)
	}
	return nil
}

// Counts summarises the raw store
func (r *RawPlaceRepository) Counts(ctx context.Context) (*models.RawPlaceCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "RawPlaceRepository.Counts")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		"COUNT(*) AS total",
		"COUNT(*) FILTER (WHERE NOT processed AND error_message IS NULL) AS unprocessed",
		"COUNT(*) FILTER (WHERE error_message IS NOT NULL) AS errored",
	).From(rawPlacesTable)

	query, args := sb.Build()
	var counts models.RawPlaceCounts
	if err := r.conn(ctx).GetContext(ctx, &counts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count raw places")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count raw places")
	}
	return &counts, nil
}
