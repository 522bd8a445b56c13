package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/poppy/pkg/database"
	"github.com/Ramsey-B/poppy/pkg/geo"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

const (
	venuesTable         = "venues"
	operatingHoursTable = "venue_operating_hours"
)

var (
	venueStruct = database.NewStruct(new(models.Venue))
	hourStruct  = database.NewStruct(new(models.OperatingHour))
)

// VenueRepository handles venues and their weekly operating hours
type VenueRepository struct {
	*Repository
}

// NewVenueRepository creates a new venue repository
func NewVenueRepository(db database.DB, logger ectologger.Logger) *VenueRepository {
	return &VenueRepository{
		Repository: NewRepository(db, logger),
	}
}

// geographyPoint renders a WGS 84 point. The location column is only ever
// written through this expression so it always agrees with latitude/longitude.
func geographyPoint(p geo.Point) sqlbuilder.Builder {
	return sqlbuilder.Buildf("ST_SetSRID(ST_MakePoint(%v, %v), "+fmt.Sprint(geo.SRID)+")::geography", p.Lng, p.Lat)
}

// SaveWithHours upserts the venue by place id and, when replaceHours is set,
// replaces all of its operating hours. Both happen in one transaction.
func (r *VenueRepository) SaveWithHours(ctx context.Context, venue *models.Venue, hours []models.OperatingHour, replaceHours bool) error {
	ctx, span := tracing.StartSpan(ctx, "VenueRepository.SaveWithHours")
	defer span.End()

	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save venue")
	}
	defer tx.Rollback(ctx)

	if err := r.upsert(ctx, tx, venue); err != nil {
		return err
	}

	if replaceHours {
		if err := r.replaceHours(ctx, tx, venue.ID, hours); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save venue")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"venue_id": venue.ID,
		"place_id": venue.PlaceID,
		"hours":    len(hours),
	}).Debugf("Saved %s", venuesTable)
	return nil
}

func (r *VenueRepository) upsert(ctx context.Context, tx database.Tx, venue *models.Venue) error {
	ib := database.NewInsertBuilder()
	ib.InsertInto(venuesTable).
		Cols("place_id", "name", "address", "phone", "latitude", "longitude", "location",
			"category", "rating", "created_at", "updated_at").
		Values(venue.PlaceID, venue.Name, venue.Address, venue.Phone, venue.Latitude, venue.Longitude,
			geographyPoint(geo.Point{Lat: venue.Latitude, Lng: venue.Longitude}), venue.Category, venue.Rating, database.Now(), database.Now())

	ub := ib.OnConflict("place_id")
	ub.Set(
		ub.Assign("name", database.Excluded("name")),
		ub.Assign("address", database.Excluded("address")),
		ub.Assign("phone", database.Excluded("phone")),
		ub.Assign("latitude", database.Excluded("latitude")),
		ub.Assign("longitude", database.Excluded("longitude")),
		ub.Assign("location", database.Excluded("location")),
		ub.Assign("category", database.Excluded("category")),
		ub.Assign("rating", database.Excluded("rating")),
		ub.Assign("updated_at", database.Now()),
	)
	ib.Returning("id", "created_at", "updated_at")

	query, args := ib.Build()
	err := tx.QueryRowContext(ctx, query, args...).Scan(&venue.ID, &venue.CreatedAt, &venue.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"place_id": venue.PlaceID,
		}).Error("failed to upsert venue")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert venue")
	}
	return nil
}

func (r *VenueRepository) replaceHours(ctx context.Context, tx database.Tx, venueID int64, hours []models.OperatingHour) error {
	db := database.NewDeleteBuilder()
	db.DeleteFrom(operatingHoursTable).Where(db.Equal("venue_id", venueID))

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"venue_id": venueID,
		}).Error("failed to delete operating hours")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace operating hours")
	}

	if len(hours) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(operatingHoursTable).Cols("venue_id", "day_of_week", "open_time", "close_time")
	for _, h := range hours {
		ib.Values(venueID, h.DayOfWeek, h.OpenTime, h.CloseTime)
	}

	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"venue_id": venueID,
			"hours":    len(hours),
		}).Error("failed to insert operating hours")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace operating hours")
	}
	return nil
}

// openVenueFilter builds the WHERE conditions shared by search and count:
// within radius of the point, and an hours row for the day containing the
// time. A row with close <= open crosses midnight and contains t when
// t >= open or t < close; other rows are half-open [open, close).
func openVenueFilter(sb *database.SelectBuilder, q OpenVenueQuery) []string {
	t := sb.Var(q.Time) + "::time"
	within := fmt.Sprintf("ST_DWithin(v.location, %s, %s)", sb.Var(geographyPoint(geo.Point{Lat: q.Lat, Lng: q.Lng})), sb.Var(q.Radius))
	open := fmt.Sprintf(`EXISTS (SELECT 1 FROM %s h WHERE h.venue_id = v.id AND h.day_of_week = %s AND (
		(h.close_time > h.open_time AND %s >= h.open_time AND %s < h.close_time)
		OR (h.close_time <= h.open_time AND (%s >= h.open_time OR %s < h.close_time))))`,
		operatingHoursTable, sb.Var(q.DayOfWeek), t, t, t, t)
	return []string{within, open}
}

// SearchOpen returns the venues matching the query ordered by distance, then id
func (r *VenueRepository) SearchOpen(ctx context.Context, q OpenVenueQuery) ([]models.VenueDistance, error) {
	ctx, span := tracing.StartSpan(ctx, "VenueRepository.SearchOpen")
	defer span.End()

	sb := database.NewSelectBuilder()
	cols := venueStruct.Columns("v")
	cols = append(cols, fmt.Sprintf("ST_Distance(v.location, %s) AS distance_meters", sb.Var(geographyPoint(geo.Point{Lat: q.Lat, Lng: q.Lng}))))
	sb.Select(cols...).From(venuesTable + " v")
	sb.Where(openVenueFilter(sb, q)...)
	sb.OrderBy("distance_meters", "v.id").Asc()
	sb.Limit(q.Limit).Offset(q.Offset)

	query, args := sb.Build()
	venues := []models.VenueDistance{}
	if err := r.conn(ctx).SelectContext(ctx, &venues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"lat":    q.Lat,
			"lng":    q.Lng,
			"radius": q.Radius,
			"day":    q.DayOfWeek,
			"time":   q.Time.String(),
		}).Error("failed to search venues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search venues")
	}

	r.logger.WithContext(ctx).Debugf("Found %d open %s", len(venues), venuesTable)
	return venues, nil
}

// CountOpen counts every venue matching the query, ignoring paging
func (r *VenueRepository) CountOpen(ctx context.Context, q OpenVenueQuery) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "VenueRepository.CountOpen")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(venuesTable + " v")
	sb.Where(openVenueFilter(sb, q)...)

	query, args := sb.Build()
	var count int
	if err := r.conn(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"lat":    q.Lat,
			"lng":    q.Lng,
			"radius": q.Radius,
		}).Error("failed to count venues")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count venues")
	}
	return count, nil
}

// GetDetail returns a venue with its weekly hours ordered by day and opening time
func (r *VenueRepository) GetDetail(ctx context.Context, id int64) (*models.VenueDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "VenueRepository.GetDetail")
	defer span.End()

	sb := venueStruct.SelectFrom(venuesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var detail models.VenueDetail
	err := r.conn(ctx).GetContext(ctx, &detail.Venue, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "venue %d does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"venue_id": id,
		}).Error("failed to get venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get venue")
	}

	hb := hourStruct.SelectFrom(operatingHoursTable)
	hb.Where(hb.Equal("venue_id", id))
	hb.OrderBy("day_of_week", "open_time").Asc()

	query, args = hb.Build()
	detail.OperatingHours = []models.OperatingHour{}
	if err := r.conn(ctx).SelectContext(ctx, &detail.OperatingHours, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"venue_id": id,
		}).Error("failed to list operating hours")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get venue")
	}

	return &detail, nil
}
