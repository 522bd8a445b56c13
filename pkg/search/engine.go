package search

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/poppy/pkg/geo"
	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/repositories"
	"github.com/Ramsey-B/poppy/pkg/tracing"
	"github.com/Ramsey-B/poppy/pkg/validation"
)

const (
	MinRadius       = 100.0
	MaxRadius       = 50000.0
	DefaultRadius   = 1000.0
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultCacheTTL = 5 * time.Minute

	radiusBucket = 100
)

// Cache stores search pages. Implementations report a miss with false.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Request is an "open now" proximity query. An empty Time means now.
type Request struct {
	Lat    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng    float64 `json:"lng" validate:"gte=-180,lte=180"`
	Radius float64 `json:"radius" validate:"gte=100,lte=50000"`
	Time   string  `json:"time"`
	Page   int     `json:"page" validate:"gte=0"`
	Size   int     `json:"size" validate:"gte=1,lte=100"`
}

// Page is one page of venues ordered by distance, then id
type Page struct {
	Content       []models.VenueDistance `json:"content"`
	Page          int                    `json:"page"`
	Size          int                    `json:"size"`
	TotalElements int                    `json:"total_elements"`
	TotalPages    int                    `json:"total_pages"`
}

// Config tunes the engine
type Config struct {
	CacheTTL time.Duration
	Location *time.Location
}

// Engine answers proximity searches for venues open at a given time
type Engine struct {
	venues repositories.VenueRepo
	cache  Cache
	cfg    Config
	logger ectologger.Logger
	now    func() time.Time
}

// NewEngine creates a new Engine. cache may be nil.
func NewEngine(venues repositories.VenueRepo, cache Cache, cfg Config, logger ectologger.Logger) *Engine {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		venues: venues,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CacheKey quantizes the query: a precision-6 geohash cell, the radius floored
// to 100m and the time exactly as the caller sent it.
func CacheKey(req Request) string {
	radius := int(math.Floor(req.Radius/radiusBucket)) * radiusBucket
	return fmt.Sprintf("search:%s:%d:%s:%d:%d",
		geo.Geohash(req.Lat, req.Lng, geo.DefaultGeohashPrecision), radius, req.Time, req.Page, req.Size)
}

// SearchNearby returns the venues within Radius of (Lat, Lng) open at Time on
// today's day of week in the engine's timezone
func (e *Engine) SearchNearby(ctx context.Context, req Request) (*Page, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.SearchNearby")
	defer span.End()

	start := time.Now()
	page, err := e.search(ctx, req)
	switch {
	case err == nil:
		metrics.RecordSearch("success", time.Since(start).Seconds())
	case validation.IsError(err):
		metrics.RecordSearch("invalid", time.Since(start).Seconds())
	default:
		tracing.RecordError(span, err)
		metrics.RecordSearch("error", time.Since(start).Seconds())
	}
	return page, err
}

func (e *Engine) search(ctx context.Context, req Request) (*Page, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	moment := e.now().In(e.cfg.Location)
	at := models.ClockTimeOf(moment)
	if req.Time != "" {
		if at, err = models.ParseClockTime(req.Time); err != nil {
			return nil, validation.FieldError("time", "must be in HH:mm format, got %q", req.Time)
		}
	}

	key := CacheKey(req)
	if page, ok := e.fromCache(ctx, key); ok {
		return page, nil
	}

	query := repositories.OpenVenueQuery{
		Lat:       req.Lat,
		Lng:       req.Lng,
		Radius:    req.Radius,
		DayOfWeek: models.DayOfWeek(moment),
		Time:      at,
		Limit:     req.Size,
		Offset:    req.Page * req.Size,
	}

	if span := tracing.GetActiveSpan(ctx); span != nil {
		span.SetAttributes(
			attribute.Float64("search.radius", req.Radius),
			attribute.Int("search.day_of_week", query.DayOfWeek),
			attribute.String("search.time", at.String()),
		)
	}

	venues, err := e.venues.SearchOpen(ctx, query)
	if err != nil {
		return nil, &Error{Op: "query", Err: err}
	}
	total, err := e.venues.CountOpen(ctx, query)
	if err != nil {
		return nil, &Error{Op: "count", Err: err}
	}

	if venues == nil {
		venues = []models.VenueDistance{}
	}
	page := &Page{
		Content:       venues,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    (total + req.Size - 1) / req.Size,
	}

	e.toCache(ctx, key, page)
	return page, nil
}

// GetVenue returns a venue with its weekly hours
func (e *Engine) GetVenue(ctx context.Context, id int64) (*models.VenueDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.GetVenue")
	defer span.End()

	if id <= 0 {
		return nil, validation.FieldError("id", "must be a positive integer")
	}
	return e.venues.GetDetail(ctx, id)
}

func normalize(req Request) (Request, error) {
	req.Time = strings.TrimSpace(req.Time)
	if req.Radius == 0 {
		req.Radius = DefaultRadius
	}
	if req.Size == 0 {
		req.Size = DefaultPageSize
	}
	req, err := validation.Validate(req)
	if err != nil {
		return req, err
	}
	// the row offset must fit a 32 bit int on every platform
	if maxPage := math.MaxInt32 / req.Size; req.Page > maxPage {
		return req, validation.FieldError("page", "must be at most %d for size %d", maxPage, req.Size)
	}
	return req, nil
}

func (e *Engine) fromCache(ctx context.Context, key string) (*Page, bool) {
	if e.cache == nil {
		return nil, false
	}

	var page Page
	ok, err := e.cache.GetJSON(ctx, key, &page)
	if err != nil {
		metrics.RecordSearchCache("error")
		e.logger.WithContext(ctx).WithError(err).Warnf("Search cache read failed for %s", key)
		return nil, false
	}
	if !ok {
		metrics.RecordSearchCache("miss")
		return nil, false
	}

	metrics.RecordSearchCache("hit")
	return &page, true
}

func (e *Engine) toCache(ctx context.Context, key string, page *Page) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetJSON(ctx, key, page, e.cfg.CacheTTL); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warnf("Search cache write failed for %s", key)
	}
}
