package search

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/poppy/pkg/geo"
	"github.com/Ramsey-B/poppy/pkg/models"
	"github.com/Ramsey-B/poppy/pkg/repositories"
	"github.com/Ramsey-B/poppy/pkg/validation"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// fakeVenueRepo evaluates the open-venue filter in memory
type fakeVenueRepo struct {
	venues  []models.VenueDetail
	err     error
	queries []repositories.OpenVenueQuery
}

func (f *fakeVenueRepo) SaveWithHours(context.Context, *models.Venue, []models.OperatingHour, bool) error {
	return nil
}

func (f *fakeVenueRepo) matching(q repositories.OpenVenueQuery) []models.VenueDistance {
	center := geo.Point{Lat: q.Lat, Lng: q.Lng}
	var out []models.VenueDistance
	for _, v := range f.venues {
		d := geo.Distance(center, geo.Point{Lat: v.Latitude, Lng: v.Longitude})
		if d > q.Radius {
			continue
		}
		for _, h := range v.OperatingHours {
			if h.DayOfWeek == q.DayOfWeek && h.IsOpenAt(q.Time) {
				out = append(out, models.VenueDistance{Venue: v.Venue, DistanceMeters: d})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeVenueRepo) SearchOpen(_ context.Context, q repositories.OpenVenueQuery) ([]models.VenueDistance, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	all := f.matching(q)
	if q.Offset >= len(all) {
		return nil, nil
	}
	end := q.Offset + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[q.Offset:end], nil
}

func (f *fakeVenueRepo) CountOpen(_ context.Context, q repositories.OpenVenueQuery) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.matching(q)), nil
}

func (f *fakeVenueRepo) GetDetail(_ context.Context, id int64) (*models.VenueDetail, error) {
	for _, v := range f.venues {
		if v.ID == id {
			cp := v
			return &cp, nil
		}
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "venue %d not found", id)
}

type mapCache struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	c.ttls[key] = ttl
	return nil
}

var center = geo.Point{Lat: 37.4979, Lng: 127.0276}

// northOf returns a venue roughly meters north of the center
func northOf(id int64, meters float64, hours ...models.OperatingHour) models.VenueDetail {
	lat := center.Lat + meters/111195.0
	return models.VenueDetail{
		Venue:          models.Venue{ID: id, PlaceID: "p" + string(rune('0'+id)), Name: "venue", Latitude: lat, Longitude: center.Lng},
		OperatingHours: hours,
	}
}

func weekdays(open, close models.ClockTime) []models.OperatingHour {
	var out []models.OperatingHour
	for d := models.Monday; d <= models.Friday; d++ {
		out = append(out, models.OperatingHour{DayOfWeek: d, OpenTime: open, CloseTime: close})
	}
	return out
}

// 2026-10-14 is a Wednesday
var wednesdayNoon = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(repo *fakeVenueRepo, cache Cache) *Engine {
	e := NewEngine(repo, cache, Config{}, noopLogger())
	e.now = func() time.Time { return wednesdayNoon }
	return e
}

func TestSearchNearby_OpenWithinRadius(t *testing.T) {
	nineToSix := weekdays(models.MustClockTime(9, 0), models.MustClockTime(18, 0))
	repo := &fakeVenueRepo{venues: []models.VenueDetail{
		northOf(1, 500, nineToSix...),
		northOf(2, 2000, nineToSix...),
		northOf(3, 500, weekdays(models.MustClockTime(18, 0), models.MustClockTime(23, 0))...),
	}}
	e := newTestEngine(repo, nil)

	page, err := e.SearchNearby(context.Background(), Request{Lat: center.Lat, Lng: center.Lng, Radius: 1000, Time: "14:00"})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, int64(1), page.Content[0].ID)
	assert.InDelta(t, 500, page.Content[0].DistanceMeters, 5)
	assert.Equal(t, 1, page.TotalElements)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, DefaultPageSize, page.Size)

	require.Len(t, repo.queries, 1)
	assert.Equal(t, models.Wednesday, repo.queries[0].DayOfWeek)
}

func TestSearchNearby_OrderingAndPaging(t *testing.T) {
	always := []models.OperatingHour{{DayOfWeek: models.Wednesday, OpenTime: 0, CloseTime: 0}}
	repo := &fakeVenueRepo{venues: []models.VenueDetail{
		northOf(5, 300, always...),
		northOf(2, 300, always...),
		northOf(9, 100, always...),
		northOf(4, 900, always...),
	}}
	e := newTestEngine(repo, nil)

	page, err := e.SearchNearby(context.Background(), Request{Lat: center.Lat, Lng: center.Lng, Radius: 1000, Time: "03:00", Size: 3})
	require.NoError(t, err)
	ids := []int64{}
	for _, v := range page.Content {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []int64{9, 2, 5}, ids)
	assert.Equal(t, 4, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)

	page, err = e.SearchNearby(context.Background(), Request{Lat: center.Lat, Lng: center.Lng, Radius: 1000, Time: "03:00", Page: 1, Size: 3})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, int64(4), page.Content[0].ID)
	assert.Equal(t, 4, page.TotalElements)
}

func TestSearchNearby_DefaultTimeIsNowInZone(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	repo := &fakeVenueRepo{}
	e := NewEngine(repo, nil, Config{Location: seoul}, noopLogger())
	// Wednesday 20:30 UTC is Thursday 05:30 in Seoul
	e.now = func() time.Time { return time.Date(2026, 10, 14, 20, 30, 0, 0, time.UTC) }

	_, err := e.SearchNearby(context.Background(), Request{Lat: center.Lat, Lng: center.Lng, Radius: 500})
	require.NoError(t, err)
	require.Len(t, repo.queries, 1)
	assert.Equal(t, models.Thursday, repo.queries[0].DayOfWeek)
	assert.Equal(t, "05:30", repo.queries[0].Time.String())
}

func TestSearchNearby_Validation(t *testing.T) {
	repo := &fakeVenueRepo{}
	e := newTestEngine(repo, nil)

	cases := map[string]Request{
		"lat":    {Lat: 91, Lng: 127, Radius: 1000},
		"lng":    {Lat: 37, Lng: -181, Radius: 1000},
		"radius": {Lat: 37, Lng: 127, Radius: 50},
		"time":   {Lat: 37, Lng: 127, Radius: 1000, Time: "25:00"},
		"page":   {Lat: 37, Lng: 127, Radius: 1000, Page: -1},
		"size":   {Lat: 37, Lng: 127, Radius: 1000, Size: 101},
	}
	for field, req := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := e.SearchNearby(context.Background(), req)
			require.Error(t, err)
			var verr *validation.Error
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			assert.Contains(t, verr.Fields, field)
		})
	}

	for _, bad := range []string{"2pm", "14:0", "14:00:00", "1400"} {
		_, err := e.SearchNearby(context.Background(), Request{Lat: 37, Lng: 127, Radius: 1000, Time: bad})
		assert.True(t, validation.IsError(err), bad)
	}
	assert.Empty(t, repo.queries)
}

func TestSearchNearby_PageOffsetOverflow(t *testing.T) {
	repo := &fakeVenueRepo{}
	e := newTestEngine(repo, nil)

	for _, page := range []int{math.MaxInt / 50, math.MaxInt32/100 + 1} {
		_, err := e.SearchNearby(context.Background(), Request{Lat: 37, Lng: 127, Radius: 1000, Page: page, Size: 100})
		var verr *validation.Error
		require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
		assert.Contains(t, verr.Fields, "page")
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(verr.ToHTTPError()))
	}
	assert.Empty(t, repo.queries)

	_, err := e.SearchNearby(context.Background(), Request{Lat: 37, Lng: 127, Radius: 1000, Page: math.MaxInt32 / 100, Size: 100})
	assert.NoError(t, err)
}

func TestSearchNearby_StorageErrorIsSearchError(t *testing.T) {
	e := newTestEngine(&fakeVenueRepo{err: errors.New("connection refused")}, nil)

	_, err := e.SearchNearby(context.Background(), Request{Lat: 37, Lng: 127, Radius: 1000, Time: "10:00"})
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.False(t, validation.IsError(err))
	assert.Equal(t, http.StatusServiceUnavailable, httperror.GetStatusCode(serr.ToHTTPError()))
}

func TestSearchNearby_Cache(t *testing.T) {
	repo := &fakeVenueRepo{venues: []models.VenueDetail{
		northOf(1, 200, models.OperatingHour{DayOfWeek: models.Wednesday, OpenTime: models.MustClockTime(9, 0), CloseTime: models.MustClockTime(18, 0)}),
	}}
	cache := newMapCache()
	e := newTestEngine(repo, cache)
	req := Request{Lat: center.Lat, Lng: center.Lng, Radius: 1050, Time: "10:00"}

	first, err := e.SearchNearby(context.Background(), req)
	require.NoError(t, err)
	second, err := e.SearchNearby(context.Background(), Request{Lat: center.Lat, Lng: center.Lng, Radius: 1099, Time: "10:00"})
	require.NoError(t, err)

	assert.Len(t, repo.queries, 1, "same cell, radius bucket and time hit the cache")
	assert.Equal(t, first.TotalElements, second.TotalElements)
	assert.Equal(t, first.Content[0].ID, second.Content[0].ID)
	for _, ttl := range cache.ttls {
		assert.Equal(t, DefaultCacheTTL, ttl)
	}

	// a broken cache is bypassed
	cache.getErr = errors.New("redis down")
	_, err = e.SearchNearby(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, repo.queries, 2)
}

func TestCacheKey(t *testing.T) {
	key := CacheKey(Request{Lat: 37.4979, Lng: 127.0276, Radius: 1999, Time: "14:00", Page: 0, Size: 20})
	assert.Equal(t, "search:wydm6d:1900:14:00:0:20", key)

	assert.Equal(t, key, CacheKey(Request{Lat: 37.4980, Lng: 127.0277, Radius: 1900, Time: "14:00", Size: 20}))
	assert.NotEqual(t, key, CacheKey(Request{Lat: 37.4979, Lng: 127.0276, Radius: 2000, Time: "14:00", Size: 20}))
	assert.NotEqual(t, key, CacheKey(Request{Lat: 37.4979, Lng: 127.0276, Radius: 1999, Time: "14:01", Size: 20}))
}

func TestGetVenue(t *testing.T) {
	e := newTestEngine(&fakeVenueRepo{venues: []models.VenueDetail{northOf(1, 10)}}, nil)

	v, err := e.GetVenue(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ID)

	_, err = e.GetVenue(context.Background(), 2)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	_, err = e.GetVenue(context.Background(), 0)
	assert.True(t, validation.IsError(err))
}
