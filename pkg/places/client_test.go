package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/poppy/pkg/ratelimit"
	"github.com/Ramsey-B/poppy/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nearbyResponse = `{
  "places": [
    {
      "id": "ChIJ-cafe-1",
      "displayName": {"text": "Blue Bottle Seongsu", "languageCode": "ko"},
      "formattedAddress": "7 Achasan-ro, Seongdong-gu, Seoul",
      "location": {"latitude": 37.5481, "longitude": 127.0457},
      "nationalPhoneNumber": "02-1234-5678",
      "rating": 4.4,
      "types": ["cafe", "food"],
      "regularOpeningHours": {
        "periods": [
          {"open": {"day": 1, "hour": 8, "minute": 0}, "close": {"day": 1, "hour": 20, "minute": 0}}
        ]
      }
    },
    {
      "id": "ChIJ-cafe-2",
      "displayName": {"text": "Night Owl"}
    }
  ]
}`

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff:     ratelimit.Backoff{Initial: time.Millisecond, Multiplier: 2, Max: 5 * time.Millisecond},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, attempts int) (*Client, *int32) {
	t.Helper()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: time.Second,
		Retry:   fastRetry(attempts),
	}, testLogger())
	return client, &calls
}

func TestSearchNearby_Success(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/places:searchNearby", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Equal(t, FieldMask, r.Header.Get("X-Goog-FieldMask"))

		var body searchNearbyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"cafe"}, body.IncludedTypes)
		assert.Equal(t, 20, body.MaxResultCount)
		assert.Equal(t, "ko", body.LanguageCode)
		assert.Equal(t, 37.5, body.LocationRestriction.Circle.Center.Latitude)
		assert.Equal(t, 127.0, body.LocationRestriction.Circle.Center.Longitude)
		assert.Equal(t, 3000.0, body.LocationRestriction.Circle.Radius)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(nearbyResponse))
	}, 3)

	places, err := client.SearchNearby(context.Background(), 37.5, 127.0, 3000)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	first := places[0]
	assert.Equal(t, "ChIJ-cafe-1", first.ID)
	assert.Equal(t, "Blue Bottle Seongsu", first.Name())
	require.NotNil(t, first.Rating)
	assert.Equal(t, 4.4, *first.Rating)
	require.NotNil(t, first.RegularOpeningHours)
	require.Len(t, first.RegularOpeningHours.Periods, 1)
	assert.Equal(t, 8, *first.RegularOpeningHours.Periods[0].Open.Hour)

	assert.Nil(t, places[1].Location)
	assert.Nil(t, places[1].RegularOpeningHours)
}

func TestSearchNearby_EmptyBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, 3)

	places, err := client.SearchNearby(context.Background(), 37.5, 127.0, 1000)
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestSearchNearby_Validation(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, 3)

	cases := []struct {
		name             string
		lat, lng, radius float64
		field            string
	}{
		{"latitude too high", 90.1, 127, 1000, "latitude"},
		{"longitude too low", 37, -180.5, 1000, "longitude"},
		{"zero radius", 37, 127, 0, "radius"},
		{"radius too large", 37, 127, 50001, "radius"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SearchNearby(context.Background(), tc.lat, tc.lng, tc.radius)
			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))

	_, err := client.SearchNearby(context.Background(), 90, 180, 50000)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestSearchNearby_NonRetryableStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusBadRequest, KindBadRequest},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusNotFound, KindNotFound},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad things","status":"INVALID_ARGUMENT"}}`))
			}, 3)

			_, err := client.SearchNearby(context.Background(), 37.5, 127.0, 1000)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, "bad things", apiErr.Message)
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))

			var exhausted *ExhaustedError
			assert.False(t, errors.As(err, &exhausted))
		})
	}
}

func TestSearchNearby_RetriesServerErrorThenSucceeds(t *testing.T) {
	var n int32
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(nearbyResponse))
	}, 3)

	places, err := client.SearchNearby(context.Background(), 37.5, 127.0, 1000)
	require.NoError(t, err)
	assert.Len(t, places, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestSearchNearby_RateLimitedExhausts(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, 3)

	_, err := client.SearchNearby(context.Background(), 37.5, 127.0, 1000)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, KindRateLimited, exhausted.Last.Kind)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestSearchNearby_NetworkErrorReportedAsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, APIKey: "k", Timeout: time.Second, Retry: fastRetry(2)}, testLogger())

	_, err := client.SearchNearby(context.Background(), 37.5, 127.0, 1000)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, KindUnknown, exhausted.Last.Kind)
}

func TestSearchNearby_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond, Retry: fastRetry(1)}, testLogger())

	start := time.Now()
	_, err := client.SearchNearby(context.Background(), 37.5, 127.0, 1000)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, KindUnknown, KindOf(err))
}

func TestAPIErrorToHTTPError(t *testing.T) {
	herr := (&APIError{Kind: KindRateLimited, StatusCode: 429}).ToHTTPError()
	assert.Equal(t, "RATE_LIMITED", herr.Meta["kind"])
	assert.Equal(t, "429", herr.Meta["upstream_status"])

	herr = (&ExhaustedError{Attempts: 3, Last: &APIError{Kind: KindServerError, StatusCode: 500}}).ToHTTPError()
	assert.Equal(t, "3", herr.Meta["attempts"])
}
