package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/poppy/pkg/httpclient"
	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/tracing"
	"github.com/Ramsey-B/poppy/pkg/validation"
)

const (
	DefaultBaseURL        = "https://places.googleapis.com"
	DefaultLanguageCode   = "ko"
	DefaultMaxResultCount = 20
	// MaxRadiusMeters is the largest search circle the API accepts.
	MaxRadiusMeters = 50000

	searchNearbyPath = "/v1/places:searchNearby"
)

// FieldMask lists the place fields requested from the API.
var FieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.location",
	"places.nationalPhoneNumber",
	"places.rating",
	"places.userRatingCount",
	"places.types",
	"places.regularOpeningHours",
}, ",")

// Config holds the places client configuration
type Config struct {
	BaseURL        string
	APIKey         string
	LanguageCode   string
	IncludedTypes  []string
	MaxResultCount int
	Timeout        time.Duration
	Retry          RetryPolicy
}

// Client searches the places API for venues around a coordinate
type Client struct {
	http   *httpclient.Client
	config Config
	logger ectologger.Logger
}

// NewClient creates a places client, filling unset config with defaults
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	if len(cfg.IncludedTypes) == 0 {
		cfg.IncludedTypes = []string{"cafe"}
	}
	if cfg.MaxResultCount <= 0 {
		cfg.MaxResultCount = DefaultMaxResultCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpclient.DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Timeout

	return &Client{
		http:   httpclient.NewClient(httpCfg, logger),
		config: cfg,
		logger: logger,
	}
}

// SearchNearby returns the places within radius meters of (lat, lng).
// Invalid input fails with a *validation.Error before any request is made.
func (c *Client) SearchNearby(ctx context.Context, lat, lng, radius float64) ([]Place, error) {
	ctx, span := tracing.StartSpan(ctx, "PlacesClient.SearchNearby")
	defer span.End()

	if err := validateSearch(lat, lng, radius); err != nil {
		return nil, err
	}

	body := searchNearbyRequest{
		IncludedTypes:  c.config.IncludedTypes,
		MaxResultCount: c.config.MaxResultCount,
		LanguageCode:   c.config.LanguageCode,
		LocationRestriction: locationRestriction{
			Circle: circle{
				Center: LatLng{Latitude: lat, Longitude: lng},
				Radius: radius,
			},
		},
	}

	var result []Place
	err := c.config.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			metrics.PlacesRetriesTotal.Inc()
			c.logger.WithContext(ctx).Warnf("Retrying places search at (%f, %f) (attempt %d/%d)", lat, lng, attempt, c.config.Retry.MaxAttempts)
		}

		places, err := c.searchOnce(ctx, body)
		if err != nil {
			return err
		}
		result = places
		return nil
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"latitude":  lat,
			"longitude": lng,
			"radius":    radius,
		}).Error("places search failed")
		return nil, err
	}

	c.logger.WithContext(ctx).Debugf("Found %d places at (%f, %f)", len(result), lat, lng)
	return result, nil
}

func (c *Client) searchOnce(ctx context.Context, body searchNearbyRequest) ([]Place, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.http.PostJSON(ctx, c.config.BaseURL+searchNearbyPath, body, map[string]string{
		"X-Goog-Api-Key":   c.config.APIKey,
		"X-Goog-FieldMask": FieldMask,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordPlacesRequest("network_error", elapsed)
		var transportErr *httpclient.TransportError
		if errors.As(err, &transportErr) {
			return nil, &APIError{Kind: KindUnknown, Message: transportErr.Error(), Err: err, temporary: true}
		}
		return nil, &APIError{Kind: KindUnknown, Message: err.Error(), Err: err}
	}

	if !resp.IsSuccess() {
		kind := kindForStatus(resp.StatusCode)
		metrics.RecordPlacesRequest(strings.ToLower(string(kind)), elapsed)
		return nil, &APIError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	var parsed searchNearbyResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		metrics.RecordPlacesRequest("decode_error", elapsed)
		return nil, &APIError{Kind: KindUnknown, StatusCode: resp.StatusCode, Message: fmt.Sprintf("invalid response body: %v", err)}
	}

	metrics.RecordPlacesRequest("success", elapsed)
	return parsed.Places, nil
}

func validateSearch(lat, lng, radius float64) error {
	verr := validation.NewError("invalid places search")
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		verr.AddField("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		verr.AddField("longitude", "must be between -180 and 180")
	}
	if math.IsNaN(radius) || radius <= 0 || radius > MaxRadiusMeters {
		verr.AddField("radius", fmt.Sprintf("must be greater than 0 and at most %d", MaxRadiusMeters))
	}
	if verr.HasFields() {
		return verr
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return "empty response body"
	}
	return msg
}
