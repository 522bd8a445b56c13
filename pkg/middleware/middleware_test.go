package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pctx "github.com/Ramsey-B/poppy/pkg/context"
	"github.com/Ramsey-B/poppy/pkg/middleware"
	"github.com/Ramsey-B/poppy/pkg/redis"
	"github.com/Ramsey-B/poppy/pkg/search"
	"github.com/Ramsey-B/poppy/pkg/validation"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newServer(handler echo.HandlerFunc, mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(noopLogger())
	e.Use(middleware.Context())
	e.GET("/test", handler, mw...)
	return e
}

func do(e *echo.Echo, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponse {
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestContext_RequestID(t *testing.T) {
	var seen string
	e := newServer(func(c echo.Context) error {
		seen = pctx.GetRequestID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	rec := do(e, map[string]string{echo.HeaderXRequestID: "req-1"})
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))

	rec = do(e, nil)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))
}

func TestError_Mapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{
			name:    "validation error",
			err:     validation.FieldError("lat", "lat must be between -90 and 90"),
			code:    http.StatusBadRequest,
			message: "lat must be between -90 and 90",
		},
		{
			name:    "wrapped validation error",
			err:     fmt.Errorf("search: %w", validation.NewError("bad time")),
			code:    http.StatusBadRequest,
			message: "bad time",
		},
		{
			name:    "search storage error",
			err:     &search.Error{Op: "query", Err: errors.New("connection reset")},
			code:    http.StatusServiceUnavailable,
			message: "search is temporarily unavailable",
		},
		{
			name:    "echo error",
			err:     echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"),
			code:    http.StatusTooManyRequests,
			message: "rate limit exceeded",
		},
		{
			name:    "http error",
			err:     httperror.NewHTTPError(http.StatusNotFound, "venue not found"),
			code:    http.StatusNotFound,
			message: "venue not found",
		},
		{
			name:    "unknown error",
			err:     errors.New("pq: relation does not exist"),
			code:    http.StatusInternalServerError,
			message: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(func(c echo.Context) error { return tt.err })
			rec := do(e, map[string]string{echo.HeaderXRequestID: "req-2"})

			assert.Equal(t, tt.code, rec.Code)
			resp := decode(t, rec)
			assert.Contains(t, resp.Message, tt.message)
			assert.Equal(t, "req-2", resp.RequestID)
		})
	}
}

func TestError_FieldMeta(t *testing.T) {
	e := newServer(func(c echo.Context) error {
		return validation.FieldError("radius", "radius must be between 100 and 50000")
	})
	resp := decode(t, do(e, nil))
	assert.Equal(t, "radius must be between 100 and 50000", resp.Meta["radius"])
}

type fakeLimiter struct {
	calls   int
	allowed int
	err     error
	keys    []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int64, _ time.Duration) (*redis.RateLimitResult, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	if f.calls > f.allowed {
		return &redis.RateLimitResult{Allowed: false, RetryIn: 1500 * time.Millisecond}, nil
	}
	return &redis.RateLimitResult{Allowed: true, Remaining: limit - int64(f.calls)}, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: 2}
	cfg := middleware.RateLimitConfig{Name: "search", Limit: 2, Window: time.Minute}
	e := newServer(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RateLimit(limiter, cfg, noopLogger()))

	header := map[string]string{echo.HeaderXRealIP: "10.0.0.1"}
	rec := do(e, header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do(e, header).Code)

	rec = do(e, header)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, decode(t, rec).Message, "rate limit exceeded")
	assert.Equal(t, "search:10.0.0.1", limiter.keys[0])
}

func TestRateLimit_LimiterDown(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis: connection refused")}
	cfg := middleware.RateLimitConfig{Name: "search", Limit: 1, Window: time.Minute}
	e := newServer(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RateLimit(limiter, cfg, noopLogger()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, nil).Code)
	}
}
