package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/poppy/pkg/metrics"
	"github.com/Ramsey-B/poppy/pkg/redis"
)

// Limiter decides whether a keyed request may proceed
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
}

// RateLimitConfig configures a per client IP limit
type RateLimitConfig struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// RateLimit rejects clients that exceed cfg.Limit requests per cfg.Window with
// 429. Requests are let through when the limiter itself fails.
func RateLimit(limiter Limiter, cfg RateLimitConfig, logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil || cfg.Limit <= 0 {
				return next(c)
			}

			ctx := c.Request().Context()
			key := cfg.Name + ":" + c.RealIP()
			res, err := limiter.Allow(ctx, key, cfg.Limit, cfg.Window)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(cfg.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))

			if !res.Allowed {
				metrics.RateLimitHits.WithLabelValues(cfg.Name).Inc()
				retry := int(res.RetryIn.Seconds())
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}
