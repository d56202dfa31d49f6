package middleware

import (
	"net/http"

	"github.com/FASALGAF00R/Campuscore-backend/limiter"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	// KeyFunc picks the bucket. An empty key falls back to the client IP.
	KeyFunc func(c echo.Context) string
	Logger  *zap.Logger
}

// UserKey buckets by authenticated user.
func UserKey(c echo.Context) string {
	if user, ok := CurrentUser(c); ok {
		return "user:" + user.ID
	}
	return ""
}

// NewRateLimitMiddleware lets requests through when Redis is unreachable.
func NewRateLimitMiddleware(manager *limiter.Manager, cfg RateLimitConfig) echo.MiddlewareFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var key string
			if cfg.KeyFunc != nil {
				key = cfg.KeyFunc(c)
			}
			if key == "" {
				key = "ip:" + c.RealIP()
			}

			allowed, err := manager.Allow(c.Request().Context(), key)
			if err != nil {
				logger.Warn("rate_limit_unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			if !allowed {
				return c.JSON(http.StatusTooManyRequests, errorBody("rate_limited", "too many requests"))
			}
			return next(c)
		}
	}
}
