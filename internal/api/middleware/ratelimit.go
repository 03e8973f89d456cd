package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/useraccounts/user-accounts/internal/api/metrics"
	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

// RateLimit counts every request against limiter, keyed by client address.
// name labels the limiter in metrics and logs.
//
// A limiter backend failure lets the request through; the error is logged.
func RateLimit(limiter ports.RateLimiter, name string, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision, err := limiter.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				log.Warn().Err(err).Str("limiter", name).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				metrics.RateLimitedTotal.WithLabelValues(name).Inc()
				return &domain.RateLimitError{RetryAfter: decision.RetryAfter}
			}
			return next(c)
		}
	}
}
