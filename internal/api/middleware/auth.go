package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/useraccounts/user-accounts/internal/api/metrics"
	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
)

const identityKey = "identity"

// Auth verifies the bearer token and stores the caller's Identity in the
// echo context.
//
// Tokens are trusted until they expire. The store is not consulted, so a
// role change or deactivation only takes effect once the token lapses.
func Auth(tokens ports.TokenService, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				metrics.TokenRejectionsTotal.WithLabelValues("missing").Inc()
				return domain.ErrUnauthenticated
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				metrics.TokenRejectionsTotal.WithLabelValues("malformed_header").Inc()
				return domain.ErrUnauthenticated
			}

			identity, err := tokens.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				reason := "invalid"
				if errors.Is(err, domain.ErrTokenExpired) {
					reason = "expired"
				}
				metrics.TokenRejectionsTotal.WithLabelValues(reason).Inc()
				log.Debug().Err(err).Str("reason", reason).Msg("token rejected")
				return domain.ErrUnauthenticated
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the Identity attached by Auth.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	identity, ok := c.Get(identityKey).(domain.Identity)
	return identity, ok
}

// WithIdentity attaches identity to c. Used by tests and internal callers
// that authenticate by other means.
func WithIdentity(c echo.Context, identity domain.Identity) {
	c.Set(identityKey, identity)
}
