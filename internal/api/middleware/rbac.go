package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/useraccounts/user-accounts/internal/api/metrics"
	"github.com/useraccounts/user-accounts/internal/core/domain"
)

// RequireRoles enforces role-based access control. It must run after Auth.
// Membership is exact; ADMIN does not imply USER.
func RequireRoles(roles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := IdentityFrom(c)
			if !ok {
				return domain.ErrUnauthenticated
			}
			if _, ok := allowed[identity.Role]; !ok {
				metrics.AccessDeniedTotal.Inc()
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}
