package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/useraccounts/user-accounts/internal/api/handler"
	"github.com/useraccounts/user-accounts/internal/api/middleware"
	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
)

// route declares one endpoint and the guards in front of it. Guards run in
// a fixed order: rate limit, identity, role.
type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
	auth    bool          // requires a verified bearer token
	roles   []domain.Role // non-empty implies auth
	limiter string        // limiter name; empty means the global limiter
}

const (
	limiterGlobal = "global"
	limiterLogin  = "login"
)

func routes(auth *handler.AuthHandler, users *handler.UserHandler) []route {
	admin := []domain.Role{domain.RoleAdmin}

	return []route{
		{method: http.MethodPost, path: "/auth/register", handler: auth.Register},
		{method: http.MethodPost, path: "/auth/login", handler: auth.Login, limiter: limiterLogin},
		{method: http.MethodGet, path: "/auth/me", handler: auth.Me, auth: true},

		{method: http.MethodPost, path: "/users", handler: users.Create, roles: admin},
		{method: http.MethodGet, path: "/users", handler: users.List, roles: admin},
		{method: http.MethodPost, path: "/users/media", handler: users.UploadMedia, roles: admin},
		{method: http.MethodGet, path: "/users/:id", handler: users.Get, roles: admin},
		{method: http.MethodPatch, path: "/users/:id", handler: users.Update, roles: admin},
		{method: http.MethodDelete, path: "/users/:id", handler: users.Delete, roles: admin},
	}
}

// guards builds the middleware chain for r. A limiter missing from limiters
// is skipped.
func (r route) guards(tokens ports.TokenService, limiters map[string]ports.RateLimiter, log zerolog.Logger) []echo.MiddlewareFunc {
	var chain []echo.MiddlewareFunc

	name := r.limiter
	if name == "" {
		name = limiterGlobal
	}
	if l, ok := limiters[name]; ok && l != nil {
		chain = append(chain, middleware.RateLimit(l, name, log))
	}

	if r.auth || len(r.roles) > 0 {
		chain = append(chain, middleware.Auth(tokens, log))
	}
	if len(r.roles) > 0 {
		chain = append(chain, middleware.RequireRoles(r.roles...))
	}
	return chain
}
