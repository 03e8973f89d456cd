package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/useraccounts/user-accounts/internal/core/domain"
)

func newRBACContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRoles_Allows(t *testing.T) {
	c, rec := newRBACContext()
	WithIdentity(c, domain.Identity{ID: 1, Role: domain.RoleAdmin})

	called := false
	handler := RequireRoles(domain.RoleAdmin)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next handler not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRoles_AnyOfSet(t *testing.T) {
	c, _ := newRBACContext()
	WithIdentity(c, domain.Identity{ID: 1, Role: domain.RoleUser})

	handler := RequireRoles(domain.RoleAdmin, domain.RoleUser)(func(c echo.Context) error { return nil })
	if err := handler(c); err != nil {
		t.Fatalf("expected USER to pass {ADMIN, USER}, got %v", err)
	}
}

func TestRequireRoles_Forbids(t *testing.T) {
	c, _ := newRBACContext()
	WithIdentity(c, domain.Identity{ID: 1, Role: domain.RoleUser})

	handler := RequireRoles(domain.RoleAdmin)(func(c echo.Context) error {
		t.Fatalf("should not reach next handler")
		return nil
	})

	if err := handler(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequireRoles_NoHierarchy(t *testing.T) {
	c, _ := newRBACContext()
	WithIdentity(c, domain.Identity{ID: 1, Role: domain.RoleAdmin})

	handler := RequireRoles(domain.RoleUser)(func(c echo.Context) error {
		t.Fatalf("ADMIN must not satisfy a USER-only route")
		return nil
	})

	if err := handler(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequireRoles_NoIdentity(t *testing.T) {
	c, _ := newRBACContext()

	handler := RequireRoles(domain.RoleAdmin)(func(c echo.Context) error {
		t.Fatalf("should not reach next handler")
		return nil
	})

	if err := handler(c); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
