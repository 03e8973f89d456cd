package ports

import (
	"context"
	"time"

	"github.com/useraccounts/user-accounts/internal/core/domain"
)

// NewUserInput is the data needed to create an account, either through
// self-registration or by an administrator.
type NewUserInput struct {
	Name     string
	Email    string
	Password string
	Role     string // empty = domain.RoleUser
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

type AuthService interface {
	Register(ctx context.Context, in NewUserInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Me(ctx context.Context, id int64) (*domain.User, error)
}
