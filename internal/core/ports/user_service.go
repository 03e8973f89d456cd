package ports

import (
	"context"

	"github.com/useraccounts/user-accounts/internal/core/domain"
)

// ListUsersInput carries the raw paging parameters from the transport layer.
type ListUsersInput struct {
	Name  string
	Page  int // 1-based; values < 1 mean 1
	Limit int // values < 1 mean the default, capped at the maximum
}

// UserPage is one page of a user listing.
type UserPage struct {
	Data  []*domain.User `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// UpdateUserInput is a partial update. Nil fields are left untouched.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	Role     *string
	IsActive *bool
}

// UserService implements the administrative user operations.
type UserService interface {
	Create(ctx context.Context, in NewUserInput) (*domain.User, error)
	List(ctx context.Context, in ListUsersInput) (*UserPage, error)
	Get(ctx context.Context, id int64) (*domain.User, error)
	Update(ctx context.Context, id int64, in UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
}
