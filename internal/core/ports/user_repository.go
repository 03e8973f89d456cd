package ports

import (
	"context"

	"github.com/useraccounts/user-accounts/internal/core/domain"
)

// ListUsersFilter carries the query parameters for listing users.
type ListUsersFilter struct {
	Name   string // optional: case-insensitive partial match on name
	Offset int
	Limit  int
}

// UserUpdate holds the fields an update may change. Nil means unchanged.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Role         *domain.Role
	IsActive     *bool
}

// UserRepository is the user store. It is the only source of truth for email
// uniqueness and must report duplicates as domain.ErrUserExists. Soft-deleted
// rows are invisible to every method.
type UserRepository interface {
	// FindByEmail returns the record including PasswordHash.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByID returns the record without PasswordHash.
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// List returns a page of users matching filter and the total count.
	List(ctx context.Context, filter ListUsersFilter) ([]*domain.User, int64, error)
	Update(ctx context.Context, id int64, update UserUpdate) (*domain.User, error)
	SoftDelete(ctx context.Context, id int64) error
}
