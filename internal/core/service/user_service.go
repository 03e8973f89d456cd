package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
)

const (
	defaultPageLimit  = 10
	maxPageLimit      = 100
	minPasswordLength = 6
	// bcrypt only accepts up to 72 bytes of input.
	maxPasswordBytes = 72
)

// UserService implements the administrative user operations.
type UserService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	log    zerolog.Logger
}

func NewUserService(repo ports.UserRepository, hasher ports.PasswordHasher, log zerolog.Logger) *UserService {
	return &UserService{repo: repo, hasher: hasher, log: log}
}

// Create stores a new account on behalf of an administrator. The password is
// hashed exactly as in self-registration.
func (s *UserService) Create(ctx context.Context, in ports.NewUserInput) (*domain.User, error) {
	user, err := newUser(ctx, s.hasher, in)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int64("user_id", created.ID).Msg("user created by admin")
	return created, nil
}

// List returns one page of users. Page is 1-based; offset = (page-1)*limit.
func (s *UserService) List(ctx context.Context, in ports.ListUsersInput) (*ports.UserPage, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := in.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	users, total, err := s.repo.List(ctx, ports.ListUsersFilter{
		Name:   strings.TrimSpace(in.Name),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []*domain.User{}
	}

	return &ports.UserPage{Data: users, Total: total, Page: page, Limit: limit}, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

// Update applies a partial update. A new password is hashed before it
// reaches the store. An empty update returns the current record.
func (s *UserService) Update(ctx context.Context, id int64, in ports.UpdateUserInput) (*domain.User, error) {
	var upd ports.UserUpdate
	var fields []domain.FieldError

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			fields = append(fields, domain.FieldError{Field: "name", Message: "name cannot be empty"})
		}
		upd.Name = &name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email == "" {
			fields = append(fields, domain.FieldError{Field: "email", Message: "email cannot be empty"})
		}
		upd.Email = &email
	}
	if in.Role != nil {
		role := domain.Role(strings.ToUpper(strings.TrimSpace(*in.Role)))
		if !role.Valid() {
			fields = append(fields, domain.FieldError{Field: "role", Message: "role must be one of: USER ADMIN"})
		}
		upd.Role = &role
	}
	if in.Password != nil {
		if fe := passwordError(*in.Password); fe != nil {
			fields = append(fields, *fe)
		}
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(ctx, *in.Password)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		upd.PasswordHash = &hash
	}
	upd.IsActive = in.IsActive

	if isEmptyUpdate(upd) {
		return s.repo.FindByID(ctx, id)
	}

	updated, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.log.Info().Int64("user_id", id).Msg("user updated")
	return updated, nil
}

// Delete soft-deletes the user.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info().Int64("user_id", id).Msg("user deleted")
	return nil
}

// newUser validates the input and builds an unsaved user with a hashed password.
func newUser(ctx context.Context, hasher ports.PasswordHasher, in ports.NewUserInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)

	var fields []domain.FieldError
	if name == "" {
		fields = append(fields, domain.FieldError{Field: "name", Message: "name is required"})
	}
	if email == "" {
		fields = append(fields, domain.FieldError{Field: "email", Message: "email is required"})
	}
	if fe := passwordError(in.Password); fe != nil {
		fields = append(fields, *fe)
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			fields = append(fields, ve.Fields...)
		}
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	hash, err := hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	return &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// passwordError checks length in characters for the lower bound and in
// bytes for the upper one.
func passwordError(password string) *domain.FieldError {
	switch {
	case utf8.RuneCountInString(password) < minPasswordLength:
		return &domain.FieldError{Field: "password", Message: "password must be at least 6 characters"}
	case len(password) > maxPasswordBytes:
		return &domain.FieldError{Field: "password", Message: "password must be at most 72 bytes"}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isEmptyUpdate(u ports.UserUpdate) bool {
	return u.Name == nil && u.Email == nil && u.PasswordHash == nil && u.Role == nil && u.IsActive == nil
}
