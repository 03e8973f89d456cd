// Package memory is a process-local user store for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
)

type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*domain.User
	now    func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[int64]*domain.User), now: time.Now}
}

func copyUser(u *domain.User, withHash bool) *domain.User {
	c := *u
	if !withHash {
		c.PasswordHash = ""
	}
	return &c
}

func (r *UserRepository) live(id int64) (*domain.User, bool) {
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, false
	}
	return u, true
}

func (r *UserRepository) emailTaken(email string, except int64) bool {
	for id, u := range r.users {
		if id != except && u.DeletedAt == nil && u.Email == email {
			return true
		}
	}
	return false
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTaken(user.Email, 0) {
		return nil, domain.ErrUserExists
	}

	r.nextID++
	stored := copyUser(user, true)
	stored.ID = r.nextID
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.users[stored.ID] = stored
	return copyUser(stored, false), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.DeletedAt == nil && u.Email == email {
			return copyUser(u, true), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.live(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(u, false), nil
}

// List orders by id, matching the database stores.
func (r *UserRepository) List(_ context.Context, f ports.ListUsersFilter) ([]*domain.User, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(f.Name)
	var matched []*domain.User
	for _, u := range r.users {
		if u.DeletedAt != nil {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(u.Name), needle) {
			continue
		}
		matched = append(matched, copyUser(u, false))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []*domain.User{}, total, nil
	}
	end := len(matched)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *UserRepository) Update(_ context.Context, id int64, upd ports.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.live(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if upd.Email != nil && r.emailTaken(*upd.Email, id) {
		return nil, domain.ErrUserExists
	}

	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	u.UpdatedAt = r.now().UTC()
	return copyUser(u, false), nil
}

func (r *UserRepository) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.live(id)
	if !ok {
		return domain.ErrUserNotFound
	}
	now := r.now().UTC()
	u.DeletedAt = &now
	u.UpdatedAt = now
	return nil
}

// Ping always succeeds; it lets the store join readiness checks.
func (r *UserRepository) Ping(context.Context) error { return nil }
