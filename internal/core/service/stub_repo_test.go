package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub user store
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*domain.User
	failWith error // if set, every call returns this error
	lastList ports.ListUsersFilter
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[int64]*domain.User)}
}

func cloneUser(u *domain.User, withHash bool) *domain.User {
	clone := *u
	if !withHash {
		clone.PasswordHash = ""
	}
	return &clone
}

func (r *stubUserRepo) live(id int64) (*domain.User, bool) {
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, false
	}
	return u, true
}

func (r *stubUserRepo) emailTaken(email string, except int64) bool {
	for id, u := range r.users {
		if id != except && u.DeletedAt == nil && u.Email == email {
			return true
		}
	}
	return false
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	if r.emailTaken(user.Email, 0) {
		return nil, domain.ErrUserExists
	}
	r.nextID++
	stored := cloneUser(user, true)
	stored.ID = r.nextID
	r.users[stored.ID] = stored
	return cloneUser(stored, false), nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if u.DeletedAt == nil && u.Email == email {
			return cloneUser(u, true), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	u, ok := r.live(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u, false), nil
}

func (r *stubUserRepo) List(_ context.Context, f ports.ListUsersFilter) ([]*domain.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastList = f
	if r.failWith != nil {
		return nil, 0, r.failWith
	}

	var matched []*domain.User
	for _, u := range r.users {
		if u.DeletedAt != nil {
			continue
		}
		if f.Name != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(f.Name)) {
			continue
		}
		matched = append(matched, cloneUser(u, false))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], total, nil
}

func (r *stubUserRepo) Update(_ context.Context, id int64, upd ports.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
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
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u, false), nil
}

func (r *stubUserRepo) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	u, ok := r.live(id)
	if !ok {
		return domain.ErrUserNotFound
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	return nil
}

// hashOf returns the stored hash for email, bypassing the port.
func (r *stubUserRepo) hashOf(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u.PasswordHash
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Recording hasher
// ---------------------------------------------------------------------------

// countingHasher wraps a real hasher and counts verifications.
type countingHasher struct {
	ports.PasswordHasher
	mu       sync.Mutex
	verifies int
	decoys   int
}

func (h *countingHasher) Verify(ctx context.Context, plaintext, hash string) bool {
	h.mu.Lock()
	h.verifies++
	if hash == "" {
		h.decoys++
	}
	h.mu.Unlock()
	return h.PasswordHasher.Verify(ctx, plaintext, hash)
}
