package domain

import (
	"strings"
	"time"
)

// Role is the coarse capability tag carried by every user and token.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// knownRoles lists every role a user may hold.
var knownRoles = []Role{RoleUser, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range knownRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts user input into a Role. An empty string yields RoleUser.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RoleUser, nil
	}
	r := Role(strings.ToUpper(s))
	if !r.Valid() {
		return "", NewValidationError("role", "role must be one of: USER ADMIN")
	}
	return r, nil
}

// User models an account record owned by the user store.
// PasswordHash is only populated by lookups that explicitly ask for it.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// Identity is the principal resolved from a verified token. It lives for a
// single request and is never persisted.
type Identity struct {
	ID   int64
	Role Role
}
