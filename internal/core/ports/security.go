package ports

import (
	"context"
	"time"

	"github.com/useraccounts/user-accounts/internal/core/domain"
)

// PasswordHasher hashes and verifies passwords. Verify never returns an
// error: a malformed hash is simply a mismatch.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) bool
}

// TokenService issues and verifies stateless identity tokens.
// Verify failures match domain.ErrUnauthenticated.
type TokenService interface {
	Issue(identity domain.Identity) (token string, expiresAt time.Time, err error)
	Verify(token string) (domain.Identity, error)
}
