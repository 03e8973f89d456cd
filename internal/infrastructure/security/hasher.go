// Package security holds the credential primitives: bcrypt password hashing
// and signed identity tokens.
package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

// decoyHash is a well-formed cost-12 bcrypt hash that matches no password.
// Verifying against it costs the same as verifying a real record.
const decoyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

var errEmptyPassword = errors.New("password cannot be empty")

// Submitter runs a job off the caller's goroutine and waits for it.
type Submitter interface {
	Submit(ctx context.Context, job func()) error
}

// BcryptHasher implements ports.PasswordHasher with bcrypt.
type BcryptHasher struct {
	pool    Submitter
	cost    int
	observe func(op string, d time.Duration)
}

// NewBcryptHasher returns a hasher that runs on pool. A nil pool runs the
// work inline; a cost outside bcrypt's range falls back to DefaultCost.
func NewBcryptHasher(pool Submitter, cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{pool: pool, cost: cost}
}

// WithObserver registers fn to receive the duration of every hash and verify.
func (h *BcryptHasher) WithObserver(fn func(op string, d time.Duration)) *BcryptHasher {
	h.observe = fn
	return h
}

// Hash returns the salted bcrypt hash of plaintext.
func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", errEmptyPassword
	}

	var (
		out     []byte
		hashErr error
	)
	if err := h.run(ctx, "hash", func() {
		out, hashErr = bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	}); err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if hashErr != nil {
		return "", fmt.Errorf("hash password: %w", hashErr)
	}
	return string(out), nil
}

// Verify reports whether plaintext matches hash. Malformed hashes, an
// unavailable pool and a cancelled context all read as a mismatch. An empty
// hash is checked against a decoy so an unknown account costs the same as a
// wrong password.
func (h *BcryptHasher) Verify(ctx context.Context, plaintext, hash string) bool {
	decoy := hash == ""
	if decoy {
		hash = decoyHash
	}

	var match bool
	if err := h.run(ctx, "verify", func() {
		match = bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
	}); err != nil {
		return false
	}
	return match && !decoy
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int { return h.cost }

func (h *BcryptHasher) run(ctx context.Context, op string, job func()) error {
	start := time.Now()
	defer func() {
		if h.observe != nil {
			h.observe(op, time.Since(start))
		}
	}()

	if h.pool == nil {
		job()
		return nil
	}
	return h.pool.Submit(ctx, job)
}
