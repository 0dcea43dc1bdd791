// ABOUTME: Password gate for the single shared login secret
// ABOUTME: Supports plaintext (constant-time compare) and bcrypt-hashed secrets

package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned when the submitted credential does not match the
// configured secret. There is no lockout and no rate limiting; the user
// simply tries again.
var ErrMismatch = errors.New("incorrect password")

// Gate checks login attempts against the configured secret. Exactly one of
// password or passwordHash is consulted; the hash wins when both are set.
type Gate struct {
	password     string
	passwordHash string
}

// NewGate creates a gate for the given secret. passwordHash, when non-empty,
// must be a bcrypt hash.
func NewGate(password, passwordHash string) *Gate {
	return &Gate{
		password:     password,
		passwordHash: passwordHash,
	}
}

// Login checks a submitted credential. A nil return means the caller may mark
// the session authenticated; ErrMismatch means the state must stay untouched.
func (g *Gate) Login(candidate string) error {
	if g.passwordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(g.passwordHash), []byte(candidate)); err != nil {
			return ErrMismatch
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(g.password), []byte(candidate)) != 1 {
		return ErrMismatch
	}
	return nil
}
