package authcore

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultMinPasswordLength matches the signup policy most applications use.
const DefaultMinPasswordLength = 8

// PasswordHasher hashes and verifies local credentials with bcrypt. Each
// call salts independently, so two hashes of the same plaintext never match
// bit-for-bit yet both verify.
type PasswordHasher struct {
	// Cost is the bcrypt work factor. Defaults to bcrypt.DefaultCost.
	Cost int

	// MinLength is the minimum accepted plaintext length. Defaults to
	// DefaultMinPasswordLength.
	MinLength int
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{Cost: bcrypt.DefaultCost, MinLength: DefaultMinPasswordLength}
}

func (h *PasswordHasher) minLength() int {
	if h.MinLength > 0 {
		return h.MinLength
	}
	return DefaultMinPasswordLength
}

func (h *PasswordHasher) cost() int {
	if h.Cost > 0 {
		return h.Cost
	}
	return bcrypt.DefaultCost
}

// Hash returns the bcrypt hash of the plaintext. Empty or below-minimum
// plaintexts fail with ErrWeakCredential; the plaintext itself is never
// stored or logged.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) < h.minLength() {
		return "", fmt.Errorf("%w: minimum %d characters", ErrWeakCredential, h.minLength())
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
func (h *PasswordHasher) VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
