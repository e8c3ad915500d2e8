package authcore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose tags a token with the single workflow it may be used for.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
	PurposeSession       Purpose = "session"
)

// Default token lifetimes.
const (
	TokenTTLVerifyEmail   = 24 * time.Hour
	TokenTTLPasswordReset = 1 * time.Hour
	TokenTTLSession       = 24 * time.Hour
)

// Claims is the signed payload of every token issued by the codec. The
// signature covers the subject, purpose, both timestamps and a random nonce,
// so any single-bit mutation fails verification.
type Claims struct {
	Purpose Purpose `json:"pur"`

	// Generation is set on reset_password tokens; see
	// WorkflowOrchestrator.ConfirmPasswordReset.
	Generation int `json:"gen,omitempty"`

	// SessionID is set on session tokens and references the revocation
	// record in a SessionStore.
	SessionID string `json:"sid,omitempty"`

	jwt.RegisteredClaims
}

// TokenCodec creates and verifies signed, expiring tokens. Validity of
// verify/reset tokens is derived purely from the signature and the encoded
// timestamps; no external state is consulted here.
type TokenCodec struct {
	SecretKey []byte
	Issuer    string

	// Now overrides the verification clock. Defaults to time.Now.
	Now func() time.Time
}

// NewTokenCodec returns a codec signing with the given HS256 secret.
func NewTokenCodec(secretKey []byte, issuer string) *TokenCodec {
	return &TokenCodec{SecretKey: secretKey, Issuer: issuer}
}

func (c *TokenCodec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Issue signs a token for the subject bound to the given purpose and ttl.
func (c *TokenCodec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, error) {
	return c.issue(subject, purpose, ttl, 0, "")
}

// IssueReset signs a reset_password token carrying the user's current
// credential generation.
func (c *TokenCodec) IssueReset(subject string, generation int, ttl time.Duration) (string, error) {
	return c.issue(subject, PurposeResetPassword, ttl, generation, "")
}

// IssueSession signs a session token referencing a persisted session ID.
func (c *TokenCodec) IssueSession(subject, sessionID string, ttl time.Duration) (string, error) {
	return c.issue(subject, PurposeSession, ttl, 0, sessionID)
}

func (c *TokenCodec) issue(subject string, purpose Purpose, ttl time.Duration, generation int, sessionID string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("token subject required")
	}
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}
	now := c.now()
	claims := &Claims{
		Purpose:    purpose,
		Generation: generation,
		SessionID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.Issuer,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.SecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and validity window and returns the claims.
// A valid signature with the wrong purpose fails with ErrPurposeMismatch;
// tokens outside their validity window fail with ErrTokenExpired; anything
// else fails with ErrTokenInvalid.
func (c *TokenCodec) Verify(tokenString string, expected Purpose) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.SecretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	// jwt treats exp as inclusive; a token presented at exactly expires_at
	// is already invalid here.
	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if claims.Purpose != expected {
		return nil, ErrPurposeMismatch
	}
	return claims, nil
}

// generateNonce returns a cryptographically secure random token nonce.
func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
