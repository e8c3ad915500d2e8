package authcore

import (
	"context"
	"time"
)

// NewUser carries the attributes for creating a user record. ID is assigned
// by the store if empty.
type NewUser struct {
	Email        string
	PasswordHash string // empty for OAuth-only accounts
	IsVerified   bool
	DisplayName  string
	PictureURL   string
}

// ProfileUpdate carries optional profile attributes refreshed from a
// provider assertion. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName *string
	PictureURL  *string
}

// CredentialStore persists users and their linked identities. All mutations
// are atomic with respect to the uniqueness invariants: of two concurrent
// attempts to register the same email or link the same identity, exactly one
// succeeds and the rest fail with the corresponding taken-error.
type CredentialStore interface {
	// CreateUser creates a user record. Fails with ErrEmailTaken if the
	// normalized email is already registered.
	CreateUser(ctx context.Context, nu NewUser) (*User, error)

	// GetUserByID returns the user or ErrUserNotFound.
	GetUserByID(ctx context.Context, userID string) (*User, error)

	// GetUserByEmail looks up by normalized email. Returns ErrUserNotFound
	// if no user holds the email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByIdentity resolves a (provider, subject) pair to its owner.
	// Returns ErrUserNotFound if the identity is not linked.
	GetUserByIdentity(ctx context.Context, provider Provider, subject string) (*User, error)

	// LinkIdentity attaches a provider identity to a user. Fails with
	// ErrIdentityTaken if the pair is already linked anywhere.
	LinkIdentity(ctx context.Context, userID string, provider Provider, subject string) error

	// ListIdentities returns all identities linked to a user.
	ListIdentities(ctx context.Context, userID string) ([]*LinkedIdentity, error)

	// SetVerified marks the user's email as verified.
	SetVerified(ctx context.Context, userID string) error

	// SetPassword replaces the password hash and increments the credential
	// generation in a single atomic compare-and-set: if the stored
	// generation no longer equals expectedGeneration the mutation fails
	// with ErrTokenExpired, which makes reset tokens from before the most
	// recent successful reset stale.
	SetPassword(ctx context.Context, userID string, passwordHash string, expectedGeneration int) error

	// UpdateProfile refreshes display name and picture.
	UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) error
}

// Session is the persisted record behind a session token. Token validity
// for sessions depends on this mutable record: once revoked or deleted, a
// structurally valid token no longer authenticates.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// SessionStore persists revocation-checkable session records.
type SessionStore interface {
	// CreateSession persists a new session record.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns the record or nil if it does not exist. Expired
	// records may be garbage-collected by implementations, which is
	// indistinguishable from revocation to callers.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// RevokeSession marks a session revoked. Revoking an unknown session is
	// a no-op.
	RevokeSession(ctx context.Context, sessionID string) error

	// RevokeUserSessions revokes every session belonging to a user.
	RevokeUserSessions(ctx context.Context, userID string) error
}
