package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AuthSessionIssuer converts a resolved identity into a cookie-bound session
// token and validates, refreshes and revokes sessions. Unlike verify/reset
// tokens, session validity depends on mutable external state: every
// validation checks the persisted session record so that revocation takes
// effect even while the token itself is cryptographically valid.
type AuthSessionIssuer struct {
	Codec    *TokenCodec
	Sessions SessionStore

	// TTL defaults to TokenTTLSession.
	TTL time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

func NewAuthSessionIssuer(codec *TokenCodec, sessions SessionStore) *AuthSessionIssuer {
	return &AuthSessionIssuer{Codec: codec, Sessions: sessions}
}

func (i *AuthSessionIssuer) ttl() time.Duration {
	if i.TTL > 0 {
		return i.TTL
	}
	return TokenTTLSession
}

func (i *AuthSessionIssuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// IssueSession persists a session record for the user and returns the signed
// session token referencing it.
func (i *AuthSessionIssuer) IssueSession(ctx context.Context, user *User) (string, error) {
	now := i.now()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl()),
	}
	if err := i.Sessions.CreateSession(ctx, session); err != nil {
		return "", err
	}
	return i.Codec.IssueSession(user.ID, session.ID, i.ttl())
}

// Validate checks the token signature, expiry and the persisted session
// record, returning the authenticated user ID.
func (i *AuthSessionIssuer) Validate(ctx context.Context, token string) (string, error) {
	claims, err := i.Codec.Verify(token, PurposeSession)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", ErrSessionInvalid
	}
	if claims.SessionID == "" {
		return "", ErrSessionInvalid
	}
	session, err := i.Sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return "", err
	}
	if session == nil || session.Revoked {
		return "", ErrSessionRevoked
	}
	if session.UserID != claims.Subject {
		return "", ErrSessionInvalid
	}
	if !i.now().Before(session.ExpiresAt) {
		return "", ErrSessionExpired
	}
	return session.UserID, nil
}

// Refresh revokes the presented session and issues a fresh token for the
// same user.
func (i *AuthSessionIssuer) Refresh(ctx context.Context, token string) (string, error) {
	userID, err := i.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	claims, err := i.Codec.Verify(token, PurposeSession)
	if err != nil {
		return "", ErrSessionInvalid
	}
	if err := i.Sessions.RevokeSession(ctx, claims.SessionID); err != nil {
		return "", err
	}
	return i.IssueSession(ctx, &User{ID: userID})
}

// Revoke invalidates the session behind the token (logout). Expired or
// malformed tokens are a no-op: the session they reference can no longer
// authenticate anyway.
func (i *AuthSessionIssuer) Revoke(ctx context.Context, token string) error {
	claims, err := i.Codec.Verify(token, PurposeSession)
	if err != nil {
		return nil
	}
	if claims.SessionID == "" {
		return nil
	}
	return i.Sessions.RevokeSession(ctx, claims.SessionID)
}

// RevokeAll invalidates every session for the user, e.g. after a password
// reset.
func (i *AuthSessionIssuer) RevokeAll(ctx context.Context, userID string) error {
	return i.Sessions.RevokeUserSessions(ctx, userID)
}
