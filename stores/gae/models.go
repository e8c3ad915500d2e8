//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"github.com/norspire/authcore"
)

// Kind constants for Datastore entities.
const (
	KindUser       = "User"
	KindEmailIndex = "EmailIndex"
	KindIdentity   = "Identity"
	KindSession    = "Session"
)

// UserEntity is the Datastore entity for user accounts, keyed by user ID.
type UserEntity struct {
	Email                string    `datastore:"email"`
	PasswordHash         string    `datastore:"password_hash,noindex"`
	IsVerified           bool      `datastore:"is_verified"`
	IsActive             bool      `datastore:"is_active"`
	IsSuperuser          bool      `datastore:"is_superuser"`
	DisplayName          string    `datastore:"display_name,noindex"`
	PictureURL           string    `datastore:"picture_url,noindex"`
	CredentialGeneration int       `datastore:"credential_generation,noindex"`
	CreatedAt            time.Time `datastore:"created_at"`
	UpdatedAt            time.Time `datastore:"updated_at"`
}

func (e *UserEntity) toUser(userID string) *authcore.User {
	return &authcore.User{
		ID:                   userID,
		Email:                e.Email,
		PasswordHash:         e.PasswordHash,
		IsVerified:           e.IsVerified,
		IsActive:             e.IsActive,
		IsSuperuser:          e.IsSuperuser,
		DisplayName:          e.DisplayName,
		PictureURL:           e.PictureURL,
		CredentialGeneration: e.CredentialGeneration,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

// EmailIndexEntity reserves a normalized email, keyed by the email itself.
type EmailIndexEntity struct {
	UserID    string    `datastore:"user_id"`
	CreatedAt time.Time `datastore:"created_at"`
}

// IdentityEntity is the Datastore entity for linked provider identities.
// Key format: Provider + ":" + Subject.
type IdentityEntity struct {
	Provider string    `datastore:"provider"`
	Subject  string    `datastore:"subject"`
	UserID   string    `datastore:"user_id"`
	LinkedAt time.Time `datastore:"linked_at"`
}

func (e *IdentityEntity) toIdentity() *authcore.LinkedIdentity {
	return &authcore.LinkedIdentity{
		UserID:   e.UserID,
		Provider: authcore.Provider(e.Provider),
		Subject:  e.Subject,
		LinkedAt: e.LinkedAt,
	}
}

// SessionEntity is the Datastore entity for sessions, keyed by session ID.
type SessionEntity struct {
	UserID    string    `datastore:"user_id"`
	CreatedAt time.Time `datastore:"created_at"`
	ExpiresAt time.Time `datastore:"expires_at"`
	Revoked   bool      `datastore:"revoked"`
}

func (e *SessionEntity) toSession(sessionID string) *authcore.Session {
	return &authcore.Session{
		ID:        sessionID,
		UserID:    e.UserID,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
		Revoked:   e.Revoked,
	}
}
