//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	"github.com/norspire/authcore"
)

// UserModel is the GORM model for user accounts.
type UserModel struct {
	ID                   string `gorm:"primaryKey;size:64"`
	Email                string `gorm:"size:255;uniqueIndex"`
	PasswordHash         string `gorm:"size:255"`
	IsVerified           bool   `gorm:"default:false"`
	IsActive             bool   `gorm:"default:true"`
	IsSuperuser          bool   `gorm:"default:false"`
	DisplayName          string `gorm:"size:255"`
	PictureURL           string `gorm:"size:1024"`
	CredentialGeneration int    `gorm:"default:0"`
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) toUser() *authcore.User {
	return &authcore.User{
		ID:                   m.ID,
		Email:                m.Email,
		PasswordHash:         m.PasswordHash,
		IsVerified:           m.IsVerified,
		IsActive:             m.IsActive,
		IsSuperuser:          m.IsSuperuser,
		DisplayName:          m.DisplayName,
		PictureURL:           m.PictureURL,
		CredentialGeneration: m.CredentialGeneration,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// IdentityModel is the GORM model for linked provider identities. The
// (provider, subject) pair is the primary key, which makes double-linking a
// constraint violation.
type IdentityModel struct {
	Provider string    `gorm:"primaryKey;size:32"`
	Subject  string    `gorm:"primaryKey;size:255"`
	UserID   string    `gorm:"size:64;index"`
	LinkedAt time.Time `gorm:"autoCreateTime"`
}

func (IdentityModel) TableName() string {
	return "linked_identities"
}

func (m *IdentityModel) toIdentity() *authcore.LinkedIdentity {
	return &authcore.LinkedIdentity{
		UserID:   m.UserID,
		Provider: authcore.Provider(m.Provider),
		Subject:  m.Subject,
		LinkedAt: m.LinkedAt,
	}
}

// SessionModel is the GORM model for revocable sessions.
type SessionModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"size:64;index"`
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool `gorm:"default:false"`
}

func (SessionModel) TableName() string {
	return "auth_sessions"
}

func (m *SessionModel) toSession() *authcore.Session {
	return &authcore.Session{
		ID:        m.ID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		Revoked:   m.Revoked,
	}
}
