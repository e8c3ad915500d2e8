package authcore

import (
	"strings"
	"time"
)

// Provider identifies an authentication provider.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderVipps  Provider = "vipps"
)

// User is an account in the system. A user may hold local credentials, any
// number of linked OAuth identities, or both.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	// PasswordHash is empty for pure-OAuth accounts.
	PasswordHash string `json:"-"`

	IsVerified  bool `json:"is_verified"`
	IsActive    bool `json:"is_active"`
	IsSuperuser bool `json:"is_superuser"`

	DisplayName string `json:"display_name,omitempty"`
	PictureURL  string `json:"picture_url,omitempty"`

	// CredentialGeneration increments on every password change. Reset
	// tokens embed the generation they were issued against, which makes
	// tokens from before the last successful reset stale.
	CredentialGeneration int `json:"credential_generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the user can authenticate with local
// credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// LinkedIdentity ties a provider-asserted subject to a user. The
// (Provider, Subject) pair is globally unique and a user holds at most one
// identity per provider.
type LinkedIdentity struct {
	UserID   string    `json:"user_id"`
	Provider Provider  `json:"provider"`
	Subject  string    `json:"subject"`
	LinkedAt time.Time `json:"linked_at"`
}

// NormalizeEmail canonicalizes an email address for storage and lookup.
// Email uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
