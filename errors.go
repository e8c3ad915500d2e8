package authcore

import "errors"

// Sentinel errors returned by the core components. Callers should test with
// errors.Is since stores and orchestrators wrap these with context.
var (
	// ErrEmailTaken is returned when creating a user with an email that is
	// already registered (case-insensitive).
	ErrEmailTaken = errors.New("email already registered")

	// ErrIdentityTaken is returned when linking a (provider, subject) pair
	// that is already linked to some user.
	ErrIdentityTaken = errors.New("identity already linked")

	// ErrInvalidCredentials is returned for any failed local login attempt.
	// Unknown email, wrong password and passwordless accounts all produce
	// this same error so callers cannot distinguish them.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrWeakCredential is returned when a plaintext password does not meet
	// the minimum length policy.
	ErrWeakCredential = errors.New("password does not meet minimum requirements")

	// ErrInvalidEmail is returned when registering with a syntactically
	// invalid email address.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrTokenInvalid is returned for malformed or tampered tokens.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned for tokens past their expiry, before their
	// issuance time, or made stale by a newer credential generation.
	ErrTokenExpired = errors.New("token expired")

	// ErrPurposeMismatch is returned when a cryptographically valid token is
	// presented for a purpose other than the one it was issued for.
	ErrPurposeMismatch = errors.New("token purpose mismatch")

	// ErrAlreadyConsumed is returned in strict mode when a verification
	// token is presented for an account that is already verified.
	ErrAlreadyConsumed = errors.New("token already consumed")

	// ErrUserNotFound is returned by store lookups for unknown users.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserInactive is returned when resolving credentials for a
	// deactivated account.
	ErrUserInactive = errors.New("account is inactive")

	// ErrSessionInvalid is returned for malformed session tokens and tokens
	// whose claims do not match their session record. A token whose record
	// is missing entirely surfaces as ErrSessionRevoked instead: stores may
	// garbage-collect expired sessions, which callers cannot distinguish
	// from revocation.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrSessionExpired is returned for session tokens past their expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned for structurally valid, unexpired
	// session tokens whose session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrDeliveryFailed is returned by Mailer implementations when a
	// notification could not be handed off. It is logged by the workflow
	// orchestrator and never surfaced to end users synchronously.
	ErrDeliveryFailed = errors.New("notification delivery failed")
)
