package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Assertion is the verified identity tuple an OAuth provider supplies after
// its redirect handshake. The core trusts it as provider-asserted truth and
// performs no independent email verification for OAuth accounts.
type Assertion struct {
	Provider    Provider
	Subject     string
	Email       string
	DisplayName string
	PictureURL  string
}

// IdentityReconciler resolves an incoming identity assertion - local
// credentials or a provider-asserted subject - to exactly one user record,
// creating or linking as policy dictates.
type IdentityReconciler struct {
	Store  CredentialStore
	Hasher *PasswordHasher
	Logger *slog.Logger
}

func NewIdentityReconciler(store CredentialStore, hasher *PasswordHasher) *IdentityReconciler {
	return &IdentityReconciler{Store: store, Hasher: hasher, Logger: slog.Default()}
}

func (r *IdentityReconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// ResolveLocal authenticates email/password credentials. Unknown email,
// wrong password and passwordless accounts all fail with the same
// ErrInvalidCredentials so the response does not reveal which it was.
func (r *IdentityReconciler) ResolveLocal(ctx context.Context, email, password string) (*User, error) {
	user, err := r.Store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a hash comparison anyway so unknown emails are not
			// distinguishable by response time.
			r.Hasher.VerifyPassword(password, timingDecoyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.HasPassword() || !r.Hasher.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// timingDecoyHash is a bcrypt hash of a random string, only ever compared
// against to equalize response time for unknown emails.
const timingDecoyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ResolveOAuth resolves a provider assertion to exactly one user.
//
// Lookup order is identity first, then email: an established
// (provider, subject) mapping always wins, so a second provider cannot take
// over an account by email coincidence alone. When only the email matches an
// existing account, the new identity is auto-linked to it - both supported
// providers assert only verified emails, which makes the match
// provider-attested ownership. When neither matches, a new verified,
// passwordless user is created and linked.
func (r *IdentityReconciler) ResolveOAuth(ctx context.Context, a Assertion) (*User, error) {
	if a.Provider == "" || a.Subject == "" {
		return nil, fmt.Errorf("provider and subject required")
	}
	if a.Email == "" {
		return nil, fmt.Errorf("provider %s did not assert an email", a.Provider)
	}

	user, err := r.Store.GetUserByIdentity(ctx, a.Provider, a.Subject)
	if err == nil {
		return r.refreshProfile(ctx, user, a), nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user, err = r.Store.GetUserByEmail(ctx, a.Email)
	if err == nil {
		if err := r.linkIdentity(ctx, user, a); err != nil {
			return nil, err
		}
		return r.refreshProfile(ctx, user, a), nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user, err = r.Store.CreateUser(ctx, NewUser{
		Email:       a.Email,
		IsVerified:  true, // provider already verified the email
		DisplayName: a.DisplayName,
		PictureURL:  a.PictureURL,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			// Lost a race against a concurrent registration; link to the
			// record that won.
			return r.ResolveOAuth(ctx, a)
		}
		return nil, err
	}
	if err := r.linkIdentity(ctx, user, a); err != nil {
		return nil, err
	}
	r.logger().Info("created user from oauth assertion",
		"user_id", user.ID, "provider", a.Provider)
	return user, nil
}

func (r *IdentityReconciler) linkIdentity(ctx context.Context, user *User, a Assertion) error {
	err := r.Store.LinkIdentity(ctx, user.ID, a.Provider, a.Subject)
	if err == nil {
		r.logger().Info("linked identity",
			"user_id", user.ID, "provider", a.Provider)
		return nil
	}
	if errors.Is(err, ErrIdentityTaken) {
		// Concurrent resolution linked it first. Accept if it landed on the
		// same user.
		owner, getErr := r.Store.GetUserByIdentity(ctx, a.Provider, a.Subject)
		if getErr == nil && owner.ID == user.ID {
			return nil
		}
		return err
	}
	return err
}

// refreshProfile carries the latest provider-asserted name and picture onto
// the user record. Failures are logged, not surfaced: the login itself has
// already succeeded.
func (r *IdentityReconciler) refreshProfile(ctx context.Context, user *User, a Assertion) *User {
	upd := ProfileUpdate{}
	if a.DisplayName != "" && a.DisplayName != user.DisplayName {
		upd.DisplayName = &a.DisplayName
		user.DisplayName = a.DisplayName
	}
	if a.PictureURL != "" && a.PictureURL != user.PictureURL {
		upd.PictureURL = &a.PictureURL
		user.PictureURL = a.PictureURL
	}
	if upd.DisplayName == nil && upd.PictureURL == nil {
		return user
	}
	if err := r.Store.UpdateProfile(ctx, user.ID, upd); err != nil {
		r.logger().Warn("failed to refresh profile", "user_id", user.ID, "err", err)
	}
	return user
}

// RegisterLocal creates an unverified local account. The caller is expected
// to start the verification workflow afterwards.
func (r *IdentityReconciler) RegisterLocal(ctx context.Context, email, password, displayName string) (*User, error) {
	if !emailRegex.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	hash, err := r.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user, err := r.Store.CreateUser(ctx, NewUser{
		Email:        email,
		PasswordHash: hash,
		IsVerified:   false,
		DisplayName:  displayName,
	})
	if err != nil {
		return nil, err
	}
	if err := r.Store.LinkIdentity(ctx, user.ID, ProviderLocal, user.ID); err != nil {
		r.logger().Warn("failed to record local identity", "user_id", user.ID, "err", err)
	}
	r.logger().Info("registered local user", "user_id", user.ID)
	return user, nil
}
