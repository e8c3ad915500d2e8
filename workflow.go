package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// WorkflowOrchestrator drives the multi-step verification and password-reset
// flows: it issues a purpose-bound token, dispatches the notification, and on
// presentation of a valid token performs the state transition exactly once.
//
// Token issuance is never retried by the orchestrator; a repeated request
// simply issues a new independent token, and older unexpired tokens remain
// valid until their own expiry (multi-outstanding tolerance). Notification
// failures are logged and never roll back an already-issued token.
type WorkflowOrchestrator struct {
	Store  CredentialStore
	Codec  *TokenCodec
	Hasher *PasswordHasher
	Mailer Mailer

	// Sessions, when set, gets every session of a user revoked after a
	// successful password reset.
	Sessions SessionStore

	// BaseURL is used to build verification/reset links.
	BaseURL string

	// VerifyTTL and ResetTTL default to TokenTTLVerifyEmail and
	// TokenTTLPasswordReset.
	VerifyTTL time.Duration
	ResetTTL  time.Duration

	// StrictConsumption makes ConfirmVerification fail with
	// ErrAlreadyConsumed when the account is already verified. The default
	// treats re-verification as an idempotent no-op success.
	StrictConsumption bool

	Logger *slog.Logger
}

func (o *WorkflowOrchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *WorkflowOrchestrator) verifyTTL() time.Duration {
	if o.VerifyTTL > 0 {
		return o.VerifyTTL
	}
	return TokenTTLVerifyEmail
}

func (o *WorkflowOrchestrator) resetTTL() time.Duration {
	if o.ResetTTL > 0 {
		return o.ResetTTL
	}
	return TokenTTLPasswordReset
}

// BeginVerification issues a verify_email token for the user and dispatches
// the verification notification. Returns the issued token. Calling it for an
// already-verified user issues nothing.
func (o *WorkflowOrchestrator) BeginVerification(ctx context.Context, user *User) (string, error) {
	if user.IsVerified {
		return "", nil
	}
	token, err := o.Codec.Issue(user.ID, PurposeVerifyEmail, o.verifyTTL())
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/auth/verify-email?token=%s", o.BaseURL, token)
	o.dispatch(ctx, user, TemplateVerifyEmail, link)
	return token, nil
}

// ConfirmVerification consumes a verify_email token and marks the subject
// verified. Single-use is enforced by the user's current verified state, not
// a token blocklist: by default a second presentation is an idempotent no-op
// success, in strict mode it fails with ErrAlreadyConsumed.
func (o *WorkflowOrchestrator) ConfirmVerification(ctx context.Context, token string) (*User, error) {
	claims, err := o.Codec.Verify(token, PurposeVerifyEmail)
	if err != nil {
		return nil, err
	}
	user, err := o.Store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if user.IsVerified {
		if o.StrictConsumption {
			return nil, ErrAlreadyConsumed
		}
		return user, nil
	}
	if err := o.Store.SetVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true
	o.logger().Info("email verified", "user_id", user.ID)
	return user, nil
}

// BeginPasswordReset issues a reset_password token for the account holding
// the email, if any, and dispatches the reset notification. An unknown email
// is not an error: callers must respond identically either way so the
// endpoint cannot be used to probe for registered addresses.
func (o *WorkflowOrchestrator) BeginPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := o.Store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			o.logger().Info("password reset requested for unknown email")
			return "", nil
		}
		return "", err
	}
	token, err := o.Codec.IssueReset(user.ID, user.CredentialGeneration, o.resetTTL())
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/auth/reset-password?token=%s", o.BaseURL, token)
	o.dispatch(ctx, user, TemplateResetPassword, link)
	return token, nil
}

// ConfirmPasswordReset consumes a reset_password token and replaces the
// user's password. The token embeds the credential generation it was issued
// against; the store's compare-and-set rejects it with ErrTokenExpired if a
// newer reset has happened since, so at most one outstanding token per
// generation takes effect.
func (o *WorkflowOrchestrator) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (*User, error) {
	claims, err := o.Codec.Verify(token, PurposeResetPassword)
	if err != nil {
		return nil, err
	}
	user, err := o.Store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if claims.Generation != user.CredentialGeneration {
		return nil, ErrTokenExpired
	}
	hash, err := o.Hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	if err := o.Store.SetPassword(ctx, user.ID, hash, claims.Generation); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	user.CredentialGeneration = claims.Generation + 1
	if o.Sessions != nil {
		if err := o.Sessions.RevokeUserSessions(ctx, user.ID); err != nil {
			o.logger().Error("failed revoking sessions after reset", "user_id", user.ID, "err", err)
		}
	}
	o.logger().Info("password reset", "user_id", user.ID)
	return user, nil
}

// dispatch hands the notification to the mailer. Delivery failure degrades
// to "user never receives the link", an operational condition, so the error
// is logged and swallowed.
func (o *WorkflowOrchestrator) dispatch(ctx context.Context, user *User, kind TemplateKind, link string) {
	if o.Mailer == nil {
		return
	}
	data := map[string]any{"link": link}
	if user.DisplayName != "" {
		data["name"] = user.DisplayName
	}
	if err := o.Mailer.Send(ctx, user.Email, kind, data); err != nil {
		o.logger().Error("failed to dispatch notification",
			"kind", string(kind), "user_id", user.ID, "err", err)
	}
}
