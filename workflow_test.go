package authcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/norspire/authcore"
	"github.com/norspire/authcore/stores/memory"
)

// recordingMailer captures dispatched notifications.
type recordingMailer struct {
	sent []sentMail
	fail bool
}

type sentMail struct {
	to   string
	kind authcore.TemplateKind
	data map[string]any
}

func (m *recordingMailer) Send(ctx context.Context, to string, kind authcore.TemplateKind, data map[string]any) error {
	if m.fail {
		return authcore.ErrDeliveryFailed
	}
	m.sent = append(m.sent, sentMail{to: to, kind: kind, data: data})
	return nil
}

type workflowFixture struct {
	store  *memory.Store
	rec    *authcore.IdentityReconciler
	wf     *authcore.WorkflowOrchestrator
	mailer *recordingMailer
	codec  *authcore.TokenCodec
}

func newWorkflowFixture() *workflowFixture {
	store := memory.New()
	hasher := &authcore.PasswordHasher{Cost: bcrypt.MinCost}
	codec := authcore.NewTokenCodec(testKey, "test-issuer")
	mailer := &recordingMailer{}
	return &workflowFixture{
		store:  store,
		rec:    authcore.NewIdentityReconciler(store, hasher),
		mailer: mailer,
		codec:  codec,
		wf: &authcore.WorkflowOrchestrator{
			Store:   store,
			Codec:   codec,
			Hasher:  hasher,
			Mailer:  mailer,
			BaseURL: "https://app.example.com",
		},
	}
}

func TestVerificationFlow(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()

	user, err := f.rec.RegisterLocal(ctx, "alice@example.com", "password123", "Alice")
	if err != nil {
		t.Fatalf("RegisterLocal: %v", err)
	}

	token, err := f.wf.BeginVerification(ctx, user)
	if err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(f.mailer.sent))
	}
	mail := f.mailer.sent[0]
	if mail.to != "alice@example.com" || mail.kind != authcore.TemplateVerifyEmail {
		t.Errorf("mail = %+v", mail)
	}
	link, _ := mail.data["link"].(string)
	if link != "https://app.example.com/auth/verify-email?token="+token {
		t.Errorf("link = %q", link)
	}

	verified, err := f.wf.ConfirmVerification(ctx, token)
	if err != nil {
		t.Fatalf("ConfirmVerification: %v", err)
	}
	if !verified.IsVerified {
		t.Error("user not marked verified")
	}
	stored, _ := f.store.GetUserByID(ctx, user.ID)
	if !stored.IsVerified {
		t.Error("verified state not persisted")
	}
}

func TestVerificationRepeatIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()
	user, _ := f.rec.RegisterLocal(ctx, "alice@example.com", "password123", "")
	token, _ := f.wf.BeginVerification(ctx, user)

	if _, err := f.wf.ConfirmVerification(ctx, token); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	// Second presentation of the same link succeeds without changing state.
	again, err := f.wf.ConfirmVerification(ctx, token)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if !again.IsVerified {
		t.Error("user no longer verified")
	}

	// In strict mode the second presentation is rejected.
	f.wf.StrictConsumption = true
	if _, err := f.wf.ConfirmVerification(ctx, token); !errors.Is(err, authcore.ErrAlreadyConsumed) {
		t.Errorf("strict err = %v, want ErrAlreadyConsumed", err)
	}
}

func TestVerificationSkippedWhenAlreadyVerified(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()

	user, _ := f.rec.ResolveOAuth(ctx, authcore.Assertion{
		Provider: authcore.ProviderGoogle, Subject: "g-1", Email: "alice@example.com",
	})
	token, err := f.wf.BeginVerification(ctx, user)
	if err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}
	if token != "" || len(f.mailer.sent) != 0 {
		t.Errorf("verified user got a verification mail: token=%q sent=%d", token, len(f.mailer.sent))
	}
}

func TestVerificationTokenErrors(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()
	user, _ := f.rec.RegisterLocal(ctx, "alice@example.com", "password123", "")

	// Expired token.
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.codec.Now = func() time.Time { return start }
	token, _ := f.wf.BeginVerification(ctx, user)
	f.codec.Now = func() time.Time { return start.Add(25 * time.Hour) }
	if _, err := f.wf.ConfirmVerification(ctx, token); !errors.Is(err, authcore.ErrTokenExpired) {
		t.Errorf("expired err = %v, want ErrTokenExpired", err)
	}
	f.codec.Now = nil

	// A reset token is never accepted by the verification workflow.
	reset, _ := f.codec.IssueReset(user.ID, 0, time.Hour)
	if _, err := f.wf.ConfirmVerification(ctx, reset); !errors.Is(err, authcore.ErrPurposeMismatch) {
		t.Errorf("purpose err = %v, want ErrPurposeMismatch", err)
	}

	// A token for a deleted subject reads as invalid.
	ghost, _ := f.codec.Issue("no-such-user", authcore.PurposeVerifyEmail, time.Hour)
	if _, err := f.wf.ConfirmVerification(ctx, ghost); !errors.Is(err, authcore.ErrTokenInvalid) {
		t.Errorf("ghost err = %v, want ErrTokenInvalid", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()
	f.rec.RegisterLocal(ctx, "alice@example.com", "oldpassword", "Alice")

	token, err := f.wf.BeginPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginPasswordReset: %v", err)
	}
	if len(f.mailer.sent) != 1 || f.mailer.sent[0].kind != authcore.TemplateResetPassword {
		t.Fatalf("mails = %+v", f.mailer.sent)
	}

	if _, err := f.wf.ConfirmPasswordReset(ctx, token, "newpassword1"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}

	if _, err := f.rec.ResolveLocal(ctx, "alice@example.com", "newpassword1"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if _, err := f.rec.ResolveLocal(ctx, "alice@example.com", "oldpassword"); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()

	token, err := f.wf.BeginPasswordReset(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("BeginPasswordReset: %v", err)
	}
	if token != "" || len(f.mailer.sent) != 0 {
		t.Errorf("unknown email produced token=%q mails=%d", token, len(f.mailer.sent))
	}
}

func TestPasswordResetStaleToken(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()
	f.rec.RegisterLocal(ctx, "alice@example.com", "oldpassword", "")

	// Two outstanding reset tokens from the same generation.
	first, _ := f.wf.BeginPasswordReset(ctx, "alice@example.com")
	second, _ := f.wf.BeginPasswordReset(ctx, "alice@example.com")

	if _, err := f.wf.ConfirmPasswordReset(ctx, first, "newpassword1"); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	// The second token predates the completed reset and is now stale.
	if _, err := f.wf.ConfirmPasswordReset(ctx, second, "newpassword2"); !errors.Is(err, authcore.ErrTokenExpired) {
		t.Fatalf("stale err = %v, want ErrTokenExpired", err)
	}
	if _, err := f.rec.ResolveLocal(ctx, "alice@example.com", "newpassword1"); err != nil {
		t.Errorf("password from winning reset rejected: %v", err)
	}

	// A token issued after the reset works again.
	third, _ := f.wf.BeginPasswordReset(ctx, "alice@example.com")
	if _, err := f.wf.ConfirmPasswordReset(ctx, third, "newpassword3"); err != nil {
		t.Errorf("post-reset token: %v", err)
	}
}

func TestPasswordResetWeakPassword(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()
	f.rec.RegisterLocal(ctx, "alice@example.com", "oldpassword", "")

	token, _ := f.wf.BeginPasswordReset(ctx, "alice@example.com")
	if _, err := f.wf.ConfirmPasswordReset(ctx, token, "short"); !errors.Is(err, authcore.ErrWeakCredential) {
		t.Fatalf("err = %v, want ErrWeakCredential", err)
	}
	// The failed attempt consumed nothing; the token still works.
	if _, err := f.wf.ConfirmPasswordReset(ctx, token, "longenough1"); err != nil {
		t.Errorf("retry after weak password: %v", err)
	}
}

func TestPasswordResetRevokesSessions(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()
	user, _ := f.rec.RegisterLocal(ctx, "alice@example.com", "oldpassword", "")

	issuer := authcore.NewAuthSessionIssuer(f.codec, f.store)
	f.wf.Sessions = f.store

	session, err := issuer.IssueSession(ctx, user)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	token, _ := f.wf.BeginPasswordReset(ctx, "alice@example.com")
	if _, err := f.wf.ConfirmPasswordReset(ctx, token, "newpassword1"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}

	if _, err := issuer.Validate(ctx, session); !errors.Is(err, authcore.ErrSessionRevoked) {
		t.Errorf("session after reset: err = %v, want ErrSessionRevoked", err)
	}
}

func TestDeliveryFailureDoesNotFailIssuance(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()
	user, _ := f.rec.RegisterLocal(ctx, "alice@example.com", "password123", "")
	f.mailer.fail = true

	token, err := f.wf.BeginVerification(ctx, user)
	if err != nil {
		t.Fatalf("BeginVerification with failing mailer: %v", err)
	}
	// The token is real even though the mail never went out.
	if _, err := f.wf.ConfirmVerification(ctx, token); err != nil {
		t.Errorf("token unusable: %v", err)
	}
}
