package authcore_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/norspire/authcore"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestTokenRoundTrip(t *testing.T) {
	codec := authcore.NewTokenCodec(testKey, "test-issuer")

	token, err := codec.Issue("user-1", authcore.PurposeVerifyEmail, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := codec.Verify(token, authcore.PurposeVerifyEmail)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Purpose != authcore.PurposeVerifyEmail {
		t.Errorf("purpose = %q", claims.Purpose)
	}
}

func TestTokenPurposeMismatch(t *testing.T) {
	codec := authcore.NewTokenCodec(testKey, "test-issuer")

	reset, err := codec.IssueReset("user-1", 0, time.Hour)
	if err != nil {
		t.Fatalf("IssueReset: %v", err)
	}
	// A structurally valid token presented to the wrong workflow.
	if _, err := codec.Verify(reset, authcore.PurposeVerifyEmail); !errors.Is(err, authcore.ErrPurposeMismatch) {
		t.Errorf("verify-email err = %v, want ErrPurposeMismatch", err)
	}
	if _, err := codec.Verify(reset, authcore.PurposeSession); !errors.Is(err, authcore.ErrPurposeMismatch) {
		t.Errorf("session err = %v, want ErrPurposeMismatch", err)
	}
	if _, err := codec.Verify(reset, authcore.PurposeResetPassword); err != nil {
		t.Errorf("correct purpose err = %v", err)
	}
}

func TestTokenExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := authcore.NewTokenCodec(testKey, "test-issuer")
	codec.Now = func() time.Time { return issued }

	token, err := codec.Issue("user-1", authcore.PurposeVerifyEmail, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"just before expiry", issued.Add(time.Hour - time.Second), nil},
		{"exactly at expiry", issued.Add(time.Hour), authcore.ErrTokenExpired},
		{"after expiry", issued.Add(2 * time.Hour), authcore.ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			codec.Now = func() time.Time { return tc.at }
			_, err := codec.Verify(token, authcore.PurposeVerifyEmail)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTokenTampering(t *testing.T) {
	codec := authcore.NewTokenCodec(testKey, "test-issuer")
	token, err := codec.Issue("user-1", authcore.PurposeVerifyEmail, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip one character in the payload segment.
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	if payload[10] == 'A' {
		payload[10] = 'B'
	} else {
		payload[10] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := codec.Verify(tampered, authcore.PurposeVerifyEmail); !errors.Is(err, authcore.ErrTokenInvalid) {
		t.Errorf("tampered err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenWrongKey(t *testing.T) {
	codec := authcore.NewTokenCodec(testKey, "test-issuer")
	other := authcore.NewTokenCodec([]byte("another-secret-key-another-secret"), "test-issuer")

	token, err := codec.Issue("user-1", authcore.PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(token, authcore.PurposeSession); !errors.Is(err, authcore.ErrTokenInvalid) {
		t.Errorf("wrong-key err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenGarbage(t *testing.T) {
	codec := authcore.NewTokenCodec(testKey, "test-issuer")
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := codec.Verify(tok, authcore.PurposeSession); !errors.Is(err, authcore.ErrTokenInvalid) {
			t.Errorf("Verify(%q) err = %v, want ErrTokenInvalid", tok, err)
		}
	}
}

func TestTokensAreUnique(t *testing.T) {
	codec := authcore.NewTokenCodec(testKey, "test-issuer")
	codec.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	// Same subject, purpose and clock still produce distinct tokens.
	a, err := codec.Issue("user-1", authcore.PurposeVerifyEmail, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	b, err := codec.Issue("user-1", authcore.PurposeVerifyEmail, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if a == b {
		t.Error("two issuances produced identical tokens")
	}
}
