package client_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/norspire/authcore"
	"github.com/norspire/authcore/client"
	"github.com/norspire/authcore/stores/memory"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestServer(t *testing.T, sessionTTL time.Duration) (*httptest.Server, *authcore.AuthSessionIssuer) {
	t.Helper()
	store := memory.New()
	codec := authcore.NewTokenCodec(testKey, "test-issuer")
	issuer := authcore.NewAuthSessionIssuer(codec, store)
	issuer.TTL = sessionTTL
	server := &authcore.Server{
		Reconciler: authcore.NewIdentityReconciler(store, &authcore.PasswordHasher{Cost: bcrypt.MinCost}),
		Issuer:     issuer,
	}
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, issuer
}

func TestLoginMeLogout(t *testing.T) {
	ts, _ := newTestServer(t, time.Hour)
	c := client.NewAuthClient(ts.URL, client.NewMemoryStore())

	if _, err := c.Register("alice@example.com", "password123", "Alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	cred, err := c.Login("alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if cred.Token == "" || cred.UserEmail != "alice@example.com" {
		t.Fatalf("credential = %+v", cred)
	}
	if cred.ExpiresAt.IsZero() {
		t.Error("login did not record the token expiry")
	}
	if !c.IsLoggedIn() {
		t.Error("IsLoggedIn = false after login")
	}

	me, err := c.Me()
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Email != "alice@example.com" || me.Name != "Alice" {
		t.Errorf("Me = %+v", me)
	}

	if err := c.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if c.IsLoggedIn() {
		t.Error("IsLoggedIn = true after logout")
	}
	if _, err := c.Me(); err == nil {
		t.Error("Me succeeded after logout")
	}
}

func TestLoginBadPassword(t *testing.T) {
	ts, _ := newTestServer(t, time.Hour)
	c := client.NewAuthClient(ts.URL, client.NewMemoryStore())
	c.Register("alice@example.com", "password123", "")

	_, err := c.Login("alice@example.com", "wrong-password")
	apiErr, ok := err.(*client.APIError)
	if !ok {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 401 || apiErr.Code != "invalid_credentials" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestProactiveRefresh(t *testing.T) {
	// Sessions shorter than the refresh threshold force a rotation on the
	// next GetToken.
	ts, _ := newTestServer(t, time.Minute)
	c := client.NewAuthClient(ts.URL, client.NewMemoryStore())
	c.Register("alice@example.com", "password123", "")
	cred, err := c.Login("alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	token, err := c.GetToken()
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if token == "" || token == cred.Token {
		t.Fatal("GetToken did not rotate the near-expiry session")
	}

	// The rotated token authenticates; Me exercises it end to end.
	if _, err := c.Me(); err != nil {
		t.Fatalf("Me with refreshed session: %v", err)
	}
}

func TestRevokedSessionFailsClosed(t *testing.T) {
	ts, issuer := newTestServer(t, time.Hour)
	c := client.NewAuthClient(ts.URL, client.NewMemoryStore())
	c.Register("alice@example.com", "password123", "")
	cred, _ := c.Login("alice@example.com", "password123")

	if err := issuer.Revoke(context.Background(), cred.Token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := c.Me(); err == nil {
		t.Error("Me succeeded with a revoked session")
	}
}

func TestFileStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	store, err := client.NewFileStore(path, "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cred := &client.Credential{
		Token:     "tok-1",
		UserEmail: "alice@example.com",
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
		CreatedAt: time.Now().Truncate(time.Second),
	}
	if err := store.SetCredential("https://auth.example.com/some/path", cred); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := client.NewFileStore(path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.GetCredential("https://auth.example.com")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if got == nil || got.Token != "tok-1" || got.UserEmail != "alice@example.com" {
		t.Fatalf("credential = %+v", got)
	}

	servers, _ := reopened.ListServers()
	if len(servers) != 1 || servers[0] != "https://auth.example.com" {
		t.Errorf("ListServers = %v", servers)
	}

	if err := reopened.RemoveCredential("https://auth.example.com"); err != nil {
		t.Fatalf("RemoveCredential: %v", err)
	}
	if err := reopened.Save(); err != nil {
		t.Fatalf("Save after remove: %v", err)
	}
	final, _ := client.NewFileStore(path, "")
	if got, _ := final.GetCredential("https://auth.example.com"); got != nil {
		t.Errorf("credential survived removal: %+v", got)
	}
}
