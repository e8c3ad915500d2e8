package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// StateCookieName carries the anti-CSRF state across the provider redirect.
const StateCookieName = "oauthstate"

// NewState generates a random state value and sets it as a short-lived
// cookie on the response.
func NewState(w http.ResponseWriter, secure bool) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		MaxAge:   600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// CheckState validates the callback state against the cookie and clears the
// cookie either way.
func CheckState(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(StateCookieName)
	http.SetCookie(w, &http.Cookie{Name: StateCookieName, Value: "", Path: "/", MaxAge: -1})
	if err != nil || cookie.Value == "" {
		return fmt.Errorf("oauth state cookie missing")
	}
	if r.FormValue("state") != cookie.Value {
		return fmt.Errorf("oauth state mismatch")
	}
	return nil
}
