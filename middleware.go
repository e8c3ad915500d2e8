package authcore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type loggedInUserKey struct{}

// Middleware resolves the logged-in user from incoming requests. Session
// tokens are accepted from the Authorization header (Bearer scheme) or from
// the session cookie.
type Middleware struct {
	// Issuer validates session tokens. Required.
	Issuer *AuthSessionIssuer

	// CookieName is the session cookie to read tokens from.
	CookieName string

	// HeaderName defaults to "Authorization".
	HeaderName string

	// LoginURL, when set, makes RequireUser redirect instead of returning
	// 401. The original path is passed in the "next" query parameter.
	LoginURL string
}

func (m *Middleware) ensureDefaults() {
	if m.HeaderName == "" {
		m.HeaderName = "Authorization"
	}
	if m.CookieName == "" {
		m.CookieName = "AuthSessionToken"
	}
}

// candidateTokens collects session tokens from the request, header first.
func (m *Middleware) candidateTokens(r *http.Request) []string {
	m.ensureDefaults()
	var tokens []string
	for _, v := range r.Header.Values(m.HeaderName) {
		tokens = append(tokens, strings.TrimPrefix(v, "Bearer "))
	}
	for _, cookie := range r.CookiesNamed(m.CookieName) {
		if cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}
	return tokens
}

// UserID returns the authenticated user's ID, or "" when no valid session
// token accompanies the request.
func (m *Middleware) UserID(r *http.Request) string {
	if v, ok := r.Context().Value(loggedInUserKey{}).(string); ok && v != "" {
		return v
	}
	for _, token := range m.candidateTokens(r) {
		if userID, err := m.Issuer.Validate(r.Context(), token); err == nil {
			return userID
		}
	}
	return ""
}

// ExtractUser resolves the user and stores the ID on the request context.
// It never rejects the request; use RequireUser for protected routes.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, m.withUserID(r, m.UserID(r)))
	})
}

// RequireUser rejects requests without a valid session, with a redirect to
// LoginURL when configured and a 401 otherwise.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := m.UserID(r)
		if userID == "" {
			if m.LoginURL != "" {
				target := fmt.Sprintf("%s?next=%s", m.LoginURL, url.QueryEscape(r.URL.Path))
				http.Redirect(w, r, target, http.StatusFound)
			} else {
				http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
			}
			return
		}
		next.ServeHTTP(w, m.withUserID(r, userID))
	})
}

func (m *Middleware) withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), loggedInUserKey{}, userID))
}

// LoggedInUserID reads the user ID placed on the context by ExtractUser or
// RequireUser.
func LoggedInUserID(ctx context.Context) string {
	v, _ := ctx.Value(loggedInUserKey{}).(string)
	return v
}
