package authcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// Server exposes the authentication flows over HTTP. All endpoints under
// /auth speak JSON; verify-email and reset-password also accept the GET
// links embedded in emails.
type Server struct {
	Reconciler *IdentityReconciler
	Workflows  *WorkflowOrchestrator
	Issuer     *AuthSessionIssuer

	// Session manages server-side session state alongside the token cookie.
	// Optional; when set, Handler wraps the router in LoadAndSave.
	Session *scs.SessionManager

	Middleware Middleware

	// Cookie settings for the session token.
	CookieName    string
	CookieDomain  string
	SecureCookies bool

	// RequireVerifiedLogin rejects password logins from users who have not
	// completed email verification.
	RequireVerifiedLogin bool

	Logger *slog.Logger

	router *mux.Router
}

func (s *Server) ensureDefaults() {
	if s.CookieName == "" {
		s.CookieName = "AuthSessionToken"
	}
	if s.Middleware.Issuer == nil {
		s.Middleware.Issuer = s.Issuer
	}
	if s.Middleware.CookieName == "" {
		s.Middleware.CookieName = s.CookieName
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler returns the HTTP handler serving all auth routes.
func (s *Server) Handler() http.Handler {
	s.setupRoutes()
	if s.Session != nil {
		return s.Session.LoadAndSave(s.router)
	}
	return s.router
}

// Mount attaches an external handler (such as an OAuth provider flow) under
// the given prefix.
func (s *Server) Mount(prefix string, handler http.Handler) *Server {
	s.setupRoutes()
	prefix = strings.TrimSuffix(prefix, "/")
	s.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, handler))
	return s
}

func (s *Server) setupRoutes() {
	if s.router != nil {
		return
	}
	s.ensureDefaults()
	s.router = mux.NewRouter()
	auth := s.router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost, http.MethodGet)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodGet, http.MethodPost)
	auth.HandleFunc("/resend-verification", s.handleResendVerification).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	auth.Handle("/me", s.Middleware.RequireUser(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
}

// parseBody accepts JSON or form-encoded request bodies.
func parseBody(r *http.Request, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("error parsing form")
		}
		for _, f := range fields {
			out[f] = r.FormValue(f)
		}
		return out, nil
	}
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		return nil, fmt.Errorf("invalid post body")
	}
	for _, f := range fields {
		if v, ok := data[f].(string); ok {
			out[f] = v
		}
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": message, "code": code})
}

// userPayload is the sanitized user representation returned to clients.
func userPayload(u *User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"name":        u.DisplayName,
		"picture":     u.PictureURL,
		"is_verified": u.IsVerified,
		"is_active":   u.IsActive,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r, "email", "password", "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body["email"] == "" || body["password"] == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "email and password required")
		return
	}

	user, err := s.Reconciler.RegisterLocal(r.Context(), body["email"], body["password"], body["name"])
	switch {
	case errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "An account with that email already exists")
		return
	case errors.Is(err, ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid_email", "Invalid email address")
		return
	case errors.Is(err, ErrWeakCredential):
		writeError(w, http.StatusBadRequest, "weak_password", "Password does not meet the minimum requirements")
		return
	case err != nil:
		s.logger().Error("registration failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "Registration failed")
		return
	}

	// Verification delivery failures must not fail the registration.
	if s.Workflows != nil {
		if _, err := s.Workflows.BeginVerification(r.Context(), user); err != nil {
			s.logger().Error("verification email failed", "user", user.ID, "err", err)
		}
	}

	writeJSON(w, http.StatusCreated, userPayload(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r, "email", "password")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body["email"] == "" || body["password"] == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "email and password required")
		return
	}

	user, err := s.Reconciler.ResolveLocal(r.Context(), body["email"], body["password"])
	if err != nil {
		// Inactive accounts get the same answer as bad credentials.
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}
	if s.RequireVerifiedLogin && !user.IsVerified {
		writeError(w, http.StatusForbidden, "email_not_verified", "Verify your email before logging in")
		return
	}

	token, err := s.establishSession(w, r, user)
	if err != nil {
		s.logger().Error("session issue failed", "user", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": userPayload(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	for _, token := range s.Middleware.candidateTokens(r) {
		if err := s.Issuer.Revoke(r.Context(), token); err != nil {
			s.logger().Warn("session revoke failed", "err", err)
		}
	}
	s.clearSession(w, r)

	if to := r.URL.Query().Get("to"); to != "" {
		http.Redirect(w, r, to, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var refreshed string
	for _, token := range s.Middleware.candidateTokens(r) {
		next, err := s.Issuer.Refresh(r.Context(), token)
		if err == nil {
			refreshed = next
			break
		}
	}
	if refreshed == "" {
		writeError(w, http.StatusUnauthorized, "invalid_session", "Not authenticated")
		return
	}
	s.setSessionCookie(w, refreshed)
	if s.Session != nil {
		s.Session.Put(r.Context(), s.CookieName, refreshed)
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": refreshed})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := LoggedInUserID(r.Context())
	user, err := s.Reconciler.Store.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_session", "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, userPayload(user))
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if body, err := parseBody(r, "token"); err == nil {
			token = body["token"]
		}
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "token required")
		return
	}

	user, err := s.Workflows.ConfirmVerification(r.Context(), token)
	if err != nil {
		// Expired, malformed, wrong-purpose and consumed tokens all get
		// the same answer.
		writeError(w, http.StatusBadRequest, "invalid_token", "Link is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": userPayload(user)})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r, "email")
	if err != nil || body["email"] == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "email required")
		return
	}

	// Do not reveal whether the email is registered.
	user, err := s.Reconciler.Store.GetUserByEmail(r.Context(), NormalizeEmail(body["email"]))
	if err == nil {
		if _, err := s.Workflows.BeginVerification(r.Context(), user); err != nil {
			s.logger().Error("verification email failed", "user", user.ID, "err", err)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r, "email")
	if err != nil || body["email"] == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "email required")
		return
	}

	if _, err := s.Workflows.BeginPasswordReset(r.Context(), body["email"]); err != nil {
		s.logger().Error("reset email failed", "err", err)
	}
	// Always the same answer, whether or not the email exists.
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "If that email exists, a reset link has been sent",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r, "token", "password")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body["token"] == "" || body["password"] == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "token and password required")
		return
	}

	user, err := s.Workflows.ConfirmPasswordReset(r.Context(), body["token"], body["password"])
	switch {
	case errors.Is(err, ErrWeakCredential):
		writeError(w, http.StatusBadRequest, "weak_password", "Password does not meet the minimum requirements")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid_token", "Link is invalid or expired")
		return
	}

	// The reset invalidated all existing sessions; drop this client's too.
	s.clearSession(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "email": user.Email})
}

// CompleteOAuth finishes a provider callback: the assertion is reconciled
// into a user, a session is established and the client is redirected to the
// URL saved before the handshake. Its signature matches the oauth2 package's
// completion callback.
func (s *Server) CompleteOAuth(w http.ResponseWriter, r *http.Request, assertion Assertion) {
	user, err := s.Reconciler.ResolveOAuth(r.Context(), assertion)
	if err != nil {
		s.logger().Error("oauth reconciliation failed", "provider", assertion.Provider, "err", err)
		writeError(w, http.StatusUnauthorized, "oauth_failed", "Sign-in failed")
		return
	}

	if _, err := s.establishSession(w, r, user); err != nil {
		s.logger().Error("session issue failed", "user", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "Sign-in failed")
		return
	}

	// Relative URLs only: a scheme or host would let a tampered cookie
	// redirect off-site.
	callbackURL := "/"
	if cookie, _ := r.Cookie("oauthCallbackURL"); cookie != nil && cookie.Value != "" {
		if u, err := url.Parse(cookie.Value); err == nil && u.Scheme == "" && u.Host == "" {
			callbackURL = cookie.Value
		}
	}
	http.SetCookie(w, &http.Cookie{Name: "oauthCallbackURL", Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

// establishSession mints a session token and binds it to the response via
// cookie and, when configured, the server-side session.
func (s *Server) establishSession(w http.ResponseWriter, r *http.Request, user *User) (string, error) {
	s.ensureDefaults()
	token, err := s.Issuer.IssueSession(r.Context(), user)
	if err != nil {
		return "", err
	}
	if s.Session != nil {
		s.Session.Put(r.Context(), "loggedInUserId", user.ID)
		s.Session.Put(r.Context(), s.CookieName, token)
	}
	s.setSessionCookie(w, token)
	return token, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	ttl := s.Issuer.ttl()
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    token,
		Domain:   s.CookieDomain,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	s.ensureDefaults()
	if s.Session != nil {
		if err := s.Session.Clear(r.Context()); err != nil {
			s.logger().Warn("error clearing session", "err", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:    s.CookieName,
		Domain:  s.CookieDomain,
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}
