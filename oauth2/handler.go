package oauth2

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/norspire/authcore"
)

// CompleteFunc receives the provider-asserted identity after a successful
// callback. authcore.Server.CompleteOAuth satisfies this signature.
type CompleteFunc func(w http.ResponseWriter, r *http.Request, assertion authcore.Assertion)

// Flow serves the redirect handshake for a single provider. Mount it under
// a provider-specific prefix; it answers "/" with the redirect to the
// provider and "/callback" with the code exchange.
type Flow struct {
	Provider Provider
	Complete CompleteFunc

	// SecureCookies marks the state cookie Secure. Enable outside tests.
	SecureCookies bool

	Logger *slog.Logger
}

func (f *Flow) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Handler returns the HTTP handler for this provider's flow.
func (f *Flow) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleRedirect)
	mux.HandleFunc("/callback", f.handleCallback)
	return mux
}

func (f *Flow) handleRedirect(w http.ResponseWriter, r *http.Request) {
	state, err := NewState(w, f.SecureCookies)
	if err != nil {
		f.logger().Error("failed generating oauth state", "provider", f.Provider.Name(), "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// Remember where to land after the handshake, relative URLs only.
	if next := r.URL.Query().Get("callbackURL"); next != "" {
		if u, err := url.Parse(next); err == nil && u.Scheme == "" && u.Host == "" {
			http.SetCookie(w, &http.Cookie{
				Name:   "oauthCallbackURL",
				Value:  next,
				Path:   "/",
				MaxAge: 120,
			})
		}
	}

	http.Redirect(w, r, f.Provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (f *Flow) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := CheckState(w, r); err != nil {
		f.logger().Warn("oauth state check failed", "provider", f.Provider.Name(), "err", err)
		http.Error(w, "Invalid oauth state", http.StatusBadRequest)
		return
	}

	if errParam := r.FormValue("error"); errParam != "" {
		f.logger().Warn("provider returned error", "provider", f.Provider.Name(), "error", errParam)
		http.Error(w, "Authorization was denied", http.StatusUnauthorized)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	assertion, err := f.Provider.Exchange(r.Context(), code)
	if err != nil {
		f.logger().Error("code exchange failed", "provider", f.Provider.Name(), "err", err)
		http.Error(w, "Sign-in failed", http.StatusUnauthorized)
		return
	}

	f.Complete(w, r, assertion)
}
