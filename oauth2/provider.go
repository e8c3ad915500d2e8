// Package oauth2 implements the OAuth provider collaborators. Each provider
// performs its own redirect handshake and returns a provider-asserted
// identity tuple; user creation, linking and session decisions belong to the
// IdentityReconciler, never here.
package oauth2

import (
	"context"

	"github.com/norspire/authcore"
)

// Provider is the capability interface an external OAuth provider
// implements. Providers are a fixed set of variants (Google, Vipps, ...)
// selected by configuration.
type Provider interface {
	// Name returns the provider identifier recorded on linked identities.
	Name() authcore.Provider

	// AuthCodeURL returns the provider's authorization URL. State is
	// supplied by the caller and round-tripped through the redirect.
	AuthCodeURL(state string) string

	// Exchange trades the authorization code for the provider-asserted
	// identity tuple.
	Exchange(ctx context.Context, code string) (authcore.Assertion, error)
}
