// Package authcore provides an account-authentication core for Go
// applications: local email/password accounts, federated OAuth identities,
// email verification and password reset workflows, and revocable sessions.
//
// # Architecture
//
// User: a unique account, identified by a user ID and holding the email,
// optional password hash, verification state and profile.
//
// LinkedIdentity: a (provider, subject) pair attaching an external identity
// to a user. A user can hold identities from several providers at once; the
// local password is modeled as an identity under ProviderLocal.
//
// The behavior is split across five collaborators:
//
//   - TokenCodec signs and verifies the purpose-scoped tokens used for
//     email verification, password reset and sessions.
//   - PasswordHasher wraps bcrypt hashing with a minimum-length policy.
//   - IdentityReconciler maps credentials or provider assertions to users,
//     creating and linking accounts as needed.
//   - WorkflowOrchestrator runs the verification and reset workflows,
//     including email delivery.
//   - AuthSessionIssuer issues, validates, refreshes and revokes sessions.
//
// # Basic Usage
//
// Wire the collaborators around a store:
//
//	import (
//	    "github.com/norspire/authcore"
//	    "github.com/norspire/authcore/stores"
//	)
//
//	store, _ := stores.NewFSStore("/path/to/storage")
//	codec := authcore.NewTokenCodec([]byte(secretKey), "yourapp")
//	hasher := authcore.NewPasswordHasher()
//
//	reconciler := authcore.NewIdentityReconciler(store, hasher)
//	issuer := authcore.NewAuthSessionIssuer(codec, store)
//	workflows := &authcore.WorkflowOrchestrator{
//	    Store:   store,
//	    Codec:   codec,
//	    Hasher:  hasher,
//	    Mailer:  &authcore.ConsoleMailer{},
//	    BaseURL: "https://yourapp.com",
//	}
//
// Serve the HTTP endpoints:
//
//	server := &authcore.Server{
//	    Reconciler: reconciler,
//	    Workflows:  workflows,
//	    Issuer:     issuer,
//	}
//	http.ListenAndServe(":8080", server.Handler())
//
// OAuth providers from the oauth2 subpackage mount onto the same server:
//
//	google := oauth2.NewGoogleProvider(clientID, clientSecret, callbackURL)
//	flow := &oauth2.Flow{Provider: google, Complete: server.CompleteOAuth}
//	server.Mount("/auth/google", flow.Handler())
//
// # Store Implementations
//
// The stores package provides a file-based store for development. The gorm,
// gae, memory and redis subpackages cover relational databases, Cloud
// Datastore, tests and Redis-backed sessions.
//
// # Security
//
// Passwords are hashed with bcrypt. Verification, reset and session tokens
// are HS256-signed JWTs scoped to a single purpose; a token issued for one
// purpose never validates for another. Reset tokens are bound to the
// account's credential generation, so completing one reset invalidates
// every outstanding reset token. Sessions are backed by revocable store
// records and die with them.
package authcore
