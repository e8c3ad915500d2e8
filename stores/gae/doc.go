//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the
// authcore store interfaces, with namespace support for multi-tenant
// deployments.
//
// # Datastore Kinds
//
// The package uses the following kinds:
//   - User: account records, keyed by user ID
//   - EmailIndex: normalized email to user ID, keyed by email
//   - Identity: linked provider identities, keyed by "provider:subject"
//   - Session: revocable session records, keyed by session ID
//
// Email and identity uniqueness are enforced inside Datastore transactions
// against the EmailIndex and Identity kinds.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.New(client, "") // default namespace
package gae
