//go:build !wasm
// +build !wasm

// Package gorm provides GORM-backed implementations of the authcore store
// interfaces for any database GORM supports (PostgreSQL, MySQL, SQLite).
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: account records with credentials and profile
//   - linked_identities: provider identities attached to users
//   - auth_sessions: revocable session records
//
// Email and (provider, subject) uniqueness are enforced with unique
// indexes, so concurrent registration races resolve in the database.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	store := gormstore.New(db)
//
// Open the connection with TranslateError enabled so unique-constraint
// violations surface as gorm.ErrDuplicatedKey.
package gorm
