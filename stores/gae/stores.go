//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/norspire/authcore"
)

// Store implements authcore.CredentialStore and authcore.SessionStore on
// Google Cloud Datastore.
type Store struct {
	client    *datastore.Client
	namespace string
}

func New(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) key(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func identityName(provider authcore.Provider, subject string) string {
	return string(provider) + ":" + subject
}

func (s *Store) CreateUser(ctx context.Context, nu authcore.NewUser) (*authcore.User, error) {
	email := authcore.NormalizeEmail(nu.Email)
	userID := uuid.NewString()
	now := time.Now().UTC()
	entity := &UserEntity{
		Email:        email,
		PasswordHash: nu.PasswordHash,
		IsVerified:   nu.IsVerified,
		IsActive:     true,
		DisplayName:  nu.DisplayName,
		PictureURL:   nu.PictureURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The email reservation and the user record are written in one
	// transaction, so a concurrent registration loses cleanly.
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing EmailIndexEntity
		err := tx.Get(s.key(KindEmailIndex, email), &existing)
		if err == nil {
			return authcore.ErrEmailTaken
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(s.key(KindEmailIndex, email), &EmailIndexEntity{UserID: userID, CreatedAt: now}); err != nil {
			return err
		}
		_, err = tx.Put(s.key(KindUser, userID), entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity.toUser(userID), nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*authcore.User, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.key(KindUser, userID), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, err
	}
	return entity.toUser(userID), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	var idx EmailIndexEntity
	err := s.client.Get(ctx, s.key(KindEmailIndex, authcore.NormalizeEmail(email)), &idx)
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserByID(ctx, idx.UserID)
}

func (s *Store) GetUserByIdentity(ctx context.Context, provider authcore.Provider, subject string) (*authcore.User, error) {
	var ident IdentityEntity
	err := s.client.Get(ctx, s.key(KindIdentity, identityName(provider, subject)), &ident)
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserByID(ctx, ident.UserID)
}

func (s *Store) LinkIdentity(ctx context.Context, userID string, provider authcore.Provider, subject string) error {
	key := s.key(KindIdentity, identityName(provider, subject))
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing IdentityEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return authcore.ErrIdentityTaken
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err = tx.Put(key, &IdentityEntity{
			Provider: string(provider),
			Subject:  subject,
			UserID:   userID,
			LinkedAt: time.Now().UTC(),
		})
		return err
	})
	return err
}

func (s *Store) ListIdentities(ctx context.Context, userID string) ([]*authcore.LinkedIdentity, error) {
	query := datastore.NewQuery(KindIdentity).
		Namespace(s.namespace).
		FilterField("user_id", "=", userID)

	var out []*authcore.LinkedIdentity
	it := s.client.Run(ctx, query)
	for {
		var entity IdentityEntity
		if _, err := it.Next(&entity); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, err
		}
		out = append(out, entity.toIdentity())
	}
	return out, nil
}

// mutateUser applies fn to the user entity inside a transaction.
func (s *Store) mutateUser(ctx context.Context, userID string, fn func(*UserEntity) error) error {
	key := s.key(KindUser, userID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authcore.ErrUserNotFound
			}
			return err
		}
		if err := fn(&entity); err != nil {
			return err
		}
		entity.UpdatedAt = time.Now().UTC()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *Store) SetVerified(ctx context.Context, userID string) error {
	return s.mutateUser(ctx, userID, func(e *UserEntity) error {
		e.IsVerified = true
		return nil
	})
}

func (s *Store) SetPassword(ctx context.Context, userID string, passwordHash string, expectedGeneration int) error {
	return s.mutateUser(ctx, userID, func(e *UserEntity) error {
		if e.CredentialGeneration != expectedGeneration {
			return authcore.ErrTokenExpired
		}
		e.PasswordHash = passwordHash
		e.CredentialGeneration++
		return nil
	})
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, upd authcore.ProfileUpdate) error {
	return s.mutateUser(ctx, userID, func(e *UserEntity) error {
		if upd.DisplayName != nil {
			e.DisplayName = *upd.DisplayName
		}
		if upd.PictureURL != nil {
			e.PictureURL = *upd.PictureURL
		}
		return nil
	})
}

func (s *Store) CreateSession(ctx context.Context, sess *authcore.Session) error {
	entity := &SessionEntity{
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		Revoked:   sess.Revoked,
	}
	_, err := s.client.Put(ctx, s.key(KindSession, sess.ID), entity)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*authcore.Session, error) {
	var entity SessionEntity
	err := s.client.Get(ctx, s.key(KindSession, sessionID), &entity)
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return entity.toSession(sessionID), nil
}

func (s *Store) RevokeSession(ctx context.Context, sessionID string) error {
	key := s.key(KindSession, sessionID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity SessionEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return nil
			}
			return err
		}
		entity.Revoked = true
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	query := datastore.NewQuery(KindSession).
		Namespace(s.namespace).
		FilterField("user_id", "=", userID).
		KeysOnly()

	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return err
		}
		if err := s.RevokeSession(ctx, key.Name); err != nil {
			return err
		}
	}
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before cutoff.
func (s *Store) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) error {
	query := datastore.NewQuery(KindSession).
		Namespace(s.namespace).
		FilterField("expires_at", "<", cutoff).
		KeysOnly()

	var keys []*datastore.Key
	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(ctx, keys)
}
