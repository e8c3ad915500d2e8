// Package memory provides map-backed stores guarded by a single mutex.
// Suitable for tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/norspire/authcore"
)

type identityKey struct {
	provider authcore.Provider
	subject  string
}

// Store implements authcore.CredentialStore and authcore.SessionStore in
// process memory.
type Store struct {
	mu         sync.Mutex
	users      map[string]*authcore.User
	byEmail    map[string]string
	identities map[identityKey]*authcore.LinkedIdentity
	sessions   map[string]*authcore.Session
}

func New() *Store {
	return &Store{
		users:      make(map[string]*authcore.User),
		byEmail:    make(map[string]string),
		identities: make(map[identityKey]*authcore.LinkedIdentity),
		sessions:   make(map[string]*authcore.Session),
	}
}

func cloneUser(u *authcore.User) *authcore.User {
	c := *u
	return &c
}

func (s *Store) CreateUser(ctx context.Context, nu authcore.NewUser) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := authcore.NormalizeEmail(nu.Email)
	if _, taken := s.byEmail[email]; taken {
		return nil, authcore.ErrEmailTaken
	}

	now := time.Now().UTC()
	user := &authcore.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: nu.PasswordHash,
		IsVerified:   nu.IsVerified,
		IsActive:     true,
		DisplayName:  nu.DisplayName,
		PictureURL:   nu.PictureURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user
	s.byEmail[email] = user.ID
	return cloneUser(user), nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byEmail[authcore.NormalizeEmail(email)]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return cloneUser(s.users[userID]), nil
}

func (s *Store) GetUserByIdentity(ctx context.Context, provider authcore.Provider, subject string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[identityKey{provider, subject}]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return cloneUser(s.users[ident.UserID]), nil
}

func (s *Store) LinkIdentity(ctx context.Context, userID string, provider authcore.Provider, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return authcore.ErrUserNotFound
	}
	key := identityKey{provider, subject}
	if _, taken := s.identities[key]; taken {
		return authcore.ErrIdentityTaken
	}
	s.identities[key] = &authcore.LinkedIdentity{
		UserID:   userID,
		Provider: provider,
		Subject:  subject,
		LinkedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context, userID string) ([]*authcore.LinkedIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*authcore.LinkedIdentity
	for _, ident := range s.identities {
		if ident.UserID == userID {
			c := *ident
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) SetVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	user.IsVerified = true
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetPassword(ctx context.Context, userID string, passwordHash string, expectedGeneration int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	if user.CredentialGeneration != expectedGeneration {
		return authcore.ErrTokenExpired
	}
	user.PasswordHash = passwordHash
	user.CredentialGeneration++
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// SetActive toggles the account's active flag. Not part of the store
// contract; exposed for admin tooling and tests.
func (s *Store) SetActive(userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	user.IsActive = active
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, upd authcore.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	if upd.DisplayName != nil {
		user.DisplayName = *upd.DisplayName
	}
	if upd.PictureURL != nil {
		user.PictureURL = *upd.PictureURL
	}
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *authcore.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *sess
	s.sessions[sess.ID] = &c
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*authcore.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (s *Store) RevokeSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		sess.Revoked = true
	}
	return nil
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.Revoked = true
		}
	}
	return nil
}
