// Package stores provides a filesystem-backed store for development and
// small single-process deployments. Users, identities and sessions are
// stored as JSON files under a root directory; uniqueness is enforced
// through an index file mutated under a process-wide lock.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/norspire/authcore"
)

// FSStore implements authcore.CredentialStore and authcore.SessionStore on
// top of a directory tree. Not safe for use from multiple processes.
type FSStore struct {
	root string
	mu   sync.Mutex
}

type fsIndex struct {
	// Emails maps normalized email to user ID.
	Emails map[string]string `json:"emails"`
	// Identities maps "provider/subject" to user ID.
	Identities map[string]string `json:"identities"`
}

func NewFSStore(root string) (*FSStore, error) {
	for _, dir := range []string{root, filepath.Join(root, "users"), filepath.Join(root, "sessions")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &FSStore{root: root}, nil
}

type fsUser struct {
	authcore.User
	Identities []*authcore.LinkedIdentity `json:"identities"`
}

func identityRef(provider authcore.Provider, subject string) string {
	return string(provider) + "/" + subject
}

func (s *FSStore) userPath(userID string) string {
	return filepath.Join(s.root, "users", userID+".json")
}

func (s *FSStore) sessionPath(sessionID string) string {
	return filepath.Join(s.root, "sessions", sessionID+".json")
}

func (s *FSStore) indexPath() string {
	return filepath.Join(s.root, "index.json")
}

func (s *FSStore) loadIndex() (*fsIndex, error) {
	idx := &fsIndex{Emails: map[string]string{}, Identities: map[string]string{}}
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("corrupt index file: %w", err)
	}
	return idx, nil
}

func (s *FSStore) saveIndex(idx *fsIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath(), data)
}

func (s *FSStore) loadUser(userID string) (*fsUser, error) {
	data, err := os.ReadFile(s.userPath(userID))
	if os.IsNotExist(err) {
		return nil, authcore.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var u fsUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("corrupt user file %s: %w", userID, err)
	}
	return &u, nil
}

func (s *FSStore) saveUser(u *fsUser) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.userPath(u.ID), data)
}

func (s *FSStore) CreateUser(ctx context.Context, nu authcore.NewUser) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	email := authcore.NormalizeEmail(nu.Email)
	if _, taken := idx.Emails[email]; taken {
		return nil, authcore.ErrEmailTaken
	}

	now := time.Now().UTC()
	u := &fsUser{User: authcore.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: nu.PasswordHash,
		IsVerified:   nu.IsVerified,
		IsActive:     true,
		DisplayName:  nu.DisplayName,
		PictureURL:   nu.PictureURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
	if err := s.saveUser(u); err != nil {
		return nil, err
	}
	idx.Emails[email] = u.ID
	if err := s.saveIndex(idx); err != nil {
		return nil, err
	}
	out := u.User
	return &out, nil
}

func (s *FSStore) GetUserByID(ctx context.Context, userID string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.loadUser(userID)
	if err != nil {
		return nil, err
	}
	out := u.User
	return &out, nil
}

func (s *FSStore) GetUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	userID, ok := idx.Emails[authcore.NormalizeEmail(email)]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	u, err := s.loadUser(userID)
	if err != nil {
		return nil, err
	}
	out := u.User
	return &out, nil
}

func (s *FSStore) GetUserByIdentity(ctx context.Context, provider authcore.Provider, subject string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	userID, ok := idx.Identities[identityRef(provider, subject)]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	u, err := s.loadUser(userID)
	if err != nil {
		return nil, err
	}
	out := u.User
	return &out, nil
}

func (s *FSStore) LinkIdentity(ctx context.Context, userID string, provider authcore.Provider, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	ref := identityRef(provider, subject)
	if _, taken := idx.Identities[ref]; taken {
		return authcore.ErrIdentityTaken
	}
	u, err := s.loadUser(userID)
	if err != nil {
		return err
	}
	u.Identities = append(u.Identities, &authcore.LinkedIdentity{
		UserID:   userID,
		Provider: provider,
		Subject:  subject,
		LinkedAt: time.Now().UTC(),
	})
	if err := s.saveUser(u); err != nil {
		return err
	}
	idx.Identities[ref] = userID
	return s.saveIndex(idx)
}

func (s *FSStore) ListIdentities(ctx context.Context, userID string) ([]*authcore.LinkedIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.loadUser(userID)
	if err != nil {
		return nil, err
	}
	return u.Identities, nil
}

func (s *FSStore) SetVerified(ctx context.Context, userID string) error {
	return s.mutateUser(userID, func(u *fsUser) error {
		u.IsVerified = true
		return nil
	})
}

func (s *FSStore) SetPassword(ctx context.Context, userID string, passwordHash string, expectedGeneration int) error {
	return s.mutateUser(userID, func(u *fsUser) error {
		if u.CredentialGeneration != expectedGeneration {
			return authcore.ErrTokenExpired
		}
		u.PasswordHash = passwordHash
		u.CredentialGeneration++
		return nil
	})
}

func (s *FSStore) UpdateProfile(ctx context.Context, userID string, upd authcore.ProfileUpdate) error {
	return s.mutateUser(userID, func(u *fsUser) error {
		if upd.DisplayName != nil {
			u.DisplayName = *upd.DisplayName
		}
		if upd.PictureURL != nil {
			u.PictureURL = *upd.PictureURL
		}
		return nil
	})
}

func (s *FSStore) mutateUser(userID string, fn func(*fsUser) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.loadUser(userID)
	if err != nil {
		return err
	}
	if err := fn(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	return s.saveUser(u)
}

func (s *FSStore) CreateSession(ctx context.Context, sess *authcore.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.sessionPath(sess.ID), data)
}

func (s *FSStore) GetSession(ctx context.Context, sessionID string) (*authcore.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSession(sessionID)
}

func (s *FSStore) loadSession(sessionID string) (*authcore.Session, error) {
	data, err := os.ReadFile(s.sessionPath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess authcore.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *FSStore) RevokeSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeSession(sessionID)
}

func (s *FSStore) revokeSession(sessionID string) error {
	sess, err := s.loadSession(sessionID)
	if err != nil || sess == nil {
		return err
	}
	sess.Revoked = true
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.sessionPath(sessionID), data)
}

func (s *FSStore) RevokeUserSessions(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, "sessions"))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		sessionID := entry.Name()
		if filepath.Ext(sessionID) != ".json" {
			continue
		}
		sessionID = sessionID[:len(sessionID)-len(".json")]
		sess, err := s.loadSession(sessionID)
		if err != nil || sess == nil {
			continue
		}
		if sess.UserID == userID {
			if err := s.revokeSession(sessionID); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeFileAtomic writes through a temp file plus rename so readers never
// observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
