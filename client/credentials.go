// Package client provides client-side helpers for services backed by
// authcore: credential storage, session token management and an HTTP
// client that authenticates requests transparently.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential holds the session for a single server.
type Credential struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the session token has expired.
func (c *Credential) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// IsExpiringSoon reports whether the token expires within the given window.
func (c *Credential) IsExpiringSoon(within time.Duration) bool {
	return !c.ExpiresAt.IsZero() && time.Now().Add(within).After(c.ExpiresAt)
}

// tokenExpiry reads the exp claim out of a session token without verifying
// the signature. The server is the authority on validity; the client only
// uses this to schedule proactive refreshes.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// CredentialStore persists credentials keyed by server URL.
type CredentialStore interface {
	// GetCredential returns the credential for a server, or nil, nil when
	// none is stored.
	GetCredential(serverURL string) (*Credential, error)

	// SetCredential stores a credential for a server.
	SetCredential(serverURL string, cred *Credential) error

	// RemoveCredential drops the credential for a server.
	RemoveCredential(serverURL string) error

	// ListServers returns all server URLs with stored credentials.
	ListServers() ([]string, error)

	// Save flushes pending changes for stores that batch writes.
	Save() error
}

// FileStore keeps credentials in a JSON file, one entry per server.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	servers  map[string]*Credential
	modified bool
}

type credentialFile struct {
	Servers map[string]*Credential `json:"servers"`
}

// NewFileStore opens (or creates on first Save) a credential file. An empty
// path defaults to ~/.config/<appName>/credentials.json.
func NewFileStore(path string, appName string) (*FileStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "authcore"
		}
		path = filepath.Join(configDir, appName, "credentials.json")
	}

	store := &FileStore{
		path:    path,
		servers: make(map[string]*Credential),
	}
	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return store, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	s.servers = file.Servers
	if s.servers == nil {
		s.servers = make(map[string]*Credential)
	}
	return nil
}

// serverKey reduces a server URL to scheme://host.
func serverKey(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

func (s *FileStore) GetCredential(serverURL string) (*Credential, error) {
	key, err := serverKey(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.servers[key]
	if !ok {
		return nil, nil
	}
	return cred, nil
}

func (s *FileStore) SetCredential(serverURL string, cred *Credential) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[key] = cred
	s.modified = true
	return nil
}

func (s *FileStore) RemoveCredential(serverURL string) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, key)
	s.modified = true
	return nil
}

func (s *FileStore) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]string, 0, len(s.servers))
	for k := range s.servers {
		servers = append(servers, k)
	}
	return servers, nil
}

// Save writes the credential file with owner-only permissions.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.modified {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(credentialFile{Servers: s.servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	s.modified = false
	return nil
}

// Path returns the location of the credential file.
func (s *FileStore) Path() string {
	return s.path
}

// MemoryStore is an in-process CredentialStore, mainly for tests and
// short-lived tools.
type MemoryStore struct {
	mu      sync.RWMutex
	servers map[string]*Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{servers: make(map[string]*Credential)}
}

func (s *MemoryStore) GetCredential(serverURL string) (*Credential, error) {
	key, err := serverKey(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers[key], nil
}

func (s *MemoryStore) SetCredential(serverURL string, cred *Credential) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[key] = cred
	return nil
}

func (s *MemoryStore) RemoveCredential(serverURL string) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, key)
	return nil
}

func (s *MemoryStore) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]string, 0, len(s.servers))
	for k := range s.servers {
		servers = append(servers, k)
	}
	return servers, nil
}

func (s *MemoryStore) Save() error { return nil }
