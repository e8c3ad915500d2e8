package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// RefreshThreshold is how long before expiry a session is proactively
// refreshed.
const RefreshThreshold = 5 * time.Minute

// AuthClient talks to an authcore server and keeps the session token fresh.
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	authPrefix    string
}

// UserInfo is the sanitized user record the server returns.
type UserInfo struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Picture    string `json:"picture"`
	IsVerified bool   `json:"is_verified"`
	IsActive   bool   `json:"is_active"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// ClientOption configures an AuthClient.
type ClientOption func(*AuthClient)

// WithAuthPrefix sets the path prefix the auth routes are mounted under.
func WithAuthPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.authPrefix = prefix
	}
}

// WithTransport sets a custom base transport (connection pooling, proxies).
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a client for a server. Credentials read and written
// during Login, Logout and refresh go through the given store.
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	if u, err := url.Parse(serverURL); err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		authPrefix:    "/auth",
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &sessionTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns an http.Client that attaches the session token to every
// request and retries once after a refresh on 401.
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server this client is configured for.
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// GetToken returns the current session token, refreshing it first when it is
// about to expire. An empty token with a nil error means not logged in.
func (c *AuthClient) GetToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", nil
	}

	if cred.IsExpiringSoon(RefreshThreshold) {
		if err := c.refreshLocked(cred); err != nil {
			if !cred.IsExpired() {
				return cred.Token, nil
			}
			return "", fmt.Errorf("session expired and refresh failed: %w", err)
		}
		cred, _ = c.store.GetCredential(c.serverURL)
	}

	if cred == nil || cred.IsExpired() {
		return "", nil
	}
	return cred.Token, nil
}

// IsLoggedIn reports whether a live credential is stored for this server.
func (c *AuthClient) IsLoggedIn() bool {
	cred, err := c.store.GetCredential(c.serverURL)
	return err == nil && cred != nil && !cred.IsExpired()
}

// Register creates a local account. The account starts unverified; the
// server sends the verification email.
func (c *AuthClient) Register(email, password, name string) (*UserInfo, error) {
	var user UserInfo
	err := c.postJSON(c.authPrefix+"/register", map[string]string{
		"email": email, "password": password, "name": name,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates with email and password and stores the session.
func (c *AuthClient) Login(email, password string) (*Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resp struct {
		Token string   `json:"token"`
		User  UserInfo `json:"user"`
	}
	if err := c.postJSON(c.authPrefix+"/login", map[string]string{
		"email": email, "password": password,
	}, &resp); err != nil {
		return nil, err
	}

	cred := &Credential{
		Token:     resp.Token,
		UserID:    resp.User.ID,
		UserEmail: resp.User.Email,
		ExpiresAt: tokenExpiry(resp.Token),
		CreatedAt: time.Now(),
	}
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return cred, nil
}

// Logout revokes the server-side session and drops the stored credential.
func (c *AuthClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err == nil && cred != nil && cred.Token != "" {
		req, err := http.NewRequest(http.MethodPost, c.serverURL+c.authPrefix+"/logout", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+cred.Token)
			httpClient := &http.Client{Transport: c.baseTransport}
			if resp, err := httpClient.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}

	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

// Me fetches the profile of the logged-in user.
func (c *AuthClient) Me() (*UserInfo, error) {
	resp, err := c.httpClient.Get(c.serverURL + c.authPrefix + "/me")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var user UserInfo
	if err := decodeResponse(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// refreshLocked rotates the session token. Caller must hold c.mu.
func (c *AuthClient) refreshLocked(cred *Credential) error {
	req, err := http.NewRequest(http.MethodPost, c.serverURL+c.authPrefix+"/refresh", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	// Base transport directly, to stay out of the auth loop.
	httpClient := &http.Client{Transport: c.baseTransport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	var refreshed struct {
		Token string `json:"token"`
	}
	if err := decodeResponse(resp, &refreshed); err != nil {
		return err
	}

	next := &Credential{
		Token:     refreshed.Token,
		UserID:    cred.UserID,
		UserEmail: cred.UserEmail,
		ExpiresAt: tokenExpiry(refreshed.Token),
		CreatedAt: time.Now(),
	}
	if err := c.store.SetCredential(c.serverURL, next); err != nil {
		return fmt.Errorf("failed to store refreshed credential: %w", err)
	}
	return c.store.Save()
}

// postJSON sends an unauthenticated JSON request over the base transport.
func (c *AuthClient) postJSON(path string, body map[string]string, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	httpClient := &http.Client{Transport: c.baseTransport}
	resp, err := httpClient.Post(c.serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		json.Unmarshal(body, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}

// sessionTransport attaches the session token and retries once after a
// refresh when the server answers 401.
type sessionTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.GetToken()
	if err != nil {
		return nil, err
	}
	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		t.client.mu.Lock()
		cred, _ := t.client.store.GetCredential(t.client.serverURL)
		refreshed := false
		if cred != nil && cred.Token != "" {
			refreshed = t.client.refreshLocked(cred) == nil
		}
		t.client.mu.Unlock()

		if refreshed {
			resp.Body.Close()
			newToken, _ := t.client.GetToken()
			if newToken != "" {
				req = req.Clone(req.Context())
				req.Header.Set("Authorization", "Bearer "+newToken)
				return t.base.RoundTrip(req)
			}
		}
	}
	return resp, nil
}
