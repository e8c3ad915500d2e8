package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/norspire/authcore"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProvider authenticates users against Google OAuth2.
type GoogleProvider struct {
	config oauth2.Config

	// UserInfoURL can be overridden in tests. Defaults to the Google
	// userinfo endpoint.
	UserInfoURL string
}

func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		UserInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleProvider) Name() authcore.Provider {
	return authcore.ProviderGoogle
}

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange trades the code for an access token and fetches the user's
// profile from the userinfo endpoint.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (authcore.Assertion, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return authcore.Assertion{}, fmt.Errorf("google code exchange failed: %w", err)
	}

	userInfo, err := g.fetchUserInfo(ctx, token)
	if err != nil {
		return authcore.Assertion{}, err
	}
	if userInfo.ID == "" || userInfo.Email == "" {
		return authcore.Assertion{}, errors.New("google userinfo missing id or email")
	}

	return authcore.Assertion{
		Provider:    authcore.ProviderGoogle,
		Subject:     userInfo.ID,
		Email:       userInfo.Email,
		DisplayName: userInfo.Name,
		PictureURL:  userInfo.Picture,
	}, nil
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (g *GoogleProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting google user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading google userinfo response: %w", err)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed decoding google userinfo: %w", err)
	}
	return &info, nil
}
