package oauth2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/norspire/authcore"
)

// DefaultVippsIssuer is the production Vipps Login issuer. The test
// environment uses apitest.vipps.no instead.
const DefaultVippsIssuer = "https://api.vipps.no/access-management-1.0/access/"

// VippsProvider authenticates users against Vipps Login, an OIDC provider.
// Endpoints are resolved through discovery against the issuer.
type VippsProvider struct {
	config   oauth2.Config
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVippsProvider initializes the provider via OIDC discovery. issuer
// defaults to DefaultVippsIssuer when empty.
func NewVippsProvider(ctx context.Context, clientID, clientSecret, callbackURL, issuer string) (*VippsProvider, error) {
	if clientID == "" || clientSecret == "" || callbackURL == "" {
		return nil, errors.New("vipps oauth config missing required fields")
	}
	if issuer == "" {
		issuer = DefaultVippsIssuer
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init vipps oidc provider: %w", err)
	}

	return &VippsProvider{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "name", "phoneNumber"},
		},
	}, nil
}

func (v *VippsProvider) Name() authcore.Provider {
	return authcore.ProviderVipps
}

func (v *VippsProvider) AuthCodeURL(state string) string {
	return v.config.AuthCodeURL(state)
}

// Exchange trades the code for tokens, verifies the ID token and fetches
// userinfo. Vipps flattens the profile into the userinfo response and does
// not supply a picture.
func (v *VippsProvider) Exchange(ctx context.Context, code string) (authcore.Assertion, error) {
	token, err := v.config.Exchange(ctx, code)
	if err != nil {
		return authcore.Assertion{}, fmt.Errorf("vipps token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return authcore.Assertion{}, errors.New("vipps did not return id_token")
	}
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return authcore.Assertion{}, fmt.Errorf("vipps id_token verification failed: %w", err)
	}

	userInfo, err := v.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return authcore.Assertion{}, fmt.Errorf("failed getting vipps user info: %w", err)
	}

	var claims struct {
		Name       string `json:"name"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	if err := userInfo.Claims(&claims); err != nil {
		return authcore.Assertion{}, fmt.Errorf("vipps userinfo claims parse failed: %w", err)
	}

	email := userInfo.Email
	if email == "" {
		return authcore.Assertion{}, errors.New("no email provided by vipps")
	}

	name := claims.Name
	if name == "" {
		name = strings.TrimSpace(claims.GivenName + " " + claims.FamilyName)
	}

	return authcore.Assertion{
		Provider:    authcore.ProviderVipps,
		Subject:     idToken.Subject,
		Email:       email,
		DisplayName: name,
	}, nil
}
