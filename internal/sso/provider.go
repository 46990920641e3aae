// Package sso runs the OAuth2 authorization-code flow against Google or
// Microsoft and yields the token the auth service expects: a Google ID token
// or a Microsoft Graph access token.
package sso

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/expensly/authclient/internal/core/domain"
)

var ErrNoIDToken = errors.New("sso: token response carries no id_token")

// Config holds the OAuth client registration for one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Tenant selects the Azure AD tenant; defaults to "common".
	Tenant string
	// Endpoint overrides the provider endpoint.
	Endpoint *oauth2.Endpoint
}

// Provider wraps an oauth2.Config for one SSO provider.
type Provider struct {
	kind   domain.SSOProvider
	oauth2 *oauth2.Config
}

// Flow is the per-attempt state the caller keeps between AuthCodeURL and
// Exchange.
type Flow struct {
	URL      string `json:"url"`
	State    string `json:"state"`
	Verifier string `json:"verifier"`
}

func NewGoogle(cfg Config) *Provider {
	endpoint := endpoints.Google
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &Provider{
		kind: domain.SSOGoogle,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}
}

func NewMicrosoft(cfg Config) *Provider {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	endpoint := endpoints.AzureAD(tenant)
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &Provider{
		kind: domain.SSOMicrosoft,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile", "User.Read"},
		},
	}
}

func (p *Provider) Kind() domain.SSOProvider {
	return p.kind
}

// Begin starts an authorization-code flow with PKCE (S256).
func (p *Provider) Begin(state string) Flow {
	verifier := oauth2.GenerateVerifier()
	return Flow{
		URL:      p.oauth2.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}
}

// Exchange trades the authorization code for provider tokens and returns the
// one the auth API accepts for this provider.
func (p *Provider) Exchange(ctx context.Context, flow Flow, state, code string) (string, error) {
	if state != flow.State {
		return "", fmt.Errorf("sso: state mismatch")
	}
	tok, err := p.oauth2.Exchange(ctx, code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		return "", fmt.Errorf("sso: exchange code: %w", err)
	}

	if p.kind == domain.SSOMicrosoft {
		return tok.AccessToken, nil
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", ErrNoIDToken
	}
	return rawIDToken, nil
}
