package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
)

const googleIssuer = "https://accounts.google.com"

// GoogleVerifier checks Google ID tokens against the provider's published keys.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ ports.IdentityVerifier = (*GoogleVerifier)(nil)

// NewGoogleVerifier discovers Google's OIDC configuration.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google oidc: %w", err)
	}
	return &GoogleVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewGoogleVerifierWithKeys builds a verifier over a fixed key set.
func NewGoogleVerifierWithKeys(issuer, clientID string, keys oidc.KeySet) *GoogleVerifier {
	return &GoogleVerifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

func (g *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*domain.ExternalIdentity, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extract google claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: id token carries no email", domain.ErrTokenInvalid)
	}

	return &domain.ExternalIdentity{
		Provider:      domain.SSOGoogle,
		Subject:       claims.Sub,
		Email:         strings.ToLower(claims.Email),
		EmailVerified: claims.EmailVerified,
		FirstName:     claims.GivenName,
		LastName:      claims.FamilyName,
	}, nil
}

// MicrosoftVerifier resolves a Microsoft access token by calling Graph /me
// with it.
type MicrosoftVerifier struct {
	graphURL string
	base     *http.Client
}

var _ ports.IdentityVerifier = (*MicrosoftVerifier)(nil)

// NewMicrosoftVerifier uses base (or http.DefaultClient) as the transport.
func NewMicrosoftVerifier(graphURL string, base *http.Client) *MicrosoftVerifier {
	if base == nil {
		base = http.DefaultClient
	}
	return &MicrosoftVerifier{graphURL: graphURL, base: base}
}

func (m *MicrosoftVerifier) Verify(ctx context.Context, accessToken string) (*domain.ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.graphURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: graph returned %d", domain.ErrTokenInvalid, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph returned %d", resp.StatusCode)
	}

	var me struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		GivenName         string `json:"givenName"`
		Surname           string `json:"surname"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("decode graph profile: %w", err)
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	if me.ID == "" || email == "" {
		return nil, fmt.Errorf("%w: graph profile incomplete", domain.ErrTokenInvalid)
	}

	return &domain.ExternalIdentity{
		Provider:      domain.SSOMicrosoft,
		Subject:       me.ID,
		Email:         strings.ToLower(email),
		EmailVerified: true,
		FirstName:     me.GivenName,
		LastName:      me.Surname,
	}, nil
}
