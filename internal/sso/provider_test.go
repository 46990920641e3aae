package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/expensly/authclient/internal/core/domain"
)

func tokenServer(t *testing.T, body map[string]any) (*httptest.Server, *url.Values) {
	t.Helper()
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &form
}

func endpoint(srv *httptest.Server) *oauth2.Endpoint {
	return &oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func TestBegin_BuildsPKCEURL(t *testing.T) {
	p := NewGoogle(Config{ClientID: "cid", RedirectURL: "http://localhost/cb"})
	flow := p.Begin("st-1")

	u, err := url.Parse(flow.URL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "accounts.google.com", u.Host)
	require.Equal(t, "cid", q.Get("client_id"))
	require.Equal(t, "st-1", q.Get("state"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, oauth2.S256ChallengeFromVerifier(flow.Verifier), q.Get("code_challenge"))
	require.Equal(t, domain.SSOGoogle, p.Kind())
}

func TestMicrosoftDefaultsToCommonTenant(t *testing.T) {
	flow := NewMicrosoft(Config{ClientID: "cid"}).Begin("s")
	u, err := url.Parse(flow.URL)
	require.NoError(t, err)
	require.Equal(t, "/common/oauth2/v2.0/authorize", u.Path)
}

func TestExchange_GoogleReturnsIDToken(t *testing.T) {
	srv, form := tokenServer(t, map[string]any{
		"access_token": "at", "token_type": "Bearer", "id_token": "google-id-token",
	})
	p := NewGoogle(Config{ClientID: "cid", Endpoint: endpoint(srv)})
	flow := p.Begin("s")

	tok, err := p.Exchange(context.Background(), flow, "s", "code-1")
	require.NoError(t, err)
	require.Equal(t, "google-id-token", tok)
	require.Equal(t, "code-1", form.Get("code"))
	require.Equal(t, flow.Verifier, form.Get("code_verifier"))
}

func TestExchange_GoogleWithoutIDToken(t *testing.T) {
	srv, _ := tokenServer(t, map[string]any{"access_token": "at", "token_type": "Bearer"})
	p := NewGoogle(Config{ClientID: "cid", Endpoint: endpoint(srv)})
	flow := p.Begin("s")

	_, err := p.Exchange(context.Background(), flow, "s", "code")
	require.ErrorIs(t, err, ErrNoIDToken)
}

func TestExchange_MicrosoftReturnsAccessToken(t *testing.T) {
	srv, _ := tokenServer(t, map[string]any{"access_token": "graph-token", "token_type": "Bearer"})
	p := NewMicrosoft(Config{ClientID: "cid", Endpoint: endpoint(srv)})
	flow := p.Begin("s")

	tok, err := p.Exchange(context.Background(), flow, "s", "code")
	require.NoError(t, err)
	require.Equal(t, "graph-token", tok)
}

func TestExchange_StateMismatch(t *testing.T) {
	p := NewGoogle(Config{ClientID: "cid"})
	_, err := p.Exchange(context.Background(), p.Begin("a"), "b", "code")
	require.Error(t, err)
}
