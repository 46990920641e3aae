package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/expensly/authclient/internal/core/domain"
)

func TestGoogleVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := NewGoogleVerifierWithKeys(googleIssuer, "client-1", &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}})

	sign := func(aud string) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":            googleIssuer,
			"aud":            aud,
			"sub":            "g-42",
			"email":          "Ana@Acme.io",
			"email_verified": true,
			"given_name":     "Ana",
			"exp":            time.Now().Add(time.Hour).Unix(),
			"iat":            time.Now().Unix(),
		}).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	ext, err := v.Verify(context.Background(), sign("client-1"))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ext.Subject != "g-42" || ext.Email != "ana@acme.io" || !ext.EmailVerified || ext.FirstName != "Ana" {
		t.Fatalf("unexpected identity: %+v", ext)
	}

	if _, err := v.Verify(context.Background(), sign("someone-else")); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}
}

func TestMicrosoftVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ms-1","userPrincipalName":"Bo@Acme.io","givenName":"Bo","surname":"Li"}`))
	}))
	defer srv.Close()

	v := NewMicrosoftVerifier(srv.URL, srv.Client())

	ext, err := v.Verify(context.Background(), "good")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ext.Subject != "ms-1" || ext.Email != "bo@acme.io" || ext.Provider != domain.SSOMicrosoft {
		t.Fatalf("unexpected identity: %+v", ext)
	}

	if _, err := v.Verify(context.Background(), "bad"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenIssuer_RejectsExpiredAndForeign(t *testing.T) {
	issuer := NewTokenIssuer("secret", "test", time.Minute)
	tok, err := issuer.Issue(domain.User{ID: "u-1", Role: domain.RoleFinance})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := NewTokenIssuer("secret", "test", time.Minute)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := later.Parse(tok); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	other := NewTokenIssuer("other-secret", "test", time.Minute)
	if _, err := other.Parse(tok); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected bad signature to fail, got %v", err)
	}

	claims, err := issuer.Parse(tok)
	if err != nil || claims.Role != domain.RoleFinance {
		t.Fatalf("unexpected (%+v, %v)", claims, err)
	}
}
