package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
)

// stubIdentity records the provider and token of SSO calls; every other
// method is unused here.
type stubIdentity struct {
	ports.IdentityService
	provider domain.SSOProvider
	token    string
	err      error
}

func (s *stubIdentity) LoginWithSSO(_ context.Context, provider domain.SSOProvider, token string) (*domain.AuthResponse, error) {
	s.provider = provider
	s.token = token
	if s.err != nil {
		return nil, s.err
	}
	return &domain.AuthResponse{AccessToken: "a", RefreshToken: "r"}, nil
}

func (s *stubIdentity) Me(_ context.Context, userID string) (*domain.Session, error) {
	return &domain.Session{User: domain.User{ID: userID}}, nil
}

func newContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthHandler_SSORoutesToProvider(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		call     func(h *AuthHandler) echo.HandlerFunc
		provider domain.SSOProvider
	}{
		{"google", `{"idToken":"id-tok"}`, func(h *AuthHandler) echo.HandlerFunc { return h.Google }, domain.SSOGoogle},
		{"microsoft", `{"accessToken":"id-tok"}`, func(h *AuthHandler) echo.HandlerFunc { return h.Microsoft }, domain.SSOMicrosoft},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubIdentity{}
			c, rec := newContext(http.MethodPost, tc.body)
			if err := tc.call(NewAuthHandler(stub))(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if stub.provider != tc.provider || stub.token != "id-tok" {
				t.Fatalf("unexpected call: %s %s", stub.provider, stub.token)
			}
		})
	}
}

func TestAuthHandler_SSOMissingTokenIsValidationError(t *testing.T) {
	stub := &stubIdentity{}
	c, _ := newContext(http.MethodPost, `{}`)
	err := NewAuthHandler(stub).Google(c)

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if stub.provider != "" {
		t.Fatalf("service should not be called")
	}
}

func TestAuthHandler_PropagatesServiceError(t *testing.T) {
	stub := &stubIdentity{err: domain.ErrSSODisabled}
	c, _ := newContext(http.MethodPost, `{"idToken":"x"}`)
	if err := NewAuthHandler(stub).Google(c); !errors.Is(err, domain.ErrSSODisabled) {
		t.Fatalf("expected ErrSSODisabled, got %v", err)
	}
}

func TestAuthHandler_MalformedBody(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"idToken":`)
	err := NewAuthHandler(&stubIdentity{}).Google(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestAuthHandler_MeRequiresClaims(t *testing.T) {
	h := NewAuthHandler(&stubIdentity{})

	c, _ := newContext(http.MethodGet, "")
	var he *echo.HTTPError
	if err := h.Me(c); !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	c, rec := newContext(http.MethodGet, "")
	c.Set("user_id", "u-1")
	if err := h.Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"id":"u-1"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
