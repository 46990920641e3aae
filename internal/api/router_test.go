package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/identity"
	"github.com/expensly/authclient/internal/infrastructure/http/handlers"
	"github.com/expensly/authclient/internal/infrastructure/queue"
	"github.com/expensly/authclient/internal/metrics"
)

type testServer struct {
	e      *echo.Echo
	outbox *queue.Outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	outbox := queue.NewOutbox(zerolog.Nop())
	dispatcher := queue.NewDispatcher(1, outbox, zerolog.Nop())
	dispatcher.Start(ctx)

	issuer := identity.NewTokenIssuer("secret", "test", time.Minute)
	svc := identity.NewService(identity.Config{
		Accounts:   identity.NewMemoryAccounts(),
		Companies:  identity.NewMemoryCompanies(),
		Tokens:     identity.NewMemoryTokens(),
		Notifier:   dispatcher,
		Issuer:     issuer,
		BcryptCost: bcrypt.MinCost,
		Logger:     zerolog.Nop(),
	})

	e := NewRouter(Deps{
		Identity: svc,
		Tokens:   issuer,
		Outbox:   outbox,
		Checks: map[string]handlers.Checker{
			"memory": func(context.Context) error { return nil },
		},
		Logger: zerolog.Nop(),
	})
	return &testServer{e: e, outbox: outbox}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) register(t *testing.T, email, company string, role domain.Role) domain.AuthResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", "", domain.RegisterRequest{
		FirstName:   "Ana",
		LastName:    "Diaz",
		Email:       email,
		Password:    "correct-horse",
		CompanyName: company,
		Role:        role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.AuthResponse](t, rec)
}

func TestRouter_RegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "ana@acme.test", "Acme", domain.RoleAdmin)
	require.NotEmpty(t, reg.AccessToken)
	require.NotEmpty(t, reg.RefreshToken)
	require.Equal(t, int64(60), reg.ExpiresIn)
	require.Equal(t, "Acme", reg.Company.Name)

	rec := s.do(t, http.MethodGet, "/auth/me", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[domain.Session](t, rec)
	require.Equal(t, reg.User.ID, me.User.ID)
	require.Equal(t, reg.Company.ID, me.Company.ID)

	rec = s.do(t, http.MethodPost, "/auth/login", "", domain.LoginRequest{Email: "ANA@acme.test", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/register", "", domain.RegisterRequest{
		FirstName: "Ana", LastName: "Diaz", Email: "ana@acme.test", Password: "correct-horse", CompanyName: "Acme", Role: domain.RoleAdmin,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_ErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ana@acme.test", "Acme", domain.RoleAdmin)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		code   int
		msg    string
	}{
		{"wrong password", http.MethodPost, "/auth/login", "", domain.LoginRequest{Email: "ana@acme.test", Password: "nope"}, http.StatusUnauthorized, "Invalid credentials"},
		{"invalid email", http.MethodPost, "/auth/login", "", domain.LoginRequest{Email: "not-an-email", Password: "x"}, http.StatusBadRequest, "email must be a valid email"},
		{"missing bearer", http.MethodGet, "/auth/me", "", nil, http.StatusUnauthorized, "missing authorization header"},
		{"garbage bearer", http.MethodGet, "/auth/me", "garbage", nil, http.StatusUnauthorized, "invalid token"},
		{"unknown refresh", http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{RefreshToken: "nope"}, http.StatusUnauthorized, "Invalid or expired token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.token, tc.body)
			require.Equal(t, tc.code, rec.Code)
			body := decode[map[string]string](t, rec)
			require.Equal(t, tc.msg, body["message"])
		})
	}
}

func TestRouter_RefreshRotatesAndLogoutRevokes(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "ana@acme.test", "Acme", domain.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{RefreshToken: reg.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode[domain.AuthResponse](t, rec)
	require.NotEqual(t, reg.RefreshToken, rotated.RefreshToken)

	rec = s.do(t, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{RefreshToken: reg.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/logout", "", domain.LogoutRequest{RefreshToken: rotated.RefreshToken})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{RefreshToken: rotated.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_EmailVerificationThroughOutbox(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "ana@acme.test", "Acme", domain.RoleAdmin)

	var tokens []map[string]string
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/admin/outbox/ana@acme.test", reg.AccessToken, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		tokens = decode[[]map[string]string](t, rec)
		return len(tokens) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, string(domain.NotifyEmailVerification), tokens[0]["kind"])

	rec := s.do(t, http.MethodPost, "/auth/verify-email", "", domain.VerifyEmailRequest{Token: tokens[0]["token"]})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/auth/me", reg.AccessToken, nil)
	require.True(t, decode[domain.Session](t, rec).User.IsEmailVerified)

	rec = s.do(t, http.MethodPost, "/auth/verify-email", "", domain.VerifyEmailRequest{Token: tokens[0]["token"]})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_OutboxRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ana@acme.test", "Acme", domain.RoleAdmin)
	employee := s.register(t, "luis@acme.test", "", domain.RoleEmployee)
	require.Equal(t, domain.RoleEmployee, employee.User.Role)

	rec := s.do(t, http.MethodGet, "/admin/outbox/ana@acme.test", employee.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", decode[map[string]string](t, rec)["message"])
}

func TestRouter_MFASetup(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "ana@acme.test", "Acme", domain.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/auth/mfa/setup", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	setup := decode[domain.MFASetupResponse](t, rec)
	require.NotEmpty(t, setup.Secret)
	require.Len(t, setup.BackupCodes, 10)

	rec = s.do(t, http.MethodPost, "/auth/mfa/verify", reg.AccessToken, domain.MFAVerifyRequest{Code: setup.BackupCodes[0], Type: domain.MFATypeBackup})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/mfa/verify", reg.AccessToken, domain.MFAVerifyRequest{Code: setup.BackupCodes[0], Type: domain.MFATypeBackup})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RecordsRenderedStatus(t *testing.T) {
	s := newTestServer(t)
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/auth/login", "401")
	before := testutil.ToFloat64(counter)

	rec := s.do(t, http.MethodPost, "/auth/login", "", domain.LoginRequest{Email: "ghost@acme.test", Password: "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/health", "/health/ready", "/metrics", "/swagger/doc.json"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
