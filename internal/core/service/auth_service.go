package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
	"github.com/expensly/authclient/internal/metrics"
)

// AuthService drives the client session lifecycle: it calls the remote API
// and keeps the secure store and the current bearer in step with it.
type AuthService struct {
	api   ports.HTTPClient
	store ports.SecureStore
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.RWMutex
	bearer string
}

var _ ports.AuthService = (*AuthService)(nil)

type Option func(*AuthService)

// WithClock overrides the time source used for expiry computation.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(api ports.HTTPClient, store ports.SecureStore, log zerolog.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		api:   api,
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessToken returns the bearer attached to authenticated requests.
func (s *AuthService) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bearer
}

func (s *AuthService) setBearer(token string) {
	s.mu.Lock()
	s.bearer = token
	s.mu.Unlock()
}

// Initialize restores the persisted session. It returns (nil, nil) when no
// session could be restored; the error is reserved for context cancellation.
func (s *AuthService) Initialize(ctx context.Context) (*domain.Session, error) {
	creds, err := s.store.GetTokens(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("auth initialization failed")
		if err := s.clearAuth(ctx); err != nil {
			s.log.Error().Err(err).Msg("failed to clear session after storage read failure")
		}
		return nil, ctx.Err()
	}
	if !creds.Complete() {
		return nil, nil
	}

	s.setBearer(creds.AccessToken)

	var session domain.Session
	err = s.api.Do(ctx, ports.APIRequest{
		Method:      http.MethodGet,
		Path:        "/auth/me",
		BearerToken: creds.AccessToken,
	}, &session)
	if err == nil {
		session.ExpiresAt = s.expiry(creds.AccessToken, 0)
		metrics.AuthOperationsTotal.WithLabelValues("initialize", metrics.ResultSuccess).Inc()
		return &session, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	s.log.Debug().Err(err).Msg("stored access token rejected, refreshing")
	res := s.RefreshTokens(ctx, creds.RefreshToken)
	if res.OK() {
		metrics.AuthOperationsTotal.WithLabelValues("initialize", metrics.ResultSuccess).Inc()
		return res.Session, nil
	}
	metrics.AuthOperationsTotal.WithLabelValues("initialize", metrics.ResultFailure).Inc()
	return nil, ctx.Err()
}

// CachedSession decodes the user and company persisted by the last login.
// It returns (nil, nil) when either record is missing.
func (s *AuthService) CachedSession(ctx context.Context) (*domain.Session, error) {
	var session domain.Session
	for key, dst := range map[string]any{
		ports.KeyUserData:    &session.User,
		ports.KeyCompanyData: &session.Company,
	} {
		raw, err := s.store.GetItem(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return &session, nil
}

func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	return s.authenticate(ctx, "login", "/auth/login", req)
}

func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	return s.authenticate(ctx, "register", "/auth/register", req)
}

func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (*domain.AuthResponse, error) {
	return s.authenticate(ctx, "google", "/auth/google", domain.GoogleLoginRequest{IDToken: idToken})
}

func (s *AuthService) LoginWithMicrosoft(ctx context.Context, accessToken string) (*domain.AuthResponse, error) {
	return s.authenticate(ctx, "microsoft", "/auth/microsoft", domain.MicrosoftLoginRequest{AccessToken: accessToken})
}

// authenticate posts body to path and, on success, persists the returned
// session and installs the new access token as bearer.
func (s *AuthService) authenticate(ctx context.Context, op, path string, body any) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	err := s.api.Do(ctx, ports.APIRequest{Method: http.MethodPost, Path: path, Body: body}, &resp)
	if err == nil {
		err = s.persist(ctx, &resp)
	}
	metrics.AuthOperationsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Warn().Err(err).Str("operation", op).Msg("authentication failed")
		return nil, err
	}
	s.log.Info().Str("operation", op).Str("user_id", resp.User.ID).Msg("session opened")
	return &resp, nil
}

// persist writes tokens and cached records concurrently, then installs the
// bearer. resp.ExpiresAt is filled in.
func (s *AuthService) persist(ctx context.Context, resp *domain.AuthResponse) error {
	user, err := json.Marshal(resp.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	company, err := json.Marshal(resp.Company)
	if err != nil {
		return fmt.Errorf("encode company: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.store.SetTokens(gctx, resp.Credentials()) })
	g.Go(func() error { return s.store.SetItem(gctx, ports.KeyUserData, string(user)) })
	g.Go(func() error { return s.store.SetItem(gctx, ports.KeyCompanyData, string(company)) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	resp.ExpiresAt = s.expiry(resp.AccessToken, resp.ExpiresIn)
	s.setBearer(resp.AccessToken)
	return nil
}

// RefreshTokens exchanges token (or the persisted refresh token when empty)
// for a new session. Every unsuccessful outcome clears the local session.
func (s *AuthService) RefreshTokens(ctx context.Context, token string) domain.RefreshResult {
	res := s.refresh(ctx, token)
	metrics.RefreshOutcomesTotal.WithLabelValues(res.Outcome.String()).Inc()
	if res.OK() {
		return res
	}

	s.log.Warn().Err(res.Err).Stringer("outcome", res.Outcome).Msg("token refresh failed")
	if err := s.clearAuth(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to clear session after refresh failure")
	}
	return res
}

func (s *AuthService) refresh(ctx context.Context, token string) domain.RefreshResult {
	if token == "" {
		creds, err := s.store.GetTokens(ctx)
		if err != nil {
			return domain.RefreshResult{Outcome: domain.RefreshStorageFailure, Err: err}
		}
		token = creds.RefreshToken
	}
	if token == "" {
		return domain.RefreshResult{Outcome: domain.RefreshNoCredentials, Err: domain.ErrNoCredentials}
	}

	var resp domain.AuthResponse
	err := s.api.Do(ctx, ports.APIRequest{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   domain.RefreshRequest{RefreshToken: token},
	}, &resp)
	if err != nil {
		outcome := domain.RefreshRejected
		if apiErr, ok := domain.AsAPIError(err); !ok || apiErr.Transient() {
			outcome = domain.RefreshNetworkFailure
		}
		return domain.RefreshResult{Outcome: outcome, Err: err}
	}

	if err := s.persist(ctx, &resp); err != nil {
		return domain.RefreshResult{Outcome: domain.RefreshStorageFailure, Err: err}
	}
	return domain.RefreshResult{Outcome: domain.RefreshSucceeded, Session: resp.Session()}
}

// Logout revokes the refresh token server-side when one is stored, then
// clears the local session unconditionally.
func (s *AuthService) Logout(ctx context.Context) domain.LogoutResult {
	var res domain.LogoutResult

	creds, err := s.store.GetTokens(ctx)
	switch {
	case err != nil:
		res.Err = err
	case creds.RefreshToken != "":
		err = s.api.Do(ctx, ports.APIRequest{
			Method:      http.MethodPost,
			Path:        "/auth/logout",
			Body:        domain.LogoutRequest{RefreshToken: creds.RefreshToken},
			BearerToken: s.AccessToken(),
		}, nil)
		if err != nil {
			res.Err = err
		} else {
			res.Revoked = true
		}
	}
	if res.Err != nil {
		s.log.Warn().Err(res.Err).Msg("logout request failed")
	}

	res.ClearErr = s.clearAuth(ctx)
	metrics.AuthOperationsTotal.WithLabelValues("logout", metrics.Result(res.ClearErr)).Inc()
	return res
}

// clearAuth drops the bearer and the persisted session. It ignores
// cancellation of ctx so a cancelled caller still ends signed out.
func (s *AuthService) clearAuth(ctx context.Context) error {
	s.setBearer("")
	return s.store.Clear(context.WithoutCancel(ctx))
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, req domain.PasswordResetRequest) error {
	return s.call(ctx, "password_reset_request", "/auth/password-reset/request", req, nil)
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, req domain.PasswordResetConfirm) error {
	return s.call(ctx, "password_reset_confirm", "/auth/password-reset/confirm", req, nil)
}

// SetupMFA provisions a TOTP factor and stores its secret locally.
func (s *AuthService) SetupMFA(ctx context.Context) (*domain.MFASetupResponse, error) {
	var resp domain.MFASetupResponse
	if err := s.call(ctx, "setup_mfa", "/auth/mfa/setup", nil, &resp); err != nil {
		return nil, err
	}
	if err := s.store.SetItem(ctx, ports.KeyMFASecret, resp.Secret); err != nil {
		return nil, fmt.Errorf("store mfa secret: %w", err)
	}
	return &resp, nil
}

func (s *AuthService) VerifyMFA(ctx context.Context, req domain.MFAVerifyRequest) error {
	return s.call(ctx, "verify_mfa", "/auth/mfa/verify", req, nil)
}

func (s *AuthService) ResendVerificationEmail(ctx context.Context) error {
	return s.call(ctx, "resend_verification", "/auth/verify-email/resend", nil, nil)
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	return s.call(ctx, "verify_email", "/auth/verify-email", domain.VerifyEmailRequest{Token: token}, nil)
}

// call posts body with the current bearer; errors propagate unchanged.
func (s *AuthService) call(ctx context.Context, op, path string, body, out any) error {
	err := s.api.Do(ctx, ports.APIRequest{
		Method:      http.MethodPost,
		Path:        path,
		Body:        body,
		BearerToken: s.AccessToken(),
	}, out)
	metrics.AuthOperationsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Warn().Err(err).Str("operation", op).Msg("request failed")
	}
	return err
}

// expiry reads the exp claim of an access token without verifying it,
// falling back to expiresIn seconds from now. Zero means unknown.
func (s *AuthService) expiry(accessToken string, expiresIn int64) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if expiresIn > 0 {
		return s.now().Add(time.Duration(expiresIn) * time.Second)
	}
	return time.Time{}
}
