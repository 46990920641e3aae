// Package identity implements the reference identity API that the client
// authenticates against in development and tests.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
	"github.com/expensly/authclient/internal/metrics"
)

const (
	defaultRefreshTTL = 7 * 24 * time.Hour
	verifyEmailTTL    = 24 * time.Hour
	passwordResetTTL  = time.Hour
)

// Config wires the collaborators of a Service.
type Config struct {
	Accounts  ports.AccountRepository
	Companies ports.CompanyRepository
	Tokens    ports.TokenStore
	Notifier  ports.Notifier
	Issuer    *TokenIssuer
	Verifiers map[domain.SSOProvider]ports.IdentityVerifier

	RefreshTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// MFAIssuer labels TOTP entries in authenticator apps.
	MFAIssuer string
	Logger    zerolog.Logger
}

// Service implements ports.IdentityService.
type Service struct {
	accounts  ports.AccountRepository
	companies ports.CompanyRepository
	tokens    ports.TokenStore
	notifier  ports.Notifier
	issuer    *TokenIssuer
	verifiers map[domain.SSOProvider]ports.IdentityVerifier

	refreshTTL time.Duration
	cost       int
	mfaIssuer  string
	log        zerolog.Logger
	now        func() time.Time

	// mfaLocks serializes MFA changes per user id (*sync.Mutex values).
	mfaLocks sync.Map
}

var _ ports.IdentityService = (*Service)(nil)

func NewService(cfg Config) *Service {
	s := &Service{
		accounts:   cfg.Accounts,
		companies:  cfg.Companies,
		tokens:     cfg.Tokens,
		notifier:   cfg.Notifier,
		issuer:     cfg.Issuer,
		verifiers:  cfg.Verifiers,
		refreshTTL: cfg.RefreshTTL,
		cost:       cfg.BcryptCost,
		mfaIssuer:  cfg.MFAIssuer,
		log:        cfg.Logger,
		now:        time.Now,
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = defaultRefreshTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.mfaIssuer == "" {
		s.mfaIssuer = "Expensly"
	}
	if s.verifiers == nil {
		s.verifiers = map[domain.SSOProvider]ports.IdentityVerifier{}
	}
	return s
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	resp, err := s.login(ctx, req)
	s.record("login", err)
	return resp, err
}

func (s *Service) login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	account, err := s.accounts.FindByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if account.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return s.openSession(ctx, account)
}

// Register creates a user. With a company name a new company is created and
// the user joins it; otherwise the user joins the company owning the email
// domain, provided it allows self registration.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	resp, err := s.register(ctx, req)
	s.record("register", err)
	return resp, err
}

func (s *Service) register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	if _, err := s.accounts.FindByEmail(ctx, req.Email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	company, err := s.resolveCompany(ctx, req.Email, req.CompanyName)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account, err := s.accounts.Create(ctx, &domain.Account{
		User: domain.User{
			ID:        uuid.NewString(),
			Email:     strings.ToLower(req.Email),
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      req.Role,
			CompanyID: company.ID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}

	if err := s.sendVerification(ctx, account.User); err != nil {
		return nil, err
	}
	return s.issue(ctx, account, company)
}

func (s *Service) resolveCompany(ctx context.Context, email, name string) (*domain.Company, error) {
	if name == "" {
		company, err := s.companies.FindByDomain(ctx, emailDomain(email))
		if err != nil {
			return nil, err
		}
		if !company.Settings.AllowSelfRegistration {
			return nil, domain.ErrCompanyNotFound
		}
		return company, nil
	}

	now := s.now().UTC()
	return s.companies.Create(ctx, &domain.Company{
		ID:     uuid.NewString(),
		Name:   name,
		Domain: emailDomain(email),
		Settings: domain.CompanySettings{
			AllowSelfRegistration:    true,
			RequireEmailVerification: true,
			EnableMFA:                true,
			SSOProviders:             []string{string(domain.SSOGoogle), string(domain.SSOMicrosoft)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// LoginWithSSO verifies a provider token and signs in the matching user,
// linking or provisioning an account by email when needed.
func (s *Service) LoginWithSSO(ctx context.Context, provider domain.SSOProvider, token string) (*domain.AuthResponse, error) {
	resp, err := s.loginWithSSO(ctx, provider, token)
	s.record("sso_"+string(provider), err)
	return resp, err
}

func (s *Service) loginWithSSO(ctx context.Context, provider domain.SSOProvider, token string) (*domain.AuthResponse, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, domain.ErrSSODisabled
	}
	ext, err := verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByExternal(ctx, provider, ext.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		account, err = s.linkExternal(ctx, ext)
	}
	if err != nil {
		return nil, err
	}

	company, err := s.companies.FindByID(ctx, account.User.CompanyID)
	if err != nil {
		return nil, err
	}
	if !company.Settings.SupportsSSO(provider) {
		return nil, domain.ErrSSODisabled
	}
	return s.openSession(ctx, account)
}

func (s *Service) linkExternal(ctx context.Context, ext *domain.ExternalIdentity) (*domain.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		if account.External == nil {
			account.External = map[domain.SSOProvider]string{}
		}
		account.External[ext.Provider] = ext.Subject
		if ext.EmailVerified {
			account.User.IsEmailVerified = true
		}
		if err := s.accounts.Update(ctx, account); err != nil {
			return nil, err
		}
		return account, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	company, err := s.companies.FindByDomain(ctx, emailDomain(ext.Email))
	if err != nil {
		return nil, err
	}
	if !company.Settings.AllowSelfRegistration || !company.Settings.SupportsSSO(ext.Provider) {
		return nil, domain.ErrSSODisabled
	}

	now := s.now().UTC()
	return s.accounts.Create(ctx, &domain.Account{
		User: domain.User{
			ID:              uuid.NewString(),
			Email:           ext.Email,
			FirstName:       ext.FirstName,
			LastName:        ext.LastName,
			Role:            domain.RoleEmployee,
			CompanyID:       company.ID,
			IsEmailVerified: ext.EmailVerified,
			IsActive:        true,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		External: map[domain.SSOProvider]string{ext.Provider: ext.Subject},
	})
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	resp, err := s.refresh(ctx, refreshToken)
	s.record("refresh", err)
	return resp, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	userID, err := s.tokens.Take(ctx, domain.TokenRefresh, refreshToken)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if !account.User.IsActive {
		return nil, domain.ErrAccountInactive
	}
	company, err := s.companies.FindByID(ctx, account.User.CompanyID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, account, company)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	err := s.tokens.Delete(ctx, domain.TokenRefresh, refreshToken)
	s.record("logout", err)
	return err
}

func (s *Service) Me(ctx context.Context, userID string) (*domain.Session, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	company, err := s.companies.FindByID(ctx, account.User.CompanyID)
	if err != nil {
		return nil, err
	}
	return &domain.Session{User: account.User, Company: *company}, nil
}

// RequestPasswordReset sends a reset token. Unknown addresses succeed
// silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.record("password_reset_request", nil)
		return nil
	}
	if err == nil {
		err = s.sendToken(ctx, account.User, domain.TokenPasswordReset, domain.NotifyPasswordReset, passwordResetTTL)
	}
	s.record("password_reset_request", err)
	return err
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	err := s.confirmPasswordReset(ctx, token, newPassword)
	s.record("password_reset_confirm", err)
	return err
}

func (s *Service) confirmPasswordReset(ctx context.Context, token, newPassword string) error {
	userID, err := s.tokens.Take(ctx, domain.TokenPasswordReset, token)
	if err != nil {
		return err
	}
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	account.PasswordHash = string(hash)
	account.User.UpdatedAt = s.now().UTC()
	return s.accounts.Update(ctx, account)
}

// SetupMFA provisions a new TOTP secret and backup codes. The factor becomes
// active after the first successful VerifyMFA.
func (s *Service) SetupMFA(ctx context.Context, userID string) (*domain.MFASetupResponse, error) {
	resp, err := s.setupMFA(ctx, userID)
	s.record("setup_mfa", err)
	return resp, err
}

func (s *Service) setupMFA(ctx context.Context, userID string) (*domain.MFASetupResponse, error) {
	defer s.lockMFA(userID)()

	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	secret, err := generateTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	codes, hashes, err := generateBackupCodes(s.cost)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	account.MFASecret = secret
	account.MFAEnabled = false
	account.BackupCodes = hashes
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, err
	}
	return &domain.MFASetupResponse{
		Secret:      secret,
		QRCode:      provisionURI(s.mfaIssuer, account.User.Email, secret),
		BackupCodes: codes,
	}, nil
}

func (s *Service) VerifyMFA(ctx context.Context, userID string, req domain.MFAVerifyRequest) error {
	err := s.verifyMFA(ctx, userID, req)
	s.record("verify_mfa", err)
	return err
}

func (s *Service) verifyMFA(ctx context.Context, userID string, req domain.MFAVerifyRequest) error {
	defer s.lockMFA(userID)()

	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if account.MFASecret == "" {
		return domain.ErrMFANotConfigured
	}

	switch req.Type {
	case domain.MFATypeTOTP:
		if !verifyTOTP(account.MFASecret, req.Code, s.now()) {
			return domain.ErrMFACodeInvalid
		}
	case domain.MFATypeBackup:
		remaining, ok := consumeBackupCode(account.BackupCodes, req.Code)
		if !ok {
			return domain.ErrMFACodeInvalid
		}
		account.BackupCodes = remaining
	default:
		return domain.ErrMFACodeInvalid
	}

	account.MFAEnabled = true
	return s.accounts.Update(ctx, account)
}

// lockMFA holds the MFA lock of userID until the returned func is called, so
// a backup code is consumed by at most one concurrent verify.
func (s *Service) lockMFA(userID string) (unlock func()) {
	v, _ := s.mfaLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ResendVerificationEmail issues a fresh verification token unless the
// address is already verified.
func (s *Service) ResendVerificationEmail(ctx context.Context, userID string) error {
	account, err := s.accounts.FindByID(ctx, userID)
	if err == nil && !account.User.IsEmailVerified {
		err = s.sendVerification(ctx, account.User)
	}
	s.record("resend_verification", err)
	return err
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	err := s.verifyEmail(ctx, token)
	s.record("verify_email", err)
	return err
}

func (s *Service) verifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.Take(ctx, domain.TokenEmailVerification, token)
	if err != nil {
		return err
	}
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	account.User.IsEmailVerified = true
	account.User.UpdatedAt = s.now().UTC()
	return s.accounts.Update(ctx, account)
}

// openSession checks the account can sign in, stamps the login time and
// issues tokens.
func (s *Service) openSession(ctx context.Context, account *domain.Account) (*domain.AuthResponse, error) {
	if !account.User.IsActive {
		return nil, domain.ErrAccountInactive
	}
	company, err := s.companies.FindByID(ctx, account.User.CompanyID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account.User = account.User.Apply(domain.UserPatch{LastLoginAt: &now})
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, err
	}
	return s.issue(ctx, account, company)
}

func (s *Service) issue(ctx context.Context, account *domain.Account, company *domain.Company) (*domain.AuthResponse, error) {
	access, err := s.issuer.Issue(account.User)
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	if err := s.tokens.Put(ctx, domain.TokenRefresh, refresh, account.User.ID, s.refreshTTL); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", account.User.ID).Str("company_id", company.ID).Msg("tokens issued")
	return &domain.AuthResponse{
		User:         account.User,
		Company:      *company,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.TTL().Seconds()),
	}, nil
}

func (s *Service) sendVerification(ctx context.Context, u domain.User) error {
	return s.sendToken(ctx, u, domain.TokenEmailVerification, domain.NotifyEmailVerification, verifyEmailTTL)
}

func (s *Service) sendToken(ctx context.Context, u domain.User, kind domain.TokenKind, notify domain.NotificationKind, ttl time.Duration) error {
	token := uuid.NewString()
	if err := s.tokens.Put(ctx, kind, token, u.ID, ttl); err != nil {
		return err
	}
	s.notifier.Enqueue(domain.Notification{Kind: notify, To: u.Email, Token: token, CreatedAt: s.now().UTC()})
	return nil
}

func (s *Service) record(op string, err error) {
	metrics.IdentityOperationsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Debug().Err(err).Str("operation", op).Msg("identity operation failed")
	}
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return ""
}
