package ports

import (
	"context"
	"time"

	"github.com/expensly/authclient/internal/core/domain"
)

// AccountRepository persists server-side accounts for the reference API.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByExternal(ctx context.Context, provider domain.SSOProvider, subject string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	Update(ctx context.Context, account *domain.Account) error
}

// CompanyRepository persists companies for the reference API.
type CompanyRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Company, error)
	FindByDomain(ctx context.Context, domainName string) (*domain.Company, error)
	Create(ctx context.Context, company *domain.Company) (*domain.Company, error)
}

// TokenStore keeps opaque single-use tokens mapped to a subject.
// Take returns domain.ErrTokenInvalid for unknown or expired tokens.
type TokenStore interface {
	Put(ctx context.Context, kind domain.TokenKind, token, subject string, ttl time.Duration) error
	Take(ctx context.Context, kind domain.TokenKind, token string) (string, error)
	Delete(ctx context.Context, kind domain.TokenKind, token string) error
}

// IdentityVerifier checks a token issued by an SSO provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*domain.ExternalIdentity, error)
}

// Notifier queues an outbound notification.
type Notifier interface {
	Enqueue(n domain.Notification)
}

// NotificationSender delivers a notification.
type NotificationSender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// IdentityService is the server-side counterpart of AuthService.
type IdentityService interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error)
	LoginWithSSO(ctx context.Context, provider domain.SSOProvider, token string) (*domain.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID string) (*domain.Session, error)

	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error

	SetupMFA(ctx context.Context, userID string) (*domain.MFASetupResponse, error)
	VerifyMFA(ctx context.Context, userID string, req domain.MFAVerifyRequest) error

	ResendVerificationEmail(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, token string) error
}
