package ports

import (
	"context"

	"github.com/expensly/authclient/internal/core/domain"
)

// AuthService sequences transport calls and secure-store writes for the
// client session lifecycle.
type AuthService interface {
	Initialize(ctx context.Context) (*domain.Session, error)
	CachedSession(ctx context.Context) (*domain.Session, error)

	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error)
	LoginWithGoogle(ctx context.Context, idToken string) (*domain.AuthResponse, error)
	LoginWithMicrosoft(ctx context.Context, accessToken string) (*domain.AuthResponse, error)

	RefreshTokens(ctx context.Context, refreshToken string) domain.RefreshResult
	Logout(ctx context.Context) domain.LogoutResult

	RequestPasswordReset(ctx context.Context, req domain.PasswordResetRequest) error
	ConfirmPasswordReset(ctx context.Context, req domain.PasswordResetConfirm) error

	SetupMFA(ctx context.Context) (*domain.MFASetupResponse, error)
	VerifyMFA(ctx context.Context, req domain.MFAVerifyRequest) error

	ResendVerificationEmail(ctx context.Context) error
	VerifyEmail(ctx context.Context, token string) error

	// AccessToken returns the bearer currently attached to outgoing requests.
	AccessToken() string
}
