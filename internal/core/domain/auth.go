package domain

import "time"

// SSOProvider names a third-party identity provider.
type SSOProvider string

const (
	SSOGoogle    SSOProvider = "google"
	SSOMicrosoft SSOProvider = "microsoft"
)

// MFAType selects how an MFA code is checked.
type MFAType string

const (
	MFATypeTOTP   MFAType = "totp"
	MFATypeBackup MFAType = "backup"
)

// Session is the user/company pair backing an authenticated session.
// It is also the body returned by GET /auth/me.
type Session struct {
	User    User    `json:"user"`
	Company Company `json:"company"`

	// ExpiresAt is the access token expiry when it could be determined.
	ExpiresAt time.Time `json:"-"`
}

// AuthResponse is returned by every endpoint that opens a session.
type AuthResponse struct {
	User         User    `json:"user"`
	Company      Company `json:"company"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    int64   `json:"expiresIn"`

	// ExpiresAt is derived client-side from the access token or ExpiresIn.
	ExpiresAt time.Time `json:"-"`
}

// Credentials extracts the token pair.
func (r *AuthResponse) Credentials() Credentials {
	return Credentials{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// Session extracts the user/company pair.
func (r *AuthResponse) Session() *Session {
	return &Session{User: r.User, Company: r.Company, ExpiresAt: r.ExpiresAt}
}

type LoginRequest struct {
	Email      string `json:"email"      validate:"required,email"`
	Password   string `json:"password"   validate:"required"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type RegisterRequest struct {
	FirstName   string `json:"firstName"             validate:"required"`
	LastName    string `json:"lastName"              validate:"required"`
	Email       string `json:"email"                 validate:"required,email"`
	Password    string `json:"password"              validate:"required,min=8"`
	CompanyName string `json:"companyName,omitempty"`
	Role        Role   `json:"role"                  validate:"required,oneof=admin finance employee"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

type MicrosoftLoginRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirm struct {
	Token       string `json:"token"       validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// MFASetupResponse carries the provisioning material for a new TOTP factor.
type MFASetupResponse struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qrCode"`
	BackupCodes []string `json:"backupCodes"`
}

type MFAVerifyRequest struct {
	Code string  `json:"code" validate:"required"`
	Type MFAType `json:"type" validate:"required,oneof=totp backup"`
}
