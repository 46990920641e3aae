package domain

import (
	"errors"
	"time"
)

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user already exists")
var ErrCompanyNotFound = errors.New("company not found")
var ErrTokenInvalid = errors.New("token invalid or expired")
var ErrMFANotConfigured = errors.New("mfa not configured")
var ErrMFACodeInvalid = errors.New("invalid mfa code")
var ErrSSODisabled = errors.New("sso provider not enabled")
var ErrAccountInactive = errors.New("account inactive")

// Account is the server-side record behind a User.
type Account struct {
	User         User
	PasswordHash string
	MFASecret    string
	MFAEnabled   bool
	// BackupCodes holds bcrypt hashes of unused backup codes.
	BackupCodes []string
	// External maps an SSO provider to the subject it asserted.
	External map[SSOProvider]string
}

// ExternalIdentity is what an SSO provider asserts about a user.
type ExternalIdentity struct {
	Provider      SSOProvider
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// TokenKind namespaces opaque single-use tokens.
type TokenKind string

const (
	TokenRefresh           TokenKind = "refresh"
	TokenEmailVerification TokenKind = "verify_email"
	TokenPasswordReset     TokenKind = "password_reset"
)

// NotificationKind identifies an outbound message template.
type NotificationKind string

const (
	NotifyEmailVerification NotificationKind = "email_verification"
	NotifyPasswordReset     NotificationKind = "password_reset"
)

// Notification is an outbound message carrying a one-time token.
type Notification struct {
	Kind      NotificationKind
	To        string
	Token     string
	CreatedAt time.Time
}
