package ports

import (
	"context"

	"github.com/expensly/authclient/internal/core/domain"
)

// Keys persisted by the authentication flow.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
	KeyCompanyData  = "company_data"
	KeyMFASecret    = "mfa_secret"
)

// ItemOptions tunes a single secure-store call.
type ItemOptions struct {
	// Plain skips value obfuscation.
	Plain bool
}

type ItemOption func(*ItemOptions)

// Plain stores or reads the value without obfuscation.
func Plain() ItemOption {
	return func(o *ItemOptions) { o.Plain = true }
}

func ResolveItemOptions(opts []ItemOption) ItemOptions {
	var o ItemOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SecureStore persists small string values such as tokens and cached records.
// GetItem returns domain.ErrNotFound for a missing key.
type SecureStore interface {
	GetItem(ctx context.Context, key string, opts ...ItemOption) (string, error)
	SetItem(ctx context.Context, key, value string, opts ...ItemOption) error
	RemoveItem(ctx context.Context, key string) error

	GetTokens(ctx context.Context) (domain.Credentials, error)
	SetTokens(ctx context.Context, creds domain.Credentials) error
	ClearTokens(ctx context.Context) error

	// Clear removes the fixed set of session keys.
	Clear(ctx context.Context) error
}
