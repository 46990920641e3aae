package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
	"github.com/expensly/authclient/internal/metrics"
)

// KnownKeys is the fixed set removed by Clear. Keys outside this list are
// left in place.
var KnownKeys = []string{
	ports.KeyAccessToken,
	ports.KeyRefreshToken,
	ports.KeyUserData,
	ports.KeyCompanyData,
	ports.KeyMFASecret,
}

// Options configures a SecureStore.
type Options struct {
	// Key is the static obfuscation key. Empty disables obfuscation.
	Key string
	// Disabled turns obfuscation off for every call.
	Disabled bool
}

// SecureStore layers value obfuscation and the token helpers over a Backend.
type SecureStore struct {
	backend Backend
	obf     obfuscator
	enabled bool
	log     zerolog.Logger
}

var _ ports.SecureStore = (*SecureStore)(nil)

func NewSecureStore(backend Backend, opts Options, log zerolog.Logger) *SecureStore {
	return &SecureStore{
		backend: backend,
		obf:     newObfuscator(opts.Key),
		enabled: !opts.Disabled && opts.Key != "",
		log:     log,
	}
}

// GetItem returns the value under key, or domain.ErrNotFound.
func (s *SecureStore) GetItem(ctx context.Context, key string, opts ...ports.ItemOption) (string, error) {
	stored, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("get", metrics.ResultFailure).Inc()
		s.log.Error().Err(err).Str("key", key).Msg("failed to retrieve secure item")
		return "", fmt.Errorf("retrieve %s: %w", key, err)
	}
	if !ok {
		metrics.StorageOperationsTotal.WithLabelValues("get", "miss").Inc()
		return "", fmt.Errorf("retrieve %s: %w", key, domain.ErrNotFound)
	}
	metrics.StorageOperationsTotal.WithLabelValues("get", metrics.ResultSuccess).Inc()

	if s.obfuscates(opts) {
		return s.obf.decode(stored), nil
	}
	return stored, nil
}

func (s *SecureStore) SetItem(ctx context.Context, key, value string, opts ...ports.ItemOption) error {
	if s.obfuscates(opts) {
		value = s.obf.encode(value)
	}
	err := s.backend.Set(ctx, key, value)
	metrics.StorageOperationsTotal.WithLabelValues("set", metrics.Result(err)).Inc()
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to store secure item")
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *SecureStore) RemoveItem(ctx context.Context, key string) error {
	err := s.backend.Delete(ctx, key)
	metrics.StorageOperationsTotal.WithLabelValues("remove", metrics.Result(err)).Inc()
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to remove secure item")
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// GetTokens reads both tokens; a missing token is returned as "".
func (s *SecureStore) GetTokens(ctx context.Context) (domain.Credentials, error) {
	var creds domain.Credentials
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.optional(gctx, ports.KeyAccessToken)
		creds.AccessToken = v
		return err
	})
	g.Go(func() error {
		v, err := s.optional(gctx, ports.KeyRefreshToken)
		creds.RefreshToken = v
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Credentials{}, err
	}
	return creds, nil
}

func (s *SecureStore) SetTokens(ctx context.Context, creds domain.Credentials) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.SetItem(gctx, ports.KeyAccessToken, creds.AccessToken) })
	g.Go(func() error { return s.SetItem(gctx, ports.KeyRefreshToken, creds.RefreshToken) })
	return g.Wait()
}

func (s *SecureStore) ClearTokens(ctx context.Context) error {
	return s.removeAll(ctx, ports.KeyAccessToken, ports.KeyRefreshToken)
}

// Clear removes every key in KnownKeys.
func (s *SecureStore) Clear(ctx context.Context) error {
	err := s.removeAll(ctx, KnownKeys...)
	metrics.StorageOperationsTotal.WithLabelValues("clear", metrics.Result(err)).Inc()
	return err
}

// removeAll deletes keys concurrently and waits for every deletion, so one
// failing key does not leave the others behind.
func (s *SecureStore) removeAll(ctx context.Context, keys ...string) error {
	var g errgroup.Group
	for _, key := range keys {
		g.Go(func() error { return s.RemoveItem(ctx, key) })
	}
	return g.Wait()
}

func (s *SecureStore) optional(ctx context.Context, key string) (string, error) {
	v, err := s.GetItem(ctx, key)
	if err != nil && !isNotFound(err) {
		return "", err
	}
	return v, nil
}

func (s *SecureStore) obfuscates(opts []ports.ItemOption) bool {
	return s.enabled && !ports.ResolveItemOptions(opts).Plain
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
