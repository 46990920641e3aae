package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
)

var roundTripValues = []string{
	"",
	"a",
	"eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig",
	`{"id":"u-1","email":"ana@example.com"}`,
	"unicode ✓ ñ 日本",
	"default-key",
	string([]byte{0x00, 0x01, 0xff}),
}

func newStore(opts Options) (*SecureStore, *MemoryBackend) {
	backend := NewMemoryBackend()
	return NewSecureStore(backend, opts, zerolog.Nop()), backend
}

func TestSecureStore_RoundTripObfuscated(t *testing.T) {
	store, backend := newStore(Options{Key: "default-key"})
	ctx := context.Background()

	for _, v := range roundTripValues {
		require.NoError(t, store.SetItem(ctx, "k", v))
		got, err := store.GetItem(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, v, got)

		if v != "" {
			raw, _ := backend.Raw("k")
			require.NotEqual(t, v, raw, "value should not be stored verbatim")
		}
	}
}

func TestSecureStore_RoundTripPlain(t *testing.T) {
	store, backend := newStore(Options{Key: "default-key"})
	ctx := context.Background()

	for _, v := range roundTripValues {
		require.NoError(t, store.SetItem(ctx, "k", v, ports.Plain()))
		got, err := store.GetItem(ctx, "k", ports.Plain())
		require.NoError(t, err)
		require.Equal(t, v, got)

		raw, _ := backend.Raw("k")
		require.Equal(t, v, raw)
	}
}

func TestSecureStore_DisabledStoresVerbatim(t *testing.T) {
	store, backend := newStore(Options{Key: "default-key", Disabled: true})
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "k", "value"))
	raw, _ := backend.Raw("k")
	require.Equal(t, "value", raw)

	got, err := store.GetItem(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "value", got)
}

func TestSecureStore_GetMissingIsNotFound(t *testing.T) {
	store, _ := newStore(Options{Key: "k"})
	_, err := store.GetItem(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSecureStore_Tokens(t *testing.T) {
	store, _ := newStore(Options{Key: "k"})
	ctx := context.Background()

	creds, err := store.GetTokens(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())

	require.NoError(t, store.SetTokens(ctx, domain.Credentials{AccessToken: "access", RefreshToken: "refresh"}))
	creds, err = store.GetTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Credentials{AccessToken: "access", RefreshToken: "refresh"}, creds)

	require.NoError(t, store.ClearTokens(ctx))
	creds, err = store.GetTokens(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())
}

func TestSecureStore_ClearRemovesOnlyKnownKeys(t *testing.T) {
	store, backend := newStore(Options{Key: "k"})
	ctx := context.Background()

	for _, key := range KnownKeys {
		require.NoError(t, store.SetItem(ctx, key, "v-"+key))
	}
	require.NoError(t, store.SetItem(ctx, "device_id", "survivor"))

	require.NoError(t, store.Clear(ctx))

	require.Equal(t, []string{"device_id"}, backend.Keys())
	got, err := store.GetItem(ctx, "device_id")
	require.NoError(t, err)
	require.Equal(t, "survivor", got)
}

type failingBackend struct {
	*MemoryBackend
	failDelete string
}

func (f *failingBackend) Delete(ctx context.Context, key string) error {
	if key == f.failDelete {
		return errors.New("keychain locked")
	}
	return f.MemoryBackend.Delete(ctx, key)
}

func TestSecureStore_ClearAttemptsEveryKeyOnFailure(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), failDelete: ports.KeyUserData}
	store := NewSecureStore(backend, Options{Key: "k"}, zerolog.Nop())
	ctx := context.Background()

	for _, key := range KnownKeys {
		require.NoError(t, store.SetItem(ctx, key, "v"))
	}

	require.Error(t, store.Clear(ctx))
	require.Equal(t, []string{ports.KeyUserData}, backend.Keys())
}

func TestObfuscator_DecodeFallsBackForLegacyValues(t *testing.T) {
	o := newObfuscator("default-key")
	require.Equal(t, "not base64 !!", o.decode("not base64 !!"))
}

func TestFileBackend_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	ctx := context.Background()

	first, err := NewFileBackend(path)
	require.NoError(t, err)
	store := NewSecureStore(first, Options{Key: "k"}, zerolog.Nop())
	require.NoError(t, store.SetTokens(ctx, domain.Credentials{AccessToken: "a", RefreshToken: "r"}))

	second, err := NewFileBackend(path)
	require.NoError(t, err)
	creds, err := NewSecureStore(second, Options{Key: "k"}, zerolog.Nop()).GetTokens(ctx)
	require.NoError(t, err)
	require.True(t, creds.Complete())
	require.Equal(t, "a", creds.AccessToken)

	require.NoError(t, second.Delete(ctx, ports.KeyAccessToken))
	require.NoError(t, second.Delete(ctx, "never-set"))
	_, ok, err := first.Get(ctx, ports.KeyAccessToken)
	require.NoError(t, err)
	require.False(t, ok)
}
