package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/expensly/authclient/internal/core/domain"
)

// TokenStore keeps single-use opaque tokens with a TTL.
// Key format: <namespace>:token:<kind>:<token>
type TokenStore struct {
	client    *redis.Client
	namespace string
}

// NewTokenStore creates a TokenStore wrapping the given Redis client.
func NewTokenStore(client *redis.Client, namespace string) *TokenStore {
	return &TokenStore{client: client, namespace: namespace}
}

func (s *TokenStore) Put(ctx context.Context, kind domain.TokenKind, token, subject string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(kind, token), subject, ttl).Err(); err != nil {
		return fmt.Errorf("store %s token: %w", kind, err)
	}
	return nil
}

// Take atomically reads and deletes the token.
func (s *TokenStore) Take(ctx context.Context, kind domain.TokenKind, token string) (string, error) {
	subject, err := s.client.GetDel(ctx, s.key(kind, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("take %s token: %w", kind, err)
	}
	return subject, nil
}

func (s *TokenStore) Delete(ctx context.Context, kind domain.TokenKind, token string) error {
	if err := s.client.Del(ctx, s.key(kind, token)).Err(); err != nil {
		return fmt.Errorf("delete %s token: %w", kind, err)
	}
	return nil
}

func (s *TokenStore) key(kind domain.TokenKind, token string) string {
	return fmt.Sprintf("%s:token:%s:%s", s.namespace, kind, token)
}
