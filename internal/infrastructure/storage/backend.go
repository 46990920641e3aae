package storage

import "context"

// Backend is the platform key-value primitive the secure store wraps.
// Get reports ok=false for a missing key; Delete of a missing key is not an
// error.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
