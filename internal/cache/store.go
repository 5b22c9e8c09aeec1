// Package cache implements the hot price cache: a best-effort key-value
// store with TTLs and a typed price layer on top of it.
package cache

import (
	"context"
	"time"
)

// Store is a hot key-value store with per-entry TTLs.
//
// Get returns apperrors.ErrCacheMiss when the key is absent or expired.
// Callers treat every other error as a miss as well.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Expirer is implemented by stores that need expired entries removed by a
// scheduled job rather than evicting them on their own.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}
