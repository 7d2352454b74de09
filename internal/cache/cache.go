// Package cache provides time-bounded byte caches and a forecast decorator
// built on them.
package cache

import (
	"context"
	"time"
)

// Cache maps string keys to byte payloads that expire after a TTL.
// A miss is reported as (nil, false, nil); errors are reserved for backend
// failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
