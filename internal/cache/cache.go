// Package cache provides the short-lived response cache used by the
// protected endpoint. The in-memory implementation is the default; a Redis
// backend is selected when REDIS_URL is configured.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
