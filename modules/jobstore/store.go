package jobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist (or has expired).
var ErrNotFound = errors.New("jobstore: key not found")

// Store is the persistence port for job records. Values are opaque JSON blobs;
// a zero ttl means the key never expires. Two production adapters exist: an
// ephemeral Redis store with native per-key TTL and a durable Supabase table.
// The adapter is selected by configuration, never by duplicating callers.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
