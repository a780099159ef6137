package session

import (
	"context"
	"time"
)

// StoreInterface is the durable key-value store session records live in.
// Values are opaque bytes; a ttl <= 0 means the entry never expires.
type StoreInterface interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
