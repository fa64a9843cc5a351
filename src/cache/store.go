package cache

import (
	"context"
	"time"
)

// Item is a cached value with its remaining lifetime.
// TTL is zero when the store cannot report it.
type Item struct {
	Value []byte
	TTL   time.Duration
}

// Store is one cache tier. Get returns nil, nil on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*Item, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists live keys starting with prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
