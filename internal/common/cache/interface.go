package cache

import (
	"context"
	"time"
)

// Cache is the subset of key-value operations the service relies on.
type Cache interface {
	BasicOps
	HashOps
	SetOps
	PipelineOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" with a nil error when the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; ttl 0 means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist.
	// Returns true if the key was set.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error

	Incr(ctx context.Context, key string) (int64, error)
}

// HashOps defines hash (map) operations
type HashOps interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// SetOps defines set operations
type SetOps interface {
	// SAdd returns the number of members that were newly added.
	SAdd(ctx context.Context, key string, members ...interface{}) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
}

// PipelineOps batches writes.
type PipelineOps interface {
	// Pipeline queues the commands added by fn and runs them in one
	// MULTI/EXEC transaction. Nothing is sent when fn returns an error.
	Pipeline(ctx context.Context, fn func(pipe Pipeliner) error) error
}

// Pipeliner queues commands inside Pipeline.
type Pipeliner interface {
	HIncrBy(key, field string, incr int64) error
	SAdd(key string, members ...interface{}) error
	Expire(key string, ttl time.Duration) error
	Del(keys ...string) error
}
