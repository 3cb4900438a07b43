package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss signals that a key is absent. Every other error from a Cache is a
// transient backend failure; callers degrade to the source of truth either way.
var ErrMiss = errors.New("cache: miss")

// Cache is a byte-oriented key/value store with per-entry TTL. The project
// store treats any failure as a miss (reads) or a no-op (writes): a broken
// cache must never fail the primary operation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Well-known key builders shared by the store and tests.
func ProjectKey(projectID string) string       { return "project:" + projectID }
func ClientProjectsKey(clientID string) string { return "client_projects:" + clientID }
