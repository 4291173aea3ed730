// Package kvstore abstracts the ephemeral key-value storage used for
// sessions, transient login state, and cached responses. Two backends are
// provided: an in-process TTL cache and Redis. The backend is picked once
// at startup, never per call.
package kvstore

import (
	"context"
	"time"
)

// Store is a string-valued key-value store with per-key TTL.
// Get on an absent or expired key returns ok=false, never an error.
// GetDel atomically reads and removes a key, so concurrent callers racing on
// the same key see it exactly once.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	GetDel(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
}
