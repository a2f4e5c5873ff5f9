// Package provider defines the byte store behind the shared entity cache.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set. The cache embeds the entity version in
// those bytes and relies on reading it back unchanged.
//
// The keyspace "entity:<ns>:" is owned by package cache. Foreign values
// written there fail framing validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0: no expiry, or the store's
	// default). Cost may be ignored. ok=false means the store rejected the
	// write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
