// Package ledger stores the last-known version per entity.
//
// Entries are seeded on first observation and afterwards overwritten only by
// versions delivered through the change feed.
package ledger

import (
	"context"

	"github.com/archivekc/oliphant/entity"
)

// Ledger abstracts where versions live.
// Use Local (default) for an in-process ledger, or Redis to share one ledger
// between processes.
type Ledger interface {
	// SeedIfAbsent stores v only if uid has no entry and returns the entry's
	// value after the call (the seeded v or the pre-existing value).
	SeedIfAbsent(ctx context.Context, uid entity.UID, v entity.Version) (entity.Version, error)
	// Update overwrites the entry unconditionally. Feed-sourced versions only.
	Update(ctx context.Context, uid entity.UID, v entity.Version) error
	// Get returns the entry; ok=false means unknown.
	Get(ctx context.Context, uid entity.UID) (v entity.Version, ok bool, err error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
