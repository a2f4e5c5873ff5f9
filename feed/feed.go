// Package feed defines the change-notification contract consumed by the
// detector and the line format shared by the reference adapters.
//
// A Source is pulled synchronously at every checkpoint. Implementations must
// be at-least-once: duplicates are harmless because the ledger overwrite is
// idempotent. Notifications about the same uid must be returned in write order.
//
// Record format (one per line / message):
//
//	<canonicalTable>#<primaryKey>###<version|-1>
//
// Keys that contain '#' or a newline are written as "b64:" + base64url(key).
package feed

import (
	"context"

	"github.com/archivekc/oliphant/entity"
)

// Notification reports that uid now has Version (possibly a tombstone).
type Notification struct {
	UID     entity.UID
	Version entity.Version
}

// Batch is the result of one pull. Skipped holds records that could not be
// parsed; they never prevent the rest of the batch from being applied.
type Batch struct {
	Notifications []Notification
	Skipped       []*MalformedError
}

func (b Batch) Len() int { return len(b.Notifications) }

// Source is an external notification channel.
type Source interface {
	// PullLatest returns everything delivered since the previous pull.
	// Infrastructure faults are reported as *UnavailableError.
	PullLatest(ctx context.Context) (Batch, error)
	Close() error
}

// ParseRecords parses raw records in order, isolating malformed ones.
func ParseRecords(records []string) Batch {
	var b Batch
	for _, r := range records {
		n, m := parseRecord(r)
		if m != nil {
			b.Skipped = append(b.Skipped, m)
			continue
		}
		b.Notifications = append(b.Notifications, n)
	}
	return b
}
