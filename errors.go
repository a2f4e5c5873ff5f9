package oliphant

import (
	"errors"
	"fmt"

	"github.com/archivekc/oliphant/entity"
	"github.com/archivekc/oliphant/feed"
)

var (
	// ErrStaleEntity matches every *StaleEntityError via errors.Is.
	ErrStaleEntity = errors.New("stale entity")
	// ErrFeedUnavailable matches every FeedUnavailableError via errors.Is.
	ErrFeedUnavailable = feed.ErrUnavailable
)

type (
	// FeedUnavailableError is an infrastructure fault of the change feed.
	// It is reported as a warning, never as a conflict.
	FeedUnavailableError = feed.UnavailableError
	// MalformedNotificationError describes one skipped feed record.
	MalformedNotificationError = feed.MalformedError
)

// StaleEntityError is the conflict signal: the in-memory copy of UID carries
// Observed while the ledger knows Latest. Callers map it to their own
// retry/abort policy; it is never absorbed by this package.
type StaleEntityError struct {
	UID        entity.UID
	Observed   entity.Version
	Latest     entity.Version // zero when the verdict came from the miss policy
	Checkpoint Checkpoint
}

func (e *StaleEntityError) Error() string {
	switch {
	case e.Latest.IsTombstone():
		return fmt.Sprintf("stale entity %s at %s: holds version %q, row was deleted",
			e.UID, e.Checkpoint, e.Observed)
	case e.Latest.IsZero():
		return fmt.Sprintf("stale entity %s at %s: holds version %q, latest unknown",
			e.UID, e.Checkpoint, e.Observed)
	default:
		return fmt.Sprintf("stale entity %s at %s: holds version %q, latest %q",
			e.UID, e.Checkpoint, e.Observed, e.Latest)
	}
}

func (e *StaleEntityError) Unwrap() error { return ErrStaleEntity }
