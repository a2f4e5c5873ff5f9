package oliphant

import (
	"github.com/archivekc/oliphant/entity"
)

// Hooks receive high-signal events. Implementations MUST be cheap and
// non-blocking; they run inline with checkpoints. Wrap slow sinks with
// hooks/async.
type Hooks interface {
	// A checkpoint denied uid. latest is zero when the miss policy decided.
	StaleDetected(uid entity.UID, cp Checkpoint, observed, latest entity.Version)

	// A pull failed; the ledger was left untouched for that round.
	FeedUnavailable(err error)

	// One record of a batch could not be parsed and was skipped.
	MalformedSkipped(err *MalformedNotificationError)

	// A ledger operation failed. op ∈ {"seed", "update", "get"}.
	LedgerError(op string, uid entity.UID, err error)

	// A stale shared-cache entry was evicted, or the attempt failed.
	CacheEvicted(uid entity.UID)
	CacheEvictFailed(uid entity.UID, err error)

	// The shared cache dropped an entry on read.
	// reason ∈ {"corrupt", "version_mismatch", "value_decode"}
	CacheSelfHeal(storageKey, reason string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) StaleDetected(entity.UID, Checkpoint, entity.Version, entity.Version) {}
func (NopHooks) FeedUnavailable(error)                                               {}
func (NopHooks) MalformedSkipped(*MalformedNotificationError)                         {}
func (NopHooks) LedgerError(string, entity.UID, error)                               {}
func (NopHooks) CacheEvicted(entity.UID)                                             {}
func (NopHooks) CacheEvictFailed(entity.UID, error)                                  {}
func (NopHooks) CacheSelfHeal(string, string)                                        {}
