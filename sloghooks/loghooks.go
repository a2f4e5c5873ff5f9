// Package sloghooks logs oliphant events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/entity"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	MalformedEvery uint64
	// Optional key redactor applied to primary keys and storage keys.
	// Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	malformedCtr atomic.Uint64
}

var _ oliphant.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

// uid keeps the table readable and redacts the key.
func (h *Hooks) uid(u entity.UID) string { return u.Table + "#" + h.redact(u.Key) }

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StaleDetected(u entity.UID, cp oliphant.Checkpoint, observed, latest entity.Version) {
	if h.l == nil {
		return
	}
	h.l.Info("oliphant.stale_detected",
		"uid", h.uid(u),
		"checkpoint", cp.String(),
		"observed", observed.String(),
		"latest", latest.String())
}

func (h *Hooks) FeedUnavailable(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("oliphant.feed_unavailable", "err", err)
}

func (h *Hooks) MalformedSkipped(m *oliphant.MalformedNotificationError) {
	if h.l == nil || !sample(h.opts.MalformedEvery, &h.malformedCtr) {
		return
	}
	h.l.Warn("oliphant.malformed_skipped",
		"record", h.redact(m.Record),
		"reason", m.Reason)
}

func (h *Hooks) LedgerError(op string, u entity.UID, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("oliphant.ledger_error",
		"op", op,
		"uid", h.uid(u),
		"err", err)
}

func (h *Hooks) CacheEvicted(u entity.UID) {
	if h.l == nil {
		return
	}
	h.l.Debug("oliphant.cache_evicted", "uid", h.uid(u))
}

func (h *Hooks) CacheEvictFailed(u entity.UID, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("oliphant.cache_evict_failed",
		"uid", h.uid(u),
		"err", err)
}

func (h *Hooks) CacheSelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("oliphant.cache_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}
