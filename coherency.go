package oliphant

import (
	"context"
	"time"

	"github.com/archivekc/oliphant/entity"
)

// VersionedCache is the view of a shared read-through cache needed for
// eviction. cache.Cache implements it.
type VersionedCache interface {
	// CachedVersion returns the version embedded in the cached entry for uid.
	CachedVersion(ctx context.Context, uid entity.UID) (v entity.Version, ok bool, err error)
	// Evict removes the entry for uid (best-effort).
	Evict(ctx context.Context, uid entity.UID) error
}

type CoherencyOptions struct {
	Logger  Logger        // nil => NopLogger
	Hooks   Hooks         // nil => NopHooks
	Timeout time.Duration // bound for lookup + evict; 0 => 2s
}

// Coherency evicts shared-cache entries that a stale detection proved out of
// date. Every failure is logged and swallowed: it never changes the verdict.
type Coherency struct {
	cache   VersionedCache
	log     Logger
	hooks   Hooks
	timeout time.Duration
}

// NewCoherency returns a controller; a nil cache makes it a no-op.
func NewCoherency(c VersionedCache, opts CoherencyOptions) *Coherency {
	return &Coherency{
		cache:   c,
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
		timeout: coalesce[time.Duration](opts.Timeout, defaultEvictTimeout),
	}
}

// Reconcile evicts the cached entry for uid if its version differs from
// latest. A zero latest (unknown) differs from everything. It reports
// whether an entry was evicted.
func (c *Coherency) Reconcile(ctx context.Context, uid entity.UID, latest entity.Version) bool {
	if c == nil || c.cache == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cached, ok, err := c.cache.CachedVersion(ctx, uid)
	if err != nil {
		c.hooks.CacheEvictFailed(uid, err)
		c.log.Warn("shared cache lookup failed", Fields{"uid": uid.String(), "err": err})
		return false
	}
	if !ok {
		return false
	}
	if !latest.IsZero() && cached.Equal(latest) {
		// the cache already holds the latest version; only the caller's copy is stale
		return false
	}
	if err := c.cache.Evict(ctx, uid); err != nil {
		c.hooks.CacheEvictFailed(uid, err)
		c.log.Warn("shared cache eviction failed", Fields{"uid": uid.String(), "err": err})
		return false
	}
	c.hooks.CacheEvicted(uid)
	c.log.Debug("evicted stale shared cache entry", Fields{
		"uid": uid.String(), "cached": cached.String(), "latest": latest.String(),
	})
	return true
}
