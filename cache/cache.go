// Package cache is a shared read-through entity cache whose entries embed the
// version they were read at. It validates entries against the version ledger
// on read and exposes CachedVersion/Evict for oliphant.Coherency.
//
// Keys:
//
//	entity:<ns>:<table>#<key>
//
// Read-through pattern:
//
//	v, ver, err := c.GetOrLoad(ctx, uid, func(ctx context.Context) (Order, entity.Version, error) {
//	    row, err := db.LoadOrder(ctx, id)
//	    return row, entity.VersionOf(row.Version), err
//	})
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/archivekc/oliphant"
	c "github.com/archivekc/oliphant/codec"
	"github.com/archivekc/oliphant/entity"
	"github.com/archivekc/oliphant/internal/keys"
	"github.com/archivekc/oliphant/internal/wire"
	pr "github.com/archivekc/oliphant/provider"
)

const defaultTTL = 10 * time.Minute

// VersionSource answers "latest known version of uid". ledger.Ledger
// satisfies it.
type VersionSource interface {
	Get(ctx context.Context, uid entity.UID) (entity.Version, bool, error)
}

type SetCostFunc func(key string, raw []byte) int64

// LoadFunc reads the entity from the system of record.
type LoadFunc[V any] func(ctx context.Context) (V, entity.Version, error)

// Options tune the cache. Namespace, Provider and Codec are required.
type Options[V any] struct {
	Namespace string // e.g. "app:prod"
	Provider  pr.Provider
	Codec     c.Codec[V]

	// Versions, when set, is consulted on every read and write: an entry
	// whose version differs from a known ledger version is never served and
	// never stored.
	Versions VersionSource

	Logger         oliphant.Logger // nil => NopLogger
	Hooks          oliphant.Hooks  // nil => NopHooks
	DefaultTTL     time.Duration   // 0 => 10m
	ComputeSetCost SetCostFunc     // nil => 1
	Disabled       bool
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[V]
	versions VersionSource
	log      oliphant.Logger
	hooks    oliphant.Hooks
	ttl      time.Duration
	cost     SetCostFunc
	enabled  bool
}

var _ oliphant.VersionedCache = (*Cache[struct{}])(nil)

func New[V any](opts Options[V]) (*Cache[V], error) {
	if opts.Provider == nil {
		return nil, errors.New("cache: provider is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("cache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("cache: namespace is required")
	}
	cc := &Cache[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		versions: opts.Versions,
		enabled:  !opts.Disabled,
		cost:     opts.ComputeSetCost,
	}
	cc.log = opts.Logger
	if cc.log == nil {
		cc.log = oliphant.NopLogger{}
	}
	cc.hooks = opts.Hooks
	if cc.hooks == nil {
		cc.hooks = oliphant.NopHooks{}
	}
	cc.ttl = opts.DefaultTTL
	if cc.ttl == 0 {
		cc.ttl = defaultTTL
	}
	if cc.cost == nil {
		cc.cost = func(string, []byte) int64 { return 1 }
	}
	return cc, nil
}

func (cc *Cache[V]) Enabled() bool { return cc.enabled }

func (cc *Cache[V]) Close(ctx context.Context) error { return cc.provider.Close(ctx) }

// Get returns the cached value and the version it was read at.
// Corrupt, undecodable and out-of-date entries are deleted and reported as misses.
func (cc *Cache[V]) Get(ctx context.Context, uid entity.UID) (V, entity.Version, bool, error) {
	var zero V
	if !cc.enabled {
		return zero, entity.Version{}, false, nil
	}
	k := cc.key(uid)
	raw, ok, err := cc.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, entity.Version{}, false, err
	}
	stamp, payload, err := wire.DecodeEntity(raw)
	if err != nil {
		cc.selfHeal(ctx, k, "corrupt")
		return zero, entity.Version{}, false, nil
	}
	ver := entity.NewVersion(stamp)
	if cc.outdated(ctx, uid, ver) {
		cc.selfHeal(ctx, k, "version_mismatch")
		return zero, entity.Version{}, false, nil
	}
	v, err := cc.codec.Decode(payload)
	if err != nil {
		cc.selfHeal(ctx, k, "value_decode")
		return zero, entity.Version{}, false, nil
	}
	return v, ver, true, nil
}

// Set stores value read at version ver. Writes of an outdated version (per
// Versions) are skipped silently, as are tombstones.
func (cc *Cache[V]) Set(ctx context.Context, uid entity.UID, ver entity.Version, value V, ttl time.Duration) error {
	if !cc.enabled {
		return nil
	}
	if ver.IsZero() || ver.IsTombstone() {
		return fmt.Errorf("cache: set %s: a concrete version is required", uid)
	}
	if ttl == 0 {
		ttl = cc.ttl
	}
	if cc.outdated(ctx, uid, ver) {
		cc.log.Debug("cache set skipped (version outdated)", oliphant.Fields{"uid": uid.String(), "version": ver.String()})
		return nil
	}
	payload, err := cc.codec.Encode(value)
	if err != nil {
		return err
	}
	raw, err := wire.EncodeEntity(ver.String(), payload)
	if err != nil {
		return err
	}
	k := cc.key(uid)
	ok, err := cc.provider.Set(ctx, k, raw, cc.cost(k, raw), ttl)
	if err != nil {
		return err
	}
	if !ok {
		cc.log.Debug("cache set rejected by provider (pressure)", oliphant.Fields{"uid": uid.String()})
	}
	return nil
}

// GetOrLoad serves uid from the cache or loads and stores it.
func (cc *Cache[V]) GetOrLoad(ctx context.Context, uid entity.UID, load LoadFunc[V]) (V, entity.Version, error) {
	if v, ver, ok, err := cc.Get(ctx, uid); err == nil && ok {
		return v, ver, nil
	} else if err != nil {
		cc.log.Warn("cache read failed; loading from source", oliphant.Fields{"uid": uid.String(), "err": err})
	}
	v, ver, err := load(ctx)
	if err != nil {
		var zero V
		return zero, entity.Version{}, err
	}
	if err := cc.Set(ctx, uid, ver, v, 0); err != nil {
		cc.log.Warn("cache fill failed", oliphant.Fields{"uid": uid.String(), "err": err})
	}
	return v, ver, nil
}

// CachedVersion decodes only the entry header.
func (cc *Cache[V]) CachedVersion(ctx context.Context, uid entity.UID) (entity.Version, bool, error) {
	if !cc.enabled {
		return entity.Version{}, false, nil
	}
	k := cc.key(uid)
	raw, ok, err := cc.provider.Get(ctx, k)
	if err != nil || !ok {
		return entity.Version{}, false, err
	}
	stamp, err := wire.DecodeStamp(raw)
	if err != nil {
		cc.selfHeal(ctx, k, "corrupt")
		return entity.Version{}, false, nil
	}
	return entity.NewVersion(stamp), true, nil
}

func (cc *Cache[V]) Evict(ctx context.Context, uid entity.UID) error {
	if !cc.enabled {
		return nil
	}
	return cc.provider.Del(ctx, cc.key(uid))
}

// outdated reports whether ver is known to be superseded. Lookup failures
// and unknown uids are not evidence.
func (cc *Cache[V]) outdated(ctx context.Context, uid entity.UID, ver entity.Version) bool {
	if cc.versions == nil {
		return false
	}
	latest, ok, err := cc.versions.Get(ctx, uid)
	if err != nil {
		cc.log.Warn("version lookup failed", oliphant.Fields{"uid": uid.String(), "err": err})
		return false
	}
	return ok && !ver.Equal(latest)
}

func (cc *Cache[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = cc.provider.Del(ctx, storageKey)
	cc.hooks.CacheSelfHeal(storageKey, reason)
	cc.log.Debug("cache entry dropped", oliphant.Fields{"key": storageKey, "reason": reason})
}

func (cc *Cache[V]) key(uid entity.UID) string { return keys.Entry(cc.ns, uid) }
