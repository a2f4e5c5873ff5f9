package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/archivekc/oliphant/entity"
)

const defaultShards = 64

type localEntry struct {
	V         entity.Version
	UpdatedAt time.Time
}

type shard struct {
	mu sync.RWMutex
	m  map[entity.UID]localEntry
}

// LocalOptions tune Local. The zero value keeps every entry forever.
type LocalOptions struct {
	Shards int // rounded up to a power of two; 0 => 64

	// Compaction. An entry untouched for Retention is dropped; tombstones are
	// dropped after TombstoneRetention. 0 disables the respective rule.
	// A dropped entry reads as unknown, which the detector treats as fresh.
	CleanupInterval    time.Duration
	Retention          time.Duration
	TombstoneRetention time.Duration
}

// Local keeps versions in-process in a lock-striped map.
type Local struct {
	shards []shard
	mask   uint64

	retention     time.Duration
	tombRetention time.Duration
	now           func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Ledger = (*Local)(nil)

func NewLocal(opts LocalOptions) *Local {
	n := 1
	want := opts.Shards
	if want <= 0 {
		want = defaultShards
	}
	for n < want {
		n <<= 1
	}
	l := &Local{
		shards:        make([]shard, n),
		mask:          uint64(n - 1),
		retention:     opts.Retention,
		tombRetention: opts.TombstoneRetention,
		now:           time.Now,
	}
	for i := range l.shards {
		l.shards[i].m = make(map[entity.UID]localEntry)
	}
	if opts.CleanupInterval > 0 && (opts.Retention > 0 || opts.TombstoneRetention > 0) {
		l.ticker = time.NewTicker(opts.CleanupInterval)
		l.stopCh = make(chan struct{})
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for {
				select {
				case <-l.ticker.C:
					l.Compact()
				case <-l.stopCh:
					return
				}
			}
		}()
	}
	return l
}

func (l *Local) shardFor(uid entity.UID) *shard {
	return &l.shards[xxhash.Sum64String(uid.Table+"#"+uid.Key)&l.mask]
}

func (l *Local) SeedIfAbsent(_ context.Context, uid entity.UID, v entity.Version) (entity.Version, error) {
	s := l.shardFor(uid)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[uid]; ok {
		return e.V, nil
	}
	s.m[uid] = localEntry{V: v, UpdatedAt: l.now()}
	return v, nil
}

func (l *Local) Update(_ context.Context, uid entity.UID, v entity.Version) error {
	s := l.shardFor(uid)
	now := l.now()
	s.mu.Lock()
	s.m[uid] = localEntry{V: v, UpdatedAt: now}
	s.mu.Unlock()
	return nil
}

func (l *Local) Get(_ context.Context, uid entity.UID) (entity.Version, bool, error) {
	s := l.shardFor(uid)
	s.mu.RLock()
	e, ok := s.m[uid]
	s.mu.RUnlock()
	return e.V, ok, nil
}

// Len returns the number of entries. It locks shards one at a time, so the
// result is approximate under concurrent writes.
func (l *Local) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Compact applies the retention rules once and returns how many entries were removed.
func (l *Local) Compact() int {
	if l.retention <= 0 && l.tombRetention <= 0 {
		return 0
	}
	now := l.now()
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for k, e := range s.m {
			age := now.Sub(e.UpdatedAt)
			if (l.retention > 0 && age > l.retention) ||
				(l.tombRetention > 0 && e.V.IsTombstone() && age > l.tombRetention) {
				delete(s.m, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (l *Local) Close(_ context.Context) error {
	l.once.Do(func() {
		if l.stopCh != nil {
			l.ticker.Stop() // stop ticker before waiting
			close(l.stopCh)
			l.wg.Wait()
		}
	})
	return nil
}
