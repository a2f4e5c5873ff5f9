package config

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.trai.ch/zerr"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/cache"
	"github.com/archivekc/oliphant/codec"
	"github.com/archivekc/oliphant/feed"
	"github.com/archivekc/oliphant/feed/file"
	"github.com/archivekc/oliphant/feed/postgres"
	"github.com/archivekc/oliphant/feed/redisstream"
	"github.com/archivekc/oliphant/ledger"
	pr "github.com/archivekc/oliphant/provider"
	"github.com/archivekc/oliphant/provider/bigcache"
	"github.com/archivekc/oliphant/provider/redis"
	"github.com/archivekc/oliphant/provider/ristretto"
)

func (r RedisConfig) client() goredis.UniversalClient {
	return goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    []string{r.Addr},
		Username: r.Username,
		Password: r.Password,
		DB:       r.DB,
	})
}

// ownedSource closes a client the source does not own.
type ownedSource struct {
	feed.Source
	release func() error
}

func (s ownedSource) Close() error {
	return errors.Join(s.Source.Close(), s.release())
}

// OpenSource builds the feed source named by f.
func OpenSource(ctx context.Context, f FeedConfig) (feed.Source, error) {
	switch f.Kind {
	case FeedFile:
		t, err := file.NewTailer(f.Path, file.Options{FromStart: f.FromStart})
		if err != nil {
			return nil, err
		}
		return t, nil
	case FeedPostgres:
		l, err := postgres.New(f.DSN, f.Channel, postgres.Options{
			MinReconnect: f.MinReconnect,
			MaxReconnect: f.MaxReconnect,
			MaxBatch:     f.MaxBatch,
		})
		if err != nil {
			return nil, err
		}
		return l, nil
	case FeedRedisStream:
		rdb := f.Redis.client()
		r, err := redisstream.NewReader(ctx, rdb, f.Stream, redisstream.Options{Start: f.Start, Count: f.Count})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return ownedSource{Source: r, release: rdb.Close}, nil
	default:
		return nil, zerr.With(ErrUnknownFeedKind, "kind", f.Kind)
	}
}

// Publisher writes notifications to a feed.
type Publisher interface {
	Publish(ctx context.Context, ns ...feed.Notification) error
	Close() error
}

type appendPublisher struct{ a *file.Appender }

func (p appendPublisher) Publish(_ context.Context, ns ...feed.Notification) error {
	return p.a.Append(ns...)
}
func (p appendPublisher) Close() error { return p.a.Close() }

type pgPublisher struct {
	*postgres.Publisher
	db *sql.DB
}

func (p pgPublisher) Close() error { return p.db.Close() }

type streamPublisher struct {
	*redisstream.Publisher
	rdb goredis.UniversalClient
}

func (p streamPublisher) Close() error { return p.rdb.Close() }

// OpenPublisher builds the producer side of the feed named by f.
func OpenPublisher(f FeedConfig) (Publisher, error) {
	switch f.Kind {
	case FeedFile:
		a, err := file.NewAppender(f.Path)
		if err != nil {
			return nil, err
		}
		return appendPublisher{a: a}, nil
	case FeedPostgres:
		db, err := sql.Open("postgres", f.DSN)
		if err != nil {
			return nil, err
		}
		return pgPublisher{Publisher: postgres.NewPublisher(db, f.Channel), db: db}, nil
	case FeedRedisStream:
		rdb := f.Redis.client()
		return streamPublisher{Publisher: redisstream.NewPublisher(rdb, f.Stream, f.MaxLen), rdb: rdb}, nil
	default:
		return nil, zerr.With(ErrUnknownFeedKind, "kind", f.Kind)
	}
}

// OpenLedger builds the ledger named by l. The returned ledger owns any
// client it created.
func OpenLedger(l LedgerConfig) (ledger.Ledger, error) {
	switch l.Kind {
	case LedgerLocal, "":
		return ledger.NewLocal(ledger.LocalOptions{
			Shards:             l.Shards,
			CleanupInterval:    l.CleanupInterval,
			Retention:          l.Retention,
			TombstoneRetention: l.TombstoneRetention,
		}), nil
	case LedgerRedis:
		return ledger.NewRedisWithTTL(l.Redis.client(), l.Namespace, l.TTL), nil
	default:
		return nil, zerr.With(ErrUnknownLedgerKind, "kind", l.Kind)
	}
}

// OpenProvider builds the byte store named by c, or nil for CacheNone.
func OpenProvider(ctx context.Context, c CacheConfig) (pr.Provider, error) {
	switch c.Kind {
	case CacheNone, "":
		return nil, nil
	case CacheBigcache:
		life := c.LifeWindow
		if life == 0 {
			life = c.TTL
		}
		if life == 0 {
			life = 10 * time.Minute
		}
		p, err := bigcache.New(ctx, bigcache.Config{
			LifeWindow:         life,
			CleanWindow:        c.CleanWindow,
			HardMaxCacheSizeMB: c.HardMaxCacheSizeMB,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case CacheRistretto:
		p, err := ristretto.New(ristretto.Config{
			NumCounters: coalesceInt(c.NumCounters, 1e6),
			MaxCost:     coalesceInt(c.MaxCost, 1<<26), // bytes
			BufferItems: 64,
			ByteCost:    true,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case CacheRedis:
		rdb := c.Redis.client()
		p, err := redis.New(redis.Config{Client: rdb, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return p, nil
	default:
		return nil, zerr.With(ErrUnknownCacheKind, "kind", c.Kind)
	}
}

func coalesceInt(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

// Open builds a coordinator from c. When a cache is configured, eviction
// operates on its entries regardless of their value type.
func Open(ctx context.Context, c *Config, log oliphant.Logger, hooks oliphant.Hooks) (*oliphant.Coordinator, error) {
	src, err := OpenSource(ctx, c.Feed)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open feed")
	}
	l, err := OpenLedger(c.Ledger)
	if err != nil {
		_ = src.Close()
		return nil, zerr.Wrap(err, "failed to open ledger")
	}
	var (
		vc      oliphant.VersionedCache
		closers []func(context.Context) error
	)
	p, err := OpenProvider(ctx, c.Cache)
	if err != nil {
		_ = src.Close()
		_ = l.Close(ctx)
		return nil, zerr.Wrap(err, "failed to open cache provider")
	}
	if p != nil {
		cc, err := cache.New[[]byte](cache.Options[[]byte]{
			Namespace:  c.Cache.Namespace,
			Provider:   p,
			Codec:      codec.Bytes{},
			Versions:   l,
			Logger:     log,
			Hooks:      hooks,
			DefaultTTL: c.Cache.TTL,
		})
		if err != nil {
			_ = src.Close()
			_ = l.Close(ctx)
			_ = p.Close(ctx)
			return nil, err
		}
		vc = cc
		closers = append(closers, cc.Close)
	}
	return oliphant.New(oliphant.Options{
		Feed:           src,
		Ledger:         l,
		Cache:          vc,
		Logger:         log,
		Hooks:          hooks,
		AllowStaleLoad: c.AllowStaleLoad,
		LedgerMiss:     c.MissPolicy(),
		SeedOnLoad:     c.SeedOnLoad,
		CoalescePulls:  c.CoalescePulls,
		EvictTimeout:   c.EvictTimeout,
		Closers:        closers,
	})
}
