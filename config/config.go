// Package config loads the YAML configuration of a coordinator and builds
// the concrete feed source, ledger and shared cache it names.
//
//	feed:
//	  kind: redis-stream
//	  redis: {addr: "localhost:6379"}
//	  stream: entity-changes
//	ledger:
//	  kind: local
//	  retention: 24h
//	cache:
//	  kind: ristretto
//	  namespace: app:prod
//	seed_on_load: true
//	ledger_miss: stale
package config

import (
	"os"
	"time"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/archivekc/oliphant"
)

const (
	FeedFile        = "file"
	FeedPostgres    = "postgres"
	FeedRedisStream = "redis-stream"

	LedgerLocal = "local"
	LedgerRedis = "redis"

	CacheNone      = "none"
	CacheBigcache  = "bigcache"
	CacheRistretto = "ristretto"
	CacheRedis     = "redis"

	MissFresh = "fresh"
	MissStale = "stale"
)

// Config is the root of the YAML document.
type Config struct {
	Feed   FeedConfig   `yaml:"feed"`
	Ledger LedgerConfig `yaml:"ledger"`
	Cache  CacheConfig  `yaml:"cache"`

	AllowStaleLoad bool          `yaml:"allow_stale_load"`
	SeedOnLoad     bool          `yaml:"seed_on_load"`
	LedgerMiss     string        `yaml:"ledger_miss"`
	CoalescePulls  bool          `yaml:"coalesce_pulls"`
	EvictTimeout   time.Duration `yaml:"evict_timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FeedConfig struct {
	Kind string `yaml:"kind"`

	// file
	Path      string `yaml:"path"`
	FromStart bool   `yaml:"from_start"`

	// postgres
	DSN          string        `yaml:"dsn"`
	Channel      string        `yaml:"channel"`
	MaxBatch     int           `yaml:"max_batch"`
	MinReconnect time.Duration `yaml:"min_reconnect"`
	MaxReconnect time.Duration `yaml:"max_reconnect"`

	// redis-stream
	Redis  RedisConfig `yaml:"redis"`
	Stream string      `yaml:"stream"`
	Start  string      `yaml:"start"`
	Count  int64       `yaml:"count"`
	MaxLen int64       `yaml:"max_len"` // publisher trim
}

type LedgerConfig struct {
	Kind string `yaml:"kind"`

	// local
	Shards             int           `yaml:"shards"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	Retention          time.Duration `yaml:"retention"`
	TombstoneRetention time.Duration `yaml:"tombstone_retention"`

	// redis
	Redis     RedisConfig   `yaml:"redis"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
}

type CacheConfig struct {
	Kind      string        `yaml:"kind"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`

	// bigcache
	LifeWindow         time.Duration `yaml:"life_window"`
	CleanWindow        time.Duration `yaml:"clean_window"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb"`

	// ristretto
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`

	// redis
	Redis RedisConfig `yaml:"redis"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path comes from the operator
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, ErrConfigReadFailed.Error()), "path", path)
	}
	return Parse(b)
}

// Parse decodes b, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, zerr.Wrap(err, ErrConfigParseFailed.Error())
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Ledger.Kind == "" {
		c.Ledger.Kind = LedgerLocal
	}
	if c.Ledger.Namespace == "" {
		c.Ledger.Namespace = "oliphant"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = CacheNone
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = "oliphant"
	}
	if c.LedgerMiss == "" {
		c.LedgerMiss = MissFresh
	}
	if c.Feed.Kind == FeedPostgres && c.Feed.Channel == "" {
		c.Feed.Channel = "oliphant"
	}
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Ledger.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	switch c.LedgerMiss {
	case MissFresh:
	case MissStale:
		if !c.SeedOnLoad {
			return ErrMissPolicyNeedsSeed
		}
	default:
		return zerr.With(ErrUnknownMissPolicy, "ledger_miss", c.LedgerMiss)
	}
	if c.EvictTimeout < 0 {
		return zerr.With(ErrNegativeDuration, "field", "evict_timeout")
	}
	return nil
}

func (f FeedConfig) validate() error {
	switch f.Kind {
	case FeedFile:
		return required("feed.path", f.Path)
	case FeedPostgres:
		if f.MinReconnect < 0 || f.MaxReconnect < 0 {
			return zerr.With(ErrNegativeDuration, "field", "feed.min_reconnect/max_reconnect")
		}
		return required("feed.dsn", f.DSN)
	case FeedRedisStream:
		if err := required("feed.redis.addr", f.Redis.Addr); err != nil {
			return err
		}
		return required("feed.stream", f.Stream)
	case "":
		return zerr.With(ErrMissingField, "field", "feed.kind")
	default:
		return zerr.With(ErrUnknownFeedKind, "kind", f.Kind)
	}
}

func (l LedgerConfig) validate() error {
	switch l.Kind {
	case LedgerLocal:
		if l.Retention < 0 || l.TombstoneRetention < 0 || l.CleanupInterval < 0 {
			return zerr.With(ErrNegativeDuration, "field", "ledger retention")
		}
		return nil
	case LedgerRedis:
		if l.TTL < 0 {
			return zerr.With(ErrNegativeDuration, "field", "ledger.ttl")
		}
		return required("ledger.redis.addr", l.Redis.Addr)
	default:
		return zerr.With(ErrUnknownLedgerKind, "kind", l.Kind)
	}
}

func (c CacheConfig) validate() error {
	switch c.Kind {
	case CacheNone, CacheBigcache, CacheRistretto:
	case CacheRedis:
		if err := required("cache.redis.addr", c.Redis.Addr); err != nil {
			return err
		}
	default:
		return zerr.With(ErrUnknownCacheKind, "kind", c.Kind)
	}
	if c.TTL < 0 {
		return zerr.With(ErrNegativeDuration, "field", "cache.ttl")
	}
	return nil
}

func required(field, v string) error {
	if v == "" {
		return zerr.With(ErrMissingField, "field", field)
	}
	return nil
}

// MissPolicy maps LedgerMiss to its oliphant value.
func (c *Config) MissPolicy() oliphant.MissPolicy {
	if c.LedgerMiss == MissStale {
		return oliphant.AssumeStale
	}
	return oliphant.AssumeFresh
}
