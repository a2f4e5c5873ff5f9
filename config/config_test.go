package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/config"
	"github.com/archivekc/oliphant/entity"
	"github.com/archivekc/oliphant/feed"
	"github.com/archivekc/oliphant/feed/file"
	"github.com/archivekc/oliphant/ledger"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := config.Parse([]byte(`
feed:
  kind: file
  path: /var/log/changes.log
`))
	require.NoError(t, err)
	assert.Equal(t, config.LedgerLocal, c.Ledger.Kind)
	assert.Equal(t, config.CacheNone, c.Cache.Kind)
	assert.Equal(t, config.MissFresh, c.LedgerMiss)
	assert.Equal(t, oliphant.AssumeFresh, c.MissPolicy())
}

func TestParseFullDocument(t *testing.T) {
	c, err := config.Parse([]byte(`
feed:
  kind: redis-stream
  redis: {addr: "localhost:6379", db: 2}
  stream: entity-changes
  start: "0-0"
  count: 100
ledger:
  kind: redis
  redis: {addr: "localhost:6379"}
  namespace: app:prod
  ttl: 24h
cache:
  kind: ristretto
  namespace: app:prod
  ttl: 5m
  max_cost: 1000
seed_on_load: true
ledger_miss: stale
coalesce_pulls: true
evict_timeout: 500ms
`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Feed.Redis.DB)
	assert.Equal(t, int64(100), c.Feed.Count)
	assert.Equal(t, 24*time.Hour, c.Ledger.TTL)
	assert.Equal(t, 5*time.Minute, c.Cache.TTL)
	assert.Equal(t, 500*time.Millisecond, c.EvictTimeout)
	assert.Equal(t, oliphant.AssumeStale, c.MissPolicy())
	assert.True(t, c.CoalescePulls)
}

func TestPostgresChannelDefault(t *testing.T) {
	c, err := config.Parse([]byte(`
feed:
  kind: postgres
  dsn: postgres://localhost/app
`))
	require.NoError(t, err)
	assert.Equal(t, "oliphant", c.Feed.Channel)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
		field   string
	}{
		{"missing feed kind", `ledger: {kind: local}`, config.ErrMissingField, "feed.kind"},
		{"unknown feed kind", `feed: {kind: kafka}`, config.ErrUnknownFeedKind, ""},
		{"file without path", `feed: {kind: file}`, config.ErrMissingField, "feed.path"},
		{"stream without addr", `feed: {kind: redis-stream, stream: s}`, config.ErrMissingField, "feed.redis.addr"},
		{"stream without name", `feed: {kind: redis-stream, redis: {addr: x}}`, config.ErrMissingField, "feed.stream"},
		{"postgres without dsn", `feed: {kind: postgres}`, config.ErrMissingField, "feed.dsn"},
		{"unknown ledger", "feed: {kind: file, path: p}\nledger: {kind: etcd}", config.ErrUnknownLedgerKind, ""},
		{"redis ledger without addr", "feed: {kind: file, path: p}\nledger: {kind: redis}", config.ErrMissingField, "ledger.redis.addr"},
		{"unknown cache", "feed: {kind: file, path: p}\ncache: {kind: memcached}", config.ErrUnknownCacheKind, ""},
		{"negative cache ttl", "feed: {kind: file, path: p}\ncache: {kind: bigcache, ttl: -1s}", config.ErrNegativeDuration, ""},
		{"stale miss without seed_on_load", "feed: {kind: file, path: p}\nledger_miss: stale", config.ErrMissPolicyNeedsSeed, ""},
		{"unknown miss policy", "feed: {kind: file, path: p}\nledger_miss: maybe", config.ErrUnknownMissPolicy, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.doc))
			require.Error(t, err)
			require.ErrorContains(t, err, tt.wantErr.Error())
			if tt.field != "" {
				zErr, ok := err.(*zerr.Error)
				require.True(t, ok, "expected *zerr.Error, got %T", err)
				assert.Equal(t, tt.field, zErr.Metadata()["field"])
			}
		})
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := config.Parse([]byte("feed: [unterminated"))
	require.Error(t, err)
	assert.ErrorContains(t, err, config.ErrConfigParseFailed.Error())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorContains(t, err, config.ErrConfigReadFailed.Error())
}

func TestOpenFileFeedAndLocalLedger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	log := filepath.Join(dir, "changes.log")
	path := filepath.Join(dir, "oliphant.yaml")
	doc := "feed:\n  kind: file\n  path: " + log + "\n  from_start: true\nledger:\n  kind: local\ncache:\n  kind: ristretto\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)

	pub, err := config.OpenPublisher(c.Feed)
	require.NoError(t, err)
	u := entity.UID{Table: "orders", Key: "1"}
	require.NoError(t, pub.Publish(ctx, feed.Notification{UID: u, Version: entity.NewVersion("2")}))
	require.NoError(t, pub.Close())

	coord, err := config.Open(ctx, c, nil, nil)
	require.NoError(t, err)
	defer coord.Close(ctx)

	err = coord.Check(ctx, oliphant.PreFlush, nil, u, entity.NewVersion("1"))
	assert.ErrorIs(t, err, oliphant.ErrStaleEntity)
}

func TestOpenSourceAndLedgerKinds(t *testing.T) {
	ctx := context.Background()
	src, err := config.OpenSource(ctx, config.FeedConfig{Kind: config.FeedFile, Path: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	_, ok := src.(*file.Tailer)
	assert.True(t, ok)
	require.NoError(t, src.Close())

	l, err := config.OpenLedger(config.LedgerConfig{Kind: config.LedgerLocal, Shards: 4})
	require.NoError(t, err)
	_, ok = l.(*ledger.Local)
	assert.True(t, ok)
	require.NoError(t, l.Close(ctx))

	_, err = config.OpenSource(ctx, config.FeedConfig{Kind: "nope"})
	assert.Error(t, err)
	_, err = config.OpenLedger(config.LedgerConfig{Kind: "nope"})
	assert.Error(t, err)

	p, err := config.OpenProvider(ctx, config.CacheConfig{Kind: config.CacheNone})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = config.OpenProvider(ctx, config.CacheConfig{Kind: config.CacheBigcache, LifeWindow: time.Minute})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, p.Close(ctx))
}
