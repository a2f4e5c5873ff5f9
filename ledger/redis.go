package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archivekc/oliphant/entity"
	"github.com/archivekc/oliphant/internal/keys"
)

// Redis shares the ledger across processes and survives restarts.
// Optionally, a TTL is applied to every write to bound growth. An expired
// entry reads as unknown.
//
// SeedIfAbsent relies on SET NX GET (Redis >= 7.0).
type Redis struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration // 0 disables expiry
}

var _ Ledger = (*Redis)(nil)

// NewRedis creates a Redis-backed ledger without TTL.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

// NewRedisWithTTL creates a Redis-backed ledger whose entries expire ttl
// after their last write. If ttl <= 0, keys do not expire.
func NewRedisWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key(uid entity.UID) string { return keys.Ledger(s.ns, uid) }

func (s *Redis) SeedIfAbsent(ctx context.Context, uid entity.UID, v entity.Version) (entity.Version, error) {
	prev, err := s.rdb.SetArgs(ctx, s.key(uid), encodeVersion(v), redis.SetArgs{
		Mode: "NX",
		TTL:  s.ttl,
		Get:  true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return v, nil // seeded
	}
	if err != nil {
		return entity.Version{}, err
	}
	return decodeVersion(prev)
}

func (s *Redis) Update(ctx context.Context, uid entity.UID, v entity.Version) error {
	return s.rdb.Set(ctx, s.key(uid), encodeVersion(v), s.ttl).Err()
}

func (s *Redis) Get(ctx context.Context, uid entity.UID) (entity.Version, bool, error) {
	res, err := s.rdb.Get(ctx, s.key(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return entity.Version{}, false, nil
	}
	if err != nil {
		return entity.Version{}, false, err
	}
	v, err := decodeVersion(res)
	if err != nil {
		return entity.Version{}, false, err
	}
	return v, true, nil
}

// Close closes the underlying Redis client.
func (s *Redis) Close(context.Context) error { return s.rdb.Close() }

// stored form: "t" for a tombstone, "v:<stamp>" otherwise, so a literal "-1"
// carried by an object never collides with a deletion.
func encodeVersion(v entity.Version) string {
	if v.IsTombstone() {
		return "t"
	}
	return "v:" + v.String()
}

func decodeVersion(s string) (entity.Version, error) {
	switch {
	case s == "t":
		return entity.Tombstone(), nil
	case strings.HasPrefix(s, "v:"):
		return entity.NewVersion(s[2:]), nil
	default:
		return entity.Version{}, fmt.Errorf("redis ledger: unexpected value %q", s)
	}
}
