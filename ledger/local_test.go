package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivekc/oliphant/entity"
)

var u1 = entity.UID{Table: "orders", Key: "1"}

func TestLocalSeedIfAbsentKeepsFirstValue(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(LocalOptions{})
	t.Cleanup(func() { _ = l.Close(ctx) })

	got, err := l.SeedIfAbsent(ctx, u1, entity.NewVersion("3"))
	require.NoError(t, err)
	assert.True(t, got.Equal(entity.NewVersion("3")))

	got, err = l.SeedIfAbsent(ctx, u1, entity.NewVersion("9"))
	require.NoError(t, err)
	assert.True(t, got.Equal(entity.NewVersion("3")), "second seed must not overwrite")
}

func TestLocalUpdateOverwritesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(LocalOptions{Shards: 3})
	t.Cleanup(func() { _ = l.Close(ctx) })

	_, _ = l.SeedIfAbsent(ctx, u1, entity.NewVersion("1"))
	require.NoError(t, l.Update(ctx, u1, entity.NewVersion("2")))
	require.NoError(t, l.Update(ctx, u1, entity.NewVersion("2")))

	v, ok, err := l.Get(ctx, u1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.Equal(entity.NewVersion("2")))
	assert.Equal(t, 1, l.Len())
	assert.Len(t, l.shards, 4)
}

func TestLocalShardIsHashOfUID(t *testing.T) {
	l := NewLocal(LocalOptions{Shards: 16})
	for _, u := range []entity.UID{u1, {Table: "orders", Key: "b64:AAE="}, {Table: "t", Key: ""}} {
		want := &l.shards[xxhash.Sum64String(u.Table+"#"+u.Key)&l.mask]
		assert.Same(t, want, l.shardFor(u), u.String())
	}
}

func TestLocalGetMissing(t *testing.T) {
	l := NewLocal(LocalOptions{})
	_, ok, err := l.Get(context.Background(), u1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalConcurrentSeedsAgree(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(LocalOptions{})

	const n = 32
	results := make([]entity.Version, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := entity.NewVersion("a")
			if i%2 == 1 {
				v = entity.NewVersion("b")
			}
			results[i], _ = l.SeedIfAbsent(ctx, u1, v)
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.True(t, results[0].Equal(results[i]), "all seeders must observe the same winner")
	}
}

func TestLocalCompactDropsOldEntriesAndTombstones(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	l := NewLocal(LocalOptions{Retention: time.Hour, TombstoneRetention: time.Minute})
	l.now = func() time.Time { return now }

	u2 := entity.UID{Table: "orders", Key: "2"}
	u3 := entity.UID{Table: "orders", Key: "3"}
	require.NoError(t, l.Update(ctx, u1, entity.NewVersion("1")))
	require.NoError(t, l.Update(ctx, u2, entity.Tombstone()))

	now = now.Add(2 * time.Minute)
	require.NoError(t, l.Update(ctx, u3, entity.NewVersion("1")))
	assert.Equal(t, 1, l.Compact(), "only the tombstone is past its retention")

	_, ok, _ := l.Get(ctx, u2)
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 2, l.Compact())
	assert.Equal(t, 0, l.Len())
}

func TestLocalCompactDisabledByDefault(t *testing.T) {
	l := NewLocal(LocalOptions{})
	_ = l.Update(context.Background(), u1, entity.Tombstone())
	assert.Equal(t, 0, l.Compact())
	assert.Equal(t, 1, l.Len())
}

func TestLocalCloseIsIdempotent(t *testing.T) {
	l := NewLocal(LocalOptions{CleanupInterval: time.Millisecond, Retention: time.Hour})
	require.NoError(t, l.Close(context.Background()))
	require.NoError(t, l.Close(context.Background()))
}
