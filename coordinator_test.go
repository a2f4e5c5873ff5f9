package oliphant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivekc/oliphant/entity"
	"github.com/archivekc/oliphant/feed"
)

type fakeCache struct {
	mu       sync.Mutex
	entries  map[entity.UID]entity.Version
	lookErr  error
	evictErr error
	block    bool
	evicts   int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[entity.UID]entity.Version{}} }

func (c *fakeCache) CachedVersion(ctx context.Context, u entity.UID) (entity.Version, bool, error) {
	if c.block {
		<-ctx.Done()
		return entity.Version{}, false, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookErr != nil {
		return entity.Version{}, false, c.lookErr
	}
	v, ok := c.entries[u]
	return v, ok, nil
}

func (c *fakeCache) Evict(_ context.Context, u entity.UID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.evictErr != nil {
		return c.evictErr
	}
	c.evicts++
	delete(c.entries, u)
	return nil
}

func newTestCoordinator(t *testing.T, mut func(*Options)) (*Coordinator, *feed.Queue) {
	t.Helper()
	q := feed.NewQueue()
	opts := Options{Feed: q}
	if mut != nil {
		mut(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, q
}

func TestNewRequiresFeed(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestCheckpointsDenyStaleWrite(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	c, q := newTestCoordinator(t, func(o *Options) { o.Hooks = hooks })
	s := c.NewSession("uow-1")
	u := uid("orders", "1")

	require.NoError(t, c.OnMaterialize(ctx, s, u, ver("3")))
	assert.Equal(t, Checked, s.State(u))

	q.PublishVersion(u, ver("4"))
	err := c.OnPreFlush(ctx, s, u, ver("3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleEntity)

	var se *StaleEntityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, u, se.UID)
	assert.Equal(t, "3", se.Observed.String())
	assert.Equal(t, "4", se.Latest.String())
	assert.Equal(t, PreFlush, se.Checkpoint)
	assert.Contains(t, se.Error(), `latest "4"`)

	assert.Equal(t, Conflicted, s.State(u))
	assert.Equal(t, []entity.UID{u}, s.Stale())
	assert.ErrorIs(t, s.Err(), ErrStaleEntity)
	assert.Equal(t, []entity.UID{u}, hooks.stale)
}

func TestConflictedIsTerminalUntilForget(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t, nil)
	s := c.NewSession("uow")
	u := uid("orders", "1")

	require.NoError(t, c.OnMaterialize(ctx, s, u, ver("1")))
	q.PublishVersion(u, ver("2"))
	first := c.OnPersistIntent(ctx, s, u, ver("1"))
	require.Error(t, first)

	// even a check carrying the latest version stays denied
	again := c.OnPreUpdate(ctx, s, u, ver("2"))
	require.Error(t, again)
	var se *StaleEntityError
	require.ErrorAs(t, again, &se)
	assert.Equal(t, PersistIntent, se.Checkpoint, "the recorded conflict is returned")

	s.Forget(u)
	assert.Equal(t, Unchecked, s.State(u))
	require.NoError(t, c.OnMaterialize(ctx, s, u, ver("2")))
	require.NoError(t, c.OnPreUpdate(ctx, s, u, ver("2")))
	assert.NoError(t, s.Err())
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t, nil)
	u := uid("orders", "1")
	a, b := c.NewSession("a"), c.NewSession("b")

	require.NoError(t, c.OnMaterialize(ctx, a, u, ver("1")))
	q.PublishVersion(u, ver("2"))
	require.Error(t, c.OnPreFlush(ctx, a, u, ver("1")))

	require.NoError(t, c.OnMaterialize(ctx, b, u, ver("2")))
	assert.Equal(t, Checked, b.State(u))
	assert.Equal(t, "b", b.ID())
}

func TestAllowStaleLoad(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t, func(o *Options) { o.AllowStaleLoad = true })
	s := c.NewSession("uow")
	u := uid("orders", "1")

	require.NoError(t, c.OnMaterialize(ctx, s, u, ver("1")))
	q.PublishVersion(u, ver("2"))
	// the feed is not pulled at load, so the stale copy loads fine
	require.NoError(t, c.OnMaterialize(ctx, s, u, ver("1")))
	assert.Equal(t, Unchecked, s.State(u))

	require.Error(t, c.OnPreFlush(ctx, s, u, ver("1")))
}

func TestFeedOutageIsAWarning(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t, nil)
	s := c.NewSession("uow")
	u := uid("orders", "1")

	require.NoError(t, c.OnMaterialize(ctx, s, u, ver("1")))
	q.FailWith(errors.New("broker down"))
	require.NoError(t, c.OnPreFlush(ctx, s, u, ver("1")))
	require.NoError(t, c.Check(ctx, PreUpdate, nil, u, ver("1")))

	w := s.Warnings()
	require.Len(t, w, 1)
	assert.ErrorIs(t, w[0], ErrFeedUnavailable)
	assert.NoError(t, s.Err())
}

func TestCheckResultCarriesWarningWithoutSession(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t, nil)
	u := uid("orders", "1")

	res, err := c.CheckResult(ctx, Materialize, nil, u, ver("1"))
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.Equal(t, Fresh, res.Status)

	q.FailWith(errors.New("broker down"))
	res, err = c.CheckResult(ctx, PreUpdate, nil, u, ver("1"))
	require.NoError(t, err)
	assert.Equal(t, Fresh, res.Status)
	assert.ErrorIs(t, res.Warning, ErrFeedUnavailable)

	q.FailWith(nil)
	q.PublishVersion(u, ver("2"))
	res, err = c.CheckResult(ctx, PreFlush, nil, u, ver("1"))
	assert.ErrorIs(t, err, ErrStaleEntity)
	assert.Equal(t, Stale, res.Status)
	assert.Equal(t, "2", res.Latest.String())
}

func TestSeedOnLoadWithAssumeStale(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, func(o *Options) {
		o.SeedOnLoad = true
		o.LedgerMiss = AssumeStale
	})
	s := c.NewSession("uow")

	// never materialized: the ledger has no entry
	err := c.OnPersistIntent(ctx, s, uid("orders", "new"), ver("1"))
	var se *StaleEntityError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Latest.IsZero())
	assert.Contains(t, se.Error(), "latest unknown")

	u := uid("orders", "1")
	require.NoError(t, c.OnMaterialize(ctx, s, u, ver("1")))
	require.NoError(t, c.OnPreFlush(ctx, s, u, ver("1")))
}

func TestDeletedRowIsStale(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t, nil)
	u := uid("orders", "1")

	require.NoError(t, c.Check(ctx, Materialize, nil, u, ver("5")))
	q.PublishVersion(u, entity.Tombstone())
	err := c.Check(ctx, PreUpdate, nil, u, ver("5"))
	var se *StaleEntityError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Latest.IsTombstone())
	assert.Contains(t, se.Error(), "deleted")
}

func TestStaleDetectionEvictsSharedCache(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	fc := newFakeCache()
	c, q := newTestCoordinator(t, func(o *Options) {
		o.Cache = fc
		o.Hooks = hooks
	})
	u := uid("orders", "1")
	fc.entries[u] = ver("1")

	require.NoError(t, c.Check(ctx, Materialize, nil, u, ver("1")))
	q.PublishVersion(u, ver("2"))
	require.Error(t, c.Check(ctx, PreFlush, nil, u, ver("1")))

	_, ok := fc.entries[u]
	assert.False(t, ok)
	assert.Equal(t, []entity.UID{u}, hooks.evicted)
}

func TestCoherencyKeepsUpToDateEntry(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCache()
	u := uid("orders", "1")
	fc.entries[u] = ver("2")
	coh := NewCoherency(fc, CoherencyOptions{})

	assert.False(t, coh.Reconcile(ctx, u, ver("2")))
	assert.Equal(t, 0, fc.evicts)

	assert.False(t, coh.Reconcile(ctx, uid("orders", "absent"), ver("2")))

	assert.True(t, coh.Reconcile(ctx, u, entity.Tombstone()))
	assert.Equal(t, 1, fc.evicts)
}

func TestCoherencyEvictsWhenLatestUnknown(t *testing.T) {
	fc := newFakeCache()
	u := uid("orders", "1")
	fc.entries[u] = ver("2")
	assert.True(t, NewCoherency(fc, CoherencyOptions{}).Reconcile(context.Background(), u, entity.Version{}))
}

func TestCoherencyFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	u := uid("orders", "1")

	hooks := &recHooks{}
	fc := newFakeCache()
	fc.entries[u] = ver("1")
	fc.evictErr = errors.New("redis down")
	assert.False(t, NewCoherency(fc, CoherencyOptions{Hooks: hooks}).Reconcile(ctx, u, ver("2")))

	fc2 := newFakeCache()
	fc2.lookErr = errors.New("timeout")
	assert.False(t, NewCoherency(fc2, CoherencyOptions{Hooks: hooks}).Reconcile(ctx, u, ver("2")))
	assert.Len(t, hooks.evictFailed, 2)

	var nilCoh *Coherency
	assert.False(t, nilCoh.Reconcile(ctx, u, ver("2")))
	assert.False(t, NewCoherency(nil, CoherencyOptions{}).Reconcile(ctx, u, ver("2")))
}

func TestCoherencyIsBoundedByTimeout(t *testing.T) {
	fc := newFakeCache()
	fc.block = true
	coh := NewCoherency(fc, CoherencyOptions{Timeout: 20 * time.Millisecond})

	start := time.Now()
	assert.False(t, coh.Reconcile(context.Background(), uid("orders", "1"), ver("2")))
	assert.Less(t, time.Since(start), time.Second)
}

func TestEvictionFailureKeepsVerdict(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCache()
	fc.evictErr = errors.New("nope")
	c, q := newTestCoordinator(t, func(o *Options) { o.Cache = fc })
	u := uid("orders", "1")
	fc.entries[u] = ver("1")

	require.NoError(t, c.Check(ctx, Materialize, nil, u, ver("1")))
	q.PublishVersion(u, ver("2"))
	assert.ErrorIs(t, c.Check(ctx, PreFlush, nil, u, ver("1")), ErrStaleEntity)
}

func TestCheckpointAndStateStrings(t *testing.T) {
	assert.Equal(t, "materialize", Materialize.String())
	assert.Equal(t, "persist-intent", PersistIntent.String())
	assert.Equal(t, "pre-flush", PreFlush.String())
	assert.Equal(t, "pre-update", PreUpdate.String())
	assert.Equal(t, "check", Checkpoint(0).String())
	assert.Equal(t, "unchecked", Unchecked.String())
	assert.Equal(t, "fresh", Checked.String())
	assert.Equal(t, "stale", Conflicted.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "fresh", Fresh.String())
}

func TestCloseClosesFeed(t *testing.T) {
	q := feed.NewQueue()
	c, err := New(Options{Feed: q})
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))

	_, err = q.PullLatest(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}
