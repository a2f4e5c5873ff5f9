package oliphant

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"

	"github.com/archivekc/oliphant/entity"
	"github.com/archivekc/oliphant/feed"
	"github.com/archivekc/oliphant/ledger"
)

// Status is the verdict of a staleness check.
type Status uint8

const (
	Fresh Status = iota
	Stale
)

func (s Status) String() string {
	if s == Stale {
		return "stale"
	}
	return "fresh"
}

// MissPolicy decides the verdict when the ledger has no entry for a uid.
// Misses only happen when seeding is restricted to loads (SeedOnLoad).
type MissPolicy uint8

const (
	// AssumeFresh never reports a conflict without evidence (default).
	AssumeFresh MissPolicy = iota
	// AssumeStale treats an object the detector never saw loaded as stale.
	AssumeStale
)

// SeedPolicy decides at which checks a first observation seeds the ledger.
type SeedPolicy uint8

const (
	// SeedAlways seeds at every check (default).
	SeedAlways SeedPolicy = iota
	// SeedOnLoad seeds only when an object is materialized.
	SeedOnLoad
)

// Result is the outcome of Check.
type Result struct {
	Status Status
	Latest entity.Version // ledger value used for the verdict
	Known  bool           // ledger had (or just seeded) an entry
	// Warning is non-nil when an infrastructure fault degraded the check
	// (feed unavailable, ledger error). The verdict then fails open.
	Warning error
}

type ValidatorOptions struct {
	Logger Logger     // nil => NopLogger
	Hooks  Hooks      // nil => NopHooks
	Miss   MissPolicy // default AssumeFresh
	Seed   SeedPolicy // default SeedAlways
	// Coalesce lets concurrent checks share one in-flight sync instead of
	// queueing for their own pull.
	Coalesce bool
}

// Validator pulls the feed into the ledger and compares an object's carried
// version against it. Safe for concurrent use.
//
// Pull and apply run as one step under sem: batches reach the ledger in the
// order they left the feed.
type Validator struct {
	src      feed.Source
	ledger   ledger.Ledger
	log      Logger
	hooks    Hooks
	miss     MissPolicy
	seed     SeedPolicy
	coalesce bool

	sem    chan struct{}
	flight singleflight.Group
}

func NewValidator(src feed.Source, l ledger.Ledger, opts ValidatorOptions) *Validator {
	return &Validator{
		src:      src,
		ledger:   l,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		miss:     opts.Miss,
		seed:     opts.Seed,
		coalesce: opts.Coalesce,
		sem:      make(chan struct{}, 1),
	}
}

// Check pulls the feed, applies it, seeds uid with current if it was never
// observed and compares. The returned error is non-nil only when ctx is done;
// infrastructure faults are reported through Result.Warning.
func (v *Validator) Check(ctx context.Context, uid entity.UID, current entity.Version) (Result, error) {
	return v.check(ctx, uid, current, v.seed == SeedAlways)
}

func (v *Validator) check(ctx context.Context, uid entity.UID, current entity.Version, seed bool) (Result, error) {
	var res Result
	if _, err := v.Sync(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		res.Warning = err
	}

	var (
		latest entity.Version
		known  bool
		err    error
	)
	if seed {
		latest, err = v.ledger.SeedIfAbsent(ctx, uid, current)
		known = err == nil
		if err != nil {
			v.ledgerError("seed", uid, err)
		}
	} else {
		latest, known, err = v.ledger.Get(ctx, uid)
		if err != nil {
			v.ledgerError("get", uid, err)
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		// unknowable: fail open regardless of the miss policy
		res.Warning = errors.Join(res.Warning, err)
		return res, nil
	}

	res.Known = known
	res.Latest = latest
	switch {
	case !known:
		if v.miss == AssumeStale {
			res.Status = Stale
		}
	case !current.Equal(latest):
		res.Status = Stale
	}
	return res, nil
}

// Observe seeds uid with current without pulling the feed. It is the cheap
// bookkeeping done when an object is loaded and stale loads are allowed.
func (v *Validator) Observe(ctx context.Context, uid entity.UID, current entity.Version) error {
	if _, err := v.ledger.SeedIfAbsent(ctx, uid, current); err != nil {
		v.ledgerError("seed", uid, err)
		return err
	}
	return nil
}

// Sync pulls the feed once and applies the batch in delivery order. It
// returns the number of notifications applied. On a feed fault the ledger is
// left untouched and a *FeedUnavailableError is returned.
//
// With Coalesce, callers arriving while a sync runs wait for it and share its
// count. A pulled batch is always applied in full, even when every waiter has
// given up.
func (v *Validator) Sync(ctx context.Context) (int, error) {
	if !v.coalesce {
		return v.pullAndApply(ctx)
	}
	ch := v.flight.DoChan("sync", func() (any, error) {
		return v.pullAndApply(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		n, _ := res.Val.(int)
		return n, res.Err
	case <-ctx.Done():
		return 0, v.pullFailed(feed.Unavailable("coalesced", ctx.Err()))
	}
}

func (v *Validator) pullAndApply(ctx context.Context) (int, error) {
	select {
	case v.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, v.pullFailed(feed.Unavailable("source", ctx.Err()))
	}
	defer func() { <-v.sem }()

	batch, err := v.src.PullLatest(ctx)
	if err != nil {
		return 0, v.pullFailed(err)
	}

	for _, m := range batch.Skipped {
		v.hooks.MalformedSkipped(m)
		v.log.Warn("skipped malformed notification", Fields{"record": m.Record, "reason": m.Reason})
	}

	// the source has moved past this batch; a cancelled caller must not
	// drop the rest of it
	applyCtx := context.WithoutCancel(ctx)
	applied := 0
	for _, n := range batch.Notifications {
		if err := v.ledger.Update(applyCtx, n.UID, n.Version); err != nil {
			v.ledgerError("update", n.UID, err)
			continue
		}
		applied++
	}
	if applied > 0 {
		v.log.Debug("applied notifications", Fields{"count": applied})
	}
	return applied, nil
}

func (v *Validator) pullFailed(err error) error {
	var ue *feed.UnavailableError
	if !errors.As(err, &ue) {
		err = feed.Unavailable("source", err)
	}
	v.hooks.FeedUnavailable(err)
	v.log.Warn("feed unavailable; ledger not updated this round", Fields{"err": err})
	return err
}

// Latest reads the ledger without pulling.
func (v *Validator) Latest(ctx context.Context, uid entity.UID) (entity.Version, bool, error) {
	return v.ledger.Get(ctx, uid)
}

func (v *Validator) ledgerError(op string, uid entity.UID, err error) {
	v.hooks.LedgerError(op, uid, err)
	v.log.Error("ledger "+op+" failed", Fields{"uid": uid.String(), "err": err})
}
