package oliphant

import (
	"context"
	"errors"
	"time"

	"github.com/archivekc/oliphant/feed"
	"github.com/archivekc/oliphant/ledger"
)

// Options configure a Coordinator. Only Feed is required.
type Options struct {
	// Required
	Feed feed.Source

	Ledger         ledger.Ledger  // nil => in-process ledger.Local
	Cache          VersionedCache // shared read-through cache; nil disables eviction
	Logger         Logger         // nil => NopLogger
	Hooks          Hooks          // nil => NopHooks
	AllowStaleLoad bool           // skip validation at materialize (default false)
	LedgerMiss     MissPolicy     // default AssumeFresh
	SeedOnLoad     bool           // seed only at materialize; default seeds at every check
	CoalescePulls  bool           // share one in-flight pull between concurrent checks
	EvictTimeout   time.Duration  // 0 => 2s

	// Closers run on Close after the feed and the ledger, e.g. to release
	// the shared cache.
	Closers []func(context.Context) error
}

// New wires the validator, the coherency controller and the coordinator.
// The coordinator owns Feed and Ledger: Close closes both, then runs Closers.
func New(opts Options) (*Coordinator, error) {
	if opts.Feed == nil {
		return nil, errors.New("oliphant: feed source is required")
	}
	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})

	src := opts.Feed
	l := opts.Ledger
	if l == nil {
		l = ledger.NewLocal(ledger.LocalOptions{})
	}

	seed := SeedAlways
	if opts.SeedOnLoad {
		seed = SeedOnLoad
	}
	v := NewValidator(src, l, ValidatorOptions{
		Logger:   log,
		Hooks:    hooks,
		Miss:     opts.LedgerMiss,
		Seed:     seed,
		Coalesce: opts.CoalescePulls,
	})
	coh := NewCoherency(opts.Cache, CoherencyOptions{Logger: log, Hooks: hooks, Timeout: opts.EvictTimeout})

	return &Coordinator{
		validator:      v,
		coherency:      coh,
		log:            log,
		hooks:          hooks,
		allowStaleLoad: opts.AllowStaleLoad,
		seedOnLoad:     opts.SeedOnLoad,
		closers: append([]func(context.Context) error{
			func(context.Context) error { return src.Close() },
			l.Close,
		}, opts.Closers...),
	}, nil
}
