package config

import "go.trai.ch/zerr"

var (
	ErrConfigReadFailed  = zerr.New("failed to read config file")
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	ErrUnknownFeedKind     = zerr.New("unknown feed kind, expected 'file', 'postgres' or 'redis-stream'")
	ErrUnknownLedgerKind   = zerr.New("unknown ledger kind, expected 'local' or 'redis'")
	ErrUnknownCacheKind    = zerr.New("unknown cache kind, expected 'none', 'bigcache', 'ristretto' or 'redis'")
	ErrUnknownMissPolicy   = zerr.New("unknown ledger_miss, expected 'fresh' or 'stale'")
	ErrMissingField        = zerr.New("missing required field")
	ErrNegativeDuration    = zerr.New("duration must not be negative")
	ErrMissPolicyNeedsSeed = zerr.New("ledger_miss 'stale' requires seed_on_load")
)
