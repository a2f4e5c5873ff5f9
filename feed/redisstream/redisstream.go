// Package redisstream implements a change feed on a Redis stream. Producers
// XADD entries with a "record" field; the reader remembers the last id it
// returned and never blocks.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/archivekc/oliphant/feed"
)

const (
	sourceName = "redis-stream"
	// Field holds the record inside each stream entry.
	Field = "record"
	// StartNew begins after the entries present when the reader is created.
	StartNew = "$"
	// StartOldest replays the whole stream.
	StartOldest = "0-0"
)

// Options tune Reader.
type Options struct {
	Start string // StartNew (default) or StartOldest or an explicit id
	Count int64  // max entries per pull; 0 => 512
}

// Reader pulls entries from a stream in id order.
type Reader struct {
	rdb    redis.UniversalClient
	stream string
	count  int64

	mu     sync.Mutex
	lastID string
}

var _ feed.Source = (*Reader)(nil)

func NewReader(ctx context.Context, client redis.UniversalClient, stream string, opts Options) (*Reader, error) {
	if stream == "" {
		return nil, errors.New("redis stream feed: stream is required")
	}
	r := &Reader{rdb: client, stream: stream, count: opts.Count}
	if r.count <= 0 {
		r.count = 512
	}
	switch opts.Start {
	case "", StartNew:
		// "$" is only meaningful for blocking reads; resolve it to the
		// current last id now.
		id, err := lastEntryID(ctx, client, stream)
		if err != nil {
			return nil, fmt.Errorf("redis stream feed: resolve start: %w", err)
		}
		r.lastID = id
	default:
		r.lastID = opts.Start
	}
	return r, nil
}

func lastEntryID(ctx context.Context, client redis.UniversalClient, stream string) (string, error) {
	msgs, err := client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return StartOldest, nil
	}
	return msgs[0].ID, nil
}

// LastID is the id of the last entry returned.
func (r *Reader) LastID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastID
}

func (r *Reader) PullLatest(ctx context.Context) (feed.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.stream, r.lastID},
		Count:   r.count,
		Block:   -1, // no BLOCK argument: return immediately
	}).Result()
	if errors.Is(err, redis.Nil) {
		return feed.Batch{}, nil
	}
	if err != nil {
		return feed.Batch{}, feed.Unavailable(sourceName, err)
	}

	var records []string
	for _, s := range res {
		for _, m := range s.Messages {
			records = append(records, recordOf(m))
			r.lastID = m.ID
		}
	}
	return feed.ParseRecords(records), nil
}

// recordOf extracts the record field. An entry without it yields an empty
// record, which parses as malformed and is skipped.
func recordOf(m redis.XMessage) string {
	switch v := m.Values[Field].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Close is a no-op: the client is owned by the caller.
func (r *Reader) Close() error { return nil }

// Publisher appends records to the stream.
type Publisher struct {
	rdb    redis.UniversalClient
	stream string
	maxLen int64
}

// NewPublisher returns a publisher; maxLen > 0 trims the stream approximately.
func NewPublisher(client redis.UniversalClient, stream string, maxLen int64) *Publisher {
	return &Publisher{rdb: client, stream: stream, maxLen: maxLen}
}

func (p *Publisher) Publish(ctx context.Context, ns ...feed.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, n := range ns {
			args := &redis.XAddArgs{
				Stream: p.stream,
				Values: map[string]any{Field: feed.FormatRecord(n)},
			}
			if p.maxLen > 0 {
				args.MaxLen = p.maxLen
				args.Approx = true
			}
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	return err
}
