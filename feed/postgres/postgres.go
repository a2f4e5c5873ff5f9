// Package postgres implements a change feed over PostgreSQL LISTEN/NOTIFY.
// Database triggers (installed elsewhere) call pg_notify(channel, record)
// with records in the feed line format.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/archivekc/oliphant/feed"
)

const sourceName = "postgres"

// Conn is the subset of *pq.Listener used by Listener.
type Conn interface {
	Listen(channel string) error
	Ping() error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

var _ Conn = (*pq.Listener)(nil)

// Options tune Listener.
type Options struct {
	MinReconnect time.Duration // 0 => 1s
	MaxReconnect time.Duration // 0 => 1m
	MaxBatch     int           // cap per pull; 0 => unlimited
	// OnEvent receives pq connection events (reconnects, failures). Optional.
	OnEvent func(ev pq.ListenerEventType, err error)
}

// Listener pulls pending notifications from a LISTEN connection.
//
// Notifications are only surfaced after a network round trip, so every pull
// pings the server and then drains what is already queued, never waiting for
// more. pq delivers queued notifications before the ping reply through small
// buffered channels, so the channel is drained while the ping is in flight.
type Listener struct {
	conn     Conn
	channel  string
	maxBatch int

	mu      sync.Mutex
	closed  bool
	ping    <-chan error // round trip outliving the pull that started it
	pending []string     // drained but not yet returned
}

var _ feed.Source = (*Listener)(nil)

// New opens a dedicated LISTEN connection to dsn and subscribes to channel.
func New(dsn, channel string, opts Options) (*Listener, error) {
	if channel == "" {
		return nil, errors.New("postgres feed: channel is required")
	}
	minR := opts.MinReconnect
	if minR <= 0 {
		minR = time.Second
	}
	maxR := opts.MaxReconnect
	if maxR <= 0 {
		maxR = time.Minute
	}
	l := pq.NewListener(dsn, minR, maxR, opts.OnEvent)
	return NewFromConn(l, channel, opts)
}

// NewFromConn subscribes an existing connection to channel.
func NewFromConn(conn Conn, channel string, opts Options) (*Listener, error) {
	if err := conn.Listen(channel); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
		_ = conn.Close()
		return nil, fmt.Errorf("postgres feed: listen %q: %w", channel, err)
	}
	return &Listener{conn: conn, channel: channel, maxBatch: opts.MaxBatch}, nil
}

func (l *Listener) PullLatest(ctx context.Context) (feed.Batch, error) {
	if err := ctx.Err(); err != nil {
		return feed.Batch{}, feed.Unavailable(sourceName, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return feed.Batch{}, feed.Unavailable(sourceName, sql.ErrConnDone)
	}

	done := l.ping
	if done == nil {
		c := make(chan error, 1)
		go func() { c <- l.conn.Ping() }()
		done = c
	}
	ch := l.conn.NotificationChannel()
wait:
	for {
		select {
		case n := <-ch:
			l.keep(n)
		case err := <-done:
			l.ping = nil
			if err != nil {
				return feed.Batch{}, feed.Unavailable(sourceName, err)
			}
			break wait
		case <-ctx.Done():
			l.ping = done
			return feed.Batch{}, feed.Unavailable(sourceName, ctx.Err())
		}
	}

drain:
	for l.maxBatch <= 0 || len(l.pending) < l.maxBatch {
		select {
		case n := <-ch:
			l.keep(n)
		default:
			break drain
		}
	}
	return feed.ParseRecords(l.take()), nil
}

func (l *Listener) keep(n *pq.Notification) {
	// nil marks a reconnect; anything sent while down is lost and only costs
	// detection, never correctness
	if n == nil || n.Channel != l.channel {
		return
	}
	l.pending = append(l.pending, n.Extra)
}

func (l *Listener) take() []string {
	n := len(l.pending)
	if l.maxBatch > 0 && n > l.maxBatch {
		n = l.maxBatch
	}
	out := l.pending[:n:n]
	l.pending = l.pending[n:]
	if len(l.pending) == 0 {
		l.pending = nil
	}
	return out
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.conn.Close()
}

// Publisher emits records with pg_notify. Useful for tooling and for tests;
// production producers are database triggers.
type Publisher struct {
	db      *sql.DB
	channel string
}

func NewPublisher(db *sql.DB, channel string) *Publisher {
	return &Publisher{db: db, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, ns ...feed.Notification) error {
	for _, n := range ns {
		if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.channel, feed.FormatRecord(n)); err != nil {
			return fmt.Errorf("postgres feed: notify %s: %w", n.UID, err)
		}
	}
	return nil
}
