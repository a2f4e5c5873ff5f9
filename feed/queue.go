package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/archivekc/oliphant/entity"
)

var errClosed = errors.New("source closed")

// Queue is an in-process Source. Producers Publish; each PullLatest drains
// everything published since the previous pull, in publish order.
type Queue struct {
	mu      sync.Mutex
	pending []string
	fail    error
	closed  bool
}

var _ Source = (*Queue)(nil)

func NewQueue() *Queue { return &Queue{} }

// Publish enqueues notifications for the next pull.
func (q *Queue) Publish(ns ...Notification) {
	q.mu.Lock()
	for _, n := range ns {
		q.pending = append(q.pending, FormatRecord(n))
	}
	q.mu.Unlock()
}

// PublishVersion is shorthand for Publish(Notification{uid, v}).
func (q *Queue) PublishVersion(uid entity.UID, v entity.Version) {
	q.Publish(Notification{UID: uid, Version: v})
}

// PublishRaw enqueues already-formatted records, valid or not.
func (q *Queue) PublishRaw(records ...string) {
	q.mu.Lock()
	q.pending = append(q.pending, records...)
	q.mu.Unlock()
}

// FailWith makes subsequent pulls fail with err (wrapped as *UnavailableError)
// until cleared with FailWith(nil). Pending records are kept.
func (q *Queue) FailWith(err error) {
	q.mu.Lock()
	q.fail = err
	q.mu.Unlock()
}

func (q *Queue) PullLatest(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, Unavailable("queue", err)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Batch{}, Unavailable("queue", errClosed)
	}
	if q.fail != nil {
		err := q.fail
		q.mu.Unlock()
		return Batch{}, Unavailable("queue", err)
	}
	recs := q.pending
	q.pending = nil
	q.mu.Unlock()
	return ParseRecords(recs), nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()
	return nil
}
