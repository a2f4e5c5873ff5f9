// Package asynchook moves hook delivery off the checkpoint path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	coord, _ := oliphant.New(oliphant.Options{Feed: src, Hooks: hooks})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/archivekc/oliphant"
	"github.com/archivekc/oliphant/entity"
)

type Hooks struct {
	inner   oliphant.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ oliphant.Hooks = (*Hooks)(nil)

func New(inner oliphant.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) StaleDetected(u entity.UID, cp oliphant.Checkpoint, observed, latest entity.Version) {
	h.try(func() { h.inner.StaleDetected(u, cp, observed, latest) })
}
func (h *Hooks) FeedUnavailable(err error) { h.try(func() { h.inner.FeedUnavailable(err) }) }
func (h *Hooks) MalformedSkipped(m *oliphant.MalformedNotificationError) {
	h.try(func() { h.inner.MalformedSkipped(m) })
}
func (h *Hooks) LedgerError(op string, u entity.UID, err error) {
	h.try(func() { h.inner.LedgerError(op, u, err) })
}
func (h *Hooks) CacheEvicted(u entity.UID) { h.try(func() { h.inner.CacheEvicted(u) }) }
func (h *Hooks) CacheEvictFailed(u entity.UID, err error) {
	h.try(func() { h.inner.CacheEvictFailed(u, err) })
}
func (h *Hooks) CacheSelfHeal(k, r string) { h.try(func() { h.inner.CacheSelfHeal(k, r) }) }
