/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"sync"
	"time"
)

// pendingQueue is a FIFO of admitted requests, safe for simultaneous use by
// the admission handler (producer), the dispatcher (consumer) and the sweeper
// (bulk eviction). An entry leaves the queue exactly once, under the queue
// lock, so the dispatcher and sweeper can never claim the same entry twice.
type pendingQueue struct {
	mu      sync.Mutex
	entries []*pendingEntry
	closed  bool

	wake chan struct{}
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{wake: make(chan struct{}, 1)}
}

// Enqueue appends the entry to the queue and wakes the dispatcher.
// It returns false if the queue has been closed for shutdown.
func (q *pendingQueue) Enqueue(e *pendingEntry) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue claims the oldest entry, if any.
func (q *pendingQueue) TryDequeue() (*pendingEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, false
	}
	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return e, true
}

// Len returns the current queue length.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// EvictExpired atomically replaces the queue contents with the subsequence of
// entries that waited no longer than olderThan, preserving FIFO order, and
// returns the evicted ones. The caller owns the evicted entries.
func (q *pendingQueue) EvictExpired(olderThan time.Duration, now time.Time) []*pendingEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*pendingEntry
	live := q.entries[:0]
	for _, e := range q.entries {
		if now.Sub(e.enqueuedAt) > olderThan {
			expired = append(expired, e)
			continue
		}
		live = append(live, e)
	}
	for i := len(live); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = live
	return expired
}

// Close marks the queue as closed so that further Enqueue calls fail,
// and returns all entries that were still pending.
func (q *pendingQueue) Close() []*pendingEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	remaining := q.entries
	q.entries = nil
	return remaining
}

// Wake returns the channel signaled on every enqueue.
func (q *pendingQueue) Wake() <-chan struct{} {
	return q.wake
}
