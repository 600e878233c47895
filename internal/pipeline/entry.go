/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"net/http"
	"sync"
	"time"
)

// pendingEntry is one admitted, not-yet-dispatched request together with
// its arrival time. The response writer is exclusively owned by the entry
// until the entry is claimed for dispatch or evicted as stale; the claimer
// takes over the ownership and must finalize the entry after the response
// is written.
type pendingEntry struct {
	rw         http.ResponseWriter
	req        *http.Request
	enqueuedAt time.Time

	done         chan struct{}
	finalizeOnce sync.Once
}

func newPendingEntry(rw http.ResponseWriter, req *http.Request) *pendingEntry {
	return &pendingEntry{
		rw:         rw,
		req:        req,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// finalize releases the entry after its response has been written.
// The admission handler blocked on the entry returns only after this call,
// so all writes to the response writer happen before the handler returns.
func (e *pendingEntry) finalize() {
	e.finalizeOnce.Do(func() {
		close(e.done)
	})
}
