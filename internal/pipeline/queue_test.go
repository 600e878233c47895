/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeTestEntry(enqueuedAt time.Time) *pendingEntry {
	e := newPendingEntry(httptest.NewRecorder(), httptest.NewRequest("POST", "/", nil))
	e.enqueuedAt = enqueuedAt
	return e
}

func TestPendingQueue_FIFO(t *testing.T) {
	q := newPendingQueue()

	_, ok := q.TryDequeue()
	require.False(t, ok)

	now := time.Now()
	first := makeTestEntry(now)
	second := makeTestEntry(now)
	third := makeTestEntry(now)
	require.True(t, q.Enqueue(first))
	require.True(t, q.Enqueue(second))
	require.True(t, q.Enqueue(third))
	require.Equal(t, 3, q.Len())

	e, ok := q.TryDequeue()
	require.True(t, ok)
	require.Same(t, first, e)
	e, ok = q.TryDequeue()
	require.True(t, ok)
	require.Same(t, second, e)
	e, ok = q.TryDequeue()
	require.True(t, ok)
	require.Same(t, third, e)
	require.Equal(t, 0, q.Len())
}

func TestPendingQueue_EnqueueSignalsWake(t *testing.T) {
	q := newPendingQueue()
	require.True(t, q.Enqueue(makeTestEntry(time.Now())))
	select {
	case <-q.Wake():
	default:
		t.Fatal("wake signal expected after enqueue")
	}
	// Multiple enqueues coalesce into a single pending signal.
	require.True(t, q.Enqueue(makeTestEntry(time.Now())))
	require.True(t, q.Enqueue(makeTestEntry(time.Now())))
	select {
	case <-q.Wake():
	default:
		t.Fatal("wake signal expected after enqueue")
	}
	select {
	case <-q.Wake():
		t.Fatal("wake signals should coalesce")
	default:
	}
}

func TestPendingQueue_EvictExpired(t *testing.T) {
	q := newPendingQueue()
	now := time.Now()

	stale1 := makeTestEntry(now.Add(-3 * time.Second))
	live1 := makeTestEntry(now.Add(-500 * time.Millisecond))
	stale2 := makeTestEntry(now.Add(-2 * time.Second))
	live2 := makeTestEntry(now)
	for _, e := range []*pendingEntry{stale1, live1, stale2, live2} {
		require.True(t, q.Enqueue(e))
	}

	expired := q.EvictExpired(time.Second, now)
	require.Equal(t, []*pendingEntry{stale1, stale2}, expired)
	require.Equal(t, 2, q.Len())

	// FIFO order of live entries is preserved.
	e, ok := q.TryDequeue()
	require.True(t, ok)
	require.Same(t, live1, e)
	e, ok = q.TryDequeue()
	require.True(t, ok)
	require.Same(t, live2, e)
}

func TestPendingQueue_Close(t *testing.T) {
	q := newPendingQueue()
	first := makeTestEntry(time.Now())
	second := makeTestEntry(time.Now())
	require.True(t, q.Enqueue(first))
	require.True(t, q.Enqueue(second))

	remaining := q.Close()
	require.Equal(t, []*pendingEntry{first, second}, remaining)
	require.Equal(t, 0, q.Len())

	require.False(t, q.Enqueue(makeTestEntry(time.Now())))
	_, ok := q.TryDequeue()
	require.False(t, ok)
}
