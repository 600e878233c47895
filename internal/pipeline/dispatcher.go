/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"
	"github.com/acronis/go-appkit/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Dispatcher continuously drains the pending queue and executes each claimed
// request in its own goroutine, never exceeding the concurrency cap. The cap
// is enforced with a slot channel: a slot is acquired before an entry is
// claimed, so an entry that cannot be admitted immediately stays in the queue
// and remains eligible for the sweeper.
type Dispatcher struct {
	queue       *pendingQueue
	next        http.Handler
	slots       chan struct{}
	inFlight    *atomic.Int64
	taskTimeout time.Duration
	errDomain   string
	logger      log.FieldLogger
	metrics     *PrometheusMetrics

	wg sync.WaitGroup
}

var _ service.Worker = (*Dispatcher)(nil)

func newDispatcher(
	queue *pendingQueue, next http.Handler, maxConcurrent int, taskTimeout time.Duration,
	inFlight *atomic.Int64, errDomain string, logger log.FieldLogger, metrics *PrometheusMetrics,
) *Dispatcher {
	return &Dispatcher{
		queue:       queue,
		next:        next,
		slots:       make(chan struct{}, maxConcurrent),
		inFlight:    inFlight,
		taskTimeout: taskTimeout,
		errDomain:   errDomain,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run implements service.Worker. The loop exits only on context cancellation;
// before returning it fails all still-pending entries and joins all spawned
// tasks, so no accepted request is left without a response.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		log.Int("max_concurrent", cap(d.slots)), log.Duration("task_timeout", d.taskTimeout))
	defer d.logger.Info("dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case <-d.queue.Wake():
		}
		if !d.drain(ctx) {
			d.shutdown()
			return nil
		}
	}
}

// drain claims and dispatches entries until the queue is empty.
// It returns false if the context was canceled while waiting for a free slot.
func (d *Dispatcher) drain(ctx context.Context) bool {
	for {
		select {
		case d.slots <- struct{}{}:
		case <-ctx.Done():
			return false
		}

		entry, ok := d.queue.TryDequeue()
		if !ok {
			<-d.slots
			return true
		}

		d.inFlight.Inc()
		d.metrics.TasksDispatched.Inc()
		d.wg.Add(1)
		go d.runTask(ctx, entry)
	}
}

// shutdown closes the queue, fails whatever is still pending and waits for
// all in-flight tasks to finish.
func (d *Dispatcher) shutdown() {
	remaining := d.queue.Close()
	for _, entry := range remaining {
		d.metrics.Rejects.With(prometheus.Labels{metricsLabelReason: MetricsRejectReasonQueueOverflow}).Inc()
		logger := middleware.GetLoggerFromContext(entry.req.Context())
		respondServiceUnavailable(entry.rw, logger, d.errDomain, ErrCodeQueueOverflow,
			"Service is shutting down.")
		entry.finalize()
	}
	if len(remaining) > 0 {
		d.logger.Info("rejected pending requests on shutdown", log.Int("count", len(remaining)))
	}
	d.wg.Wait()
}

// runTask executes one claimed request under the execution deadline and maps
// the outcome to the response. The in-flight counter is decremented and the
// slot is released unconditionally, whichever exit path is taken.
func (d *Dispatcher) runTask(ctx context.Context, entry *pendingEntry) {
	completedStatus := 0
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			d.logger.Error(fmt.Sprintf("panic while dispatching request: %+v", p), log.Bytes("stack", stack))
			restapi.RespondInternalError(entry.rw, d.errDomain, d.logger)
			entry.finalize()
			completedStatus = http.StatusInternalServerError
		}
		d.inFlight.Dec()
		<-d.slots
		d.metrics.TasksCompleted.With(prometheus.Labels{metricsLabelStatus: strconv.Itoa(completedStatus)}).Inc()
		d.wg.Done()
	}()

	taskCtx, cancel := context.WithTimeout(ctx, d.taskTimeout)
	defer cancel()

	// The downstream handler writes into a buffer, never into the real
	// response writer: if the deadline fires first, the buffered response is
	// discarded and the abandoned handler cannot race the timeout response.
	rec := newBufferedResponseWriter()
	handlerDone := make(chan struct{})
	handlerPanicked := false
	go func() {
		defer func() {
			if p := recover(); p != nil {
				const logStackSize = 8192
				stack := make([]byte, logStackSize)
				stack = stack[:runtime.Stack(stack, false)]
				d.logger.Error(fmt.Sprintf("panic in request handler: %+v", p), log.Bytes("stack", stack))
				handlerPanicked = true
			}
			close(handlerDone)
		}()
		d.next.ServeHTTP(rec, entry.req.WithContext(taskCtx))
	}()

	logger := middleware.GetLoggerFromContext(entry.req.Context())

	select {
	case <-handlerDone:
		if handlerPanicked {
			restapi.RespondInternalError(entry.rw, d.errDomain, logger)
			completedStatus = http.StatusInternalServerError
			break
		}
		completedStatus = rec.WriteTo(entry.rw, logger)
	case <-taskCtx.Done():
		// Cancel the wait, not the work: the handler goroutine may still be
		// running, but its result is no longer observed. The derived context
		// asks it to stop; a handler without cooperative cancellation is
		// abandoned.
		d.metrics.Rejects.With(prometheus.Labels{metricsLabelReason: MetricsRejectReasonExecutionTimeout}).Inc()
		respondServiceUnavailable(entry.rw, logger, d.errDomain, ErrCodeExecutionTimeout,
			"Request execution deadline exceeded.")
		completedStatus = http.StatusServiceUnavailable
	}

	entry.finalize()
}
