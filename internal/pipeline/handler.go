/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"net/http"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"

	"github.com/prometheus/client_golang/prometheus"
)

// Error codes used in 503 response bodies. From the caller's perspective all
// three are the same overload signal with the same remediation: back off and
// retry later.
const (
	ErrCodeQueueOverflow    = "queueOverflow"
	ErrCodeStaleInQueue     = "staleInQueue"
	ErrCodeExecutionTimeout = "executionTimeout"
)

// admissionHandler decides synchronously, per inbound request, whether the
// request is admitted into the pending queue or rejected with an overload
// signal. It never blocks the dispatcher or the sweeper: the admission
// decision needs only a point-in-time queue size read.
type admissionHandler struct {
	queue      *pendingQueue
	queueLimit int
	errDomain  string
	metrics    *PrometheusMetrics
}

// ServeHTTP implements http.Handler. An admitted request blocks here until
// the dispatcher or the sweeper finalizes its response, so the response
// writer never outlives this call.
func (h *admissionHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	if h.queue.Len() >= h.queueLimit {
		h.metrics.Rejects.With(prometheus.Labels{metricsLabelReason: MetricsRejectReasonQueueOverflow}).Inc()
		respondServiceUnavailable(rw, logger, h.errDomain, ErrCodeQueueOverflow,
			"Too many pending requests.")
		return
	}

	entry := newPendingEntry(rw, r)
	if !h.queue.Enqueue(entry) {
		// The queue is closed for shutdown: reject instead of buffering.
		h.metrics.Rejects.With(prometheus.Labels{metricsLabelReason: MetricsRejectReasonQueueOverflow}).Inc()
		respondServiceUnavailable(rw, logger, h.errDomain, ErrCodeQueueOverflow,
			"Service is shutting down.")
		return
	}

	<-entry.done
}

func respondServiceUnavailable(rw http.ResponseWriter, logger log.FieldLogger, errDomain, code, message string) {
	restapi.RespondError(rw, http.StatusServiceUnavailable, restapi.NewError(errDomain, code, message), logger)
}
