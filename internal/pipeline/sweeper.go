/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"context"
	"time"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/service"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweeper evicts and fails pending requests that waited in the queue longer
// than the staleness threshold. It runs independently of the admission
// handler and the dispatcher, so queue residency stays bounded even when the
// dispatcher cannot keep up.
//
// A single Run performs one sweep; the sweeper is driven by
// service.PeriodicWorker.
type Sweeper struct {
	queue      *pendingQueue
	staleAfter time.Duration
	errDomain  string
	logger     log.FieldLogger
	metrics    *PrometheusMetrics
}

var _ service.Worker = (*Sweeper)(nil)

// Run implements service.Worker. It claims all stale entries in one atomic
// queue replacement and fails each of them with an overload signal.
func (s *Sweeper) Run(_ context.Context) error {
	expired := s.queue.EvictExpired(s.staleAfter, time.Now())
	if len(expired) == 0 {
		return nil
	}

	for _, entry := range expired {
		s.metrics.Rejects.With(prometheus.Labels{metricsLabelReason: MetricsRejectReasonStaleInQueue}).Inc()
		logger := middleware.GetLoggerFromContext(entry.req.Context())
		respondServiceUnavailable(entry.rw, logger, s.errDomain, ErrCodeStaleInQueue,
			"Request waited in queue too long.")
		entry.finalize()
	}

	s.logger.Info("evicted stale pending requests",
		log.Int("count", len(expired)), log.Duration("stale_after", s.staleAfter))
	return nil
}
