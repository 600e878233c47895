/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

// Package pipeline implements the admission-control and concurrency pipeline
// of the service: a bounded pending queue in front of a capped pool of
// request tasks, with periodic eviction of stale queued requests and a
// per-request execution deadline. A slow or overloaded backend degrades by
// rejecting excess work with 503 rather than buffering it unboundedly.
//
// Admission (HTTP handler), eviction (Sweeper) and execution (Dispatcher)
// are independent loops that share only the pending queue and the atomic
// in-flight counter, so an overload on any one axis degrades gracefully
// without coordinating through a single choke point.
package pipeline

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-appkit/log"
	"go.uber.org/atomic"
)

// Pipeline owns the pending queue, the in-flight counter and the loops that
// operate on them. The queue and the counter are created here and passed into
// each loop at construction; there is no ambient shared state.
type Pipeline struct {
	queue    *pendingQueue
	inFlight *atomic.Int64

	dispatcher *Dispatcher
	sweeper    *Sweeper
	handler    *admissionHandler
	metrics    *PrometheusMetrics

	sweepInterval time.Duration
}

// New creates a new Pipeline that executes admitted requests with the next
// handler. If cfg is nil, default configuration values are used.
func New(cfg *Config, next http.Handler, errDomain string, logger log.FieldLogger) (*Pipeline, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if cfg.Queue.Limit <= 0 {
		return nil, fmt.Errorf("queue limit should be positive, got %d", cfg.Queue.Limit)
	}
	if cfg.Worker.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent should be positive, got %d", cfg.Worker.MaxConcurrent)
	}
	if time.Duration(cfg.Queue.StaleAfter) <= 0 {
		return nil, fmt.Errorf("stale after should be positive, got %s", time.Duration(cfg.Queue.StaleAfter))
	}
	if time.Duration(cfg.Queue.SweepInterval) <= 0 {
		return nil, fmt.Errorf("sweep interval should be positive, got %s", time.Duration(cfg.Queue.SweepInterval))
	}
	if time.Duration(cfg.Worker.TaskTimeout) <= 0 {
		return nil, fmt.Errorf("task timeout should be positive, got %s", time.Duration(cfg.Worker.TaskTimeout))
	}

	queue := newPendingQueue()
	inFlight := atomic.NewInt64(0)
	metrics := NewPrometheusMetrics(DefaultMetricsNamespace, queue.Len, inFlight.Load)

	return &Pipeline{
		queue:    queue,
		inFlight: inFlight,
		dispatcher: newDispatcher(queue, next, cfg.Worker.MaxConcurrent, time.Duration(cfg.Worker.TaskTimeout),
			inFlight, errDomain, logger, metrics),
		sweeper: &Sweeper{
			queue:      queue,
			staleAfter: time.Duration(cfg.Queue.StaleAfter),
			errDomain:  errDomain,
			logger:     logger,
			metrics:    metrics,
		},
		handler: &admissionHandler{
			queue:      queue,
			queueLimit: cfg.Queue.Limit,
			errDomain:  errDomain,
			metrics:    metrics,
		},
		metrics:       metrics,
		sweepInterval: time.Duration(cfg.Queue.SweepInterval),
	}, nil
}

// Handler returns the admission handler. Mount it on the route whose requests
// should go through the pipeline.
func (p *Pipeline) Handler() http.Handler {
	return p.handler
}

// QueueLength returns the current number of pending requests.
func (p *Pipeline) QueueLength() int {
	return p.queue.Len()
}

// InFlightCount returns the current number of requests being executed.
func (p *Pipeline) InFlightCount() int64 {
	return p.inFlight.Load()
}

// MustRegisterMetrics registers the pipeline metrics in Prometheus client
// and panics if any error occurs.
func (p *Pipeline) MustRegisterMetrics() {
	p.metrics.MustRegister()
}

// UnregisterMetrics unregisters the pipeline metrics in Prometheus client.
func (p *Pipeline) UnregisterMetrics() {
	p.metrics.Unregister()
}
