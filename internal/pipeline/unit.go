/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"sync"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/service"
)

// ServerUnit bundles the HTTP server unit with the pipeline's dispatcher and
// sweeper loops into a single service.Unit with idempotent lifecycle:
// Start while already running is a no-op, and Stop is safe to call multiple
// times. Graceful Stop joins both loops and all in-flight tasks before
// returning, so no pending request or task outlives the unit.
type ServerUnit struct {
	pipeline       *Pipeline
	httpUnit       service.Unit
	dispatcherUnit *service.WorkerUnit
	sweeperUnit    *service.WorkerUnit

	mu      sync.Mutex
	started bool
	stopped bool
}

var _ service.Unit = (*ServerUnit)(nil)
var _ service.MetricsRegisterer = (*ServerUnit)(nil)

// NewServerUnit creates a new ServerUnit. httpUnit is the unit serving the
// routes on which the pipeline's admission handler is mounted.
func NewServerUnit(p *Pipeline, httpUnit service.Unit, logger log.FieldLogger) *ServerUnit {
	return &ServerUnit{
		pipeline:       p,
		httpUnit:       httpUnit,
		dispatcherUnit: service.NewWorkerUnit(p.dispatcher),
		sweeperUnit:    service.NewWorkerUnit(service.NewPeriodicWorker(p.sweeper, p.sweepInterval, logger)),
	}
}

// Start implements service.Unit. It launches the dispatcher, the sweeper and
// the HTTP server, and blocks until all of them return. Calling Start while
// the unit is already running or after it has been stopped is a no-op.
func (u *ServerUnit) Start(fatalError chan<- error) {
	u.mu.Lock()
	if u.started || u.stopped {
		u.mu.Unlock()
		return
	}
	u.started = true
	u.mu.Unlock()

	service.NewCompositeUnit(u.dispatcherUnit, u.sweeperUnit, u.httpUnit).Start(fatalError)
}

// Stop implements service.Unit. The HTTP server stops first so that no new
// requests are admitted; the dispatcher and the sweeper keep draining the
// queue until every already-admitted request is responded to, and only then
// are joined.
func (u *ServerUnit) Stop(gracefully bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.started || u.stopped {
		return nil
	}
	u.stopped = true

	var errs []error
	if err := u.httpUnit.Stop(gracefully); err != nil {
		errs = append(errs, err)
	}
	if err := u.sweeperUnit.Stop(gracefully); err != nil {
		errs = append(errs, err)
	}
	if err := u.dispatcherUnit.Stop(gracefully); err != nil {
		errs = append(errs, err)
	}
	if len(errs) != 0 {
		return &service.CompositeUnitError{UnitErrors: errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of the pipeline and of the underlying
// HTTP unit in Prometheus client and panics if any error occurs.
func (u *ServerUnit) MustRegisterMetrics() {
	u.pipeline.MustRegisterMetrics()
	if mr, ok := u.httpUnit.(service.MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
	}
}

// UnregisterMetrics unregisters metrics of the pipeline and of the underlying
// HTTP unit in Prometheus client.
func (u *ServerUnit) UnregisterMetrics() {
	u.pipeline.UnregisterMetrics()
	if mr, ok := u.httpUnit.(service.MetricsRegisterer); ok {
		mr.UnregisterMetrics()
	}
}
