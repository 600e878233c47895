/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import "github.com/prometheus/client_golang/prometheus"

// DefaultMetricsNamespace is a default namespace for the pipeline metrics.
const DefaultMetricsNamespace = "cropd_pipeline"

const (
	metricsLabelReason = "reason"
	metricsLabelStatus = "status"
)

// Reject reasons used as the "reason" label of the rejects counter.
const (
	MetricsRejectReasonQueueOverflow    = "queue_overflow"
	MetricsRejectReasonStaleInQueue     = "stale_in_queue"
	MetricsRejectReasonExecutionTimeout = "execution_timeout"
)

// PrometheusMetrics represents collector of the pipeline metrics.
type PrometheusMetrics struct {
	QueueLength     prometheus.GaugeFunc
	InFlightTasks   prometheus.GaugeFunc
	Rejects         *prometheus.CounterVec
	TasksDispatched prometheus.Counter
	TasksCompleted  *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
// queueLength and inFlightTasks are read on every scrape.
func NewPrometheusMetrics(namespace string, queueLength func() int, inFlightTasks func() int64) *PrometheusMetrics {
	return &PrometheusMetrics{
		QueueLength: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Number of requests waiting in the pending queue.",
		}, func() float64 { return float64(queueLength()) }),
		InFlightTasks: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_tasks",
			Help:      "Number of requests currently being executed.",
		}, func() float64 { return float64(inFlightTasks()) }),
		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_total",
			Help:      "Number of requests rejected with an overload signal.",
		}, []string{metricsLabelReason}),
		TasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Number of requests claimed from the pending queue for execution.",
		}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Number of finished request tasks by response status code.",
		}, []string{metricsLabelStatus}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.QueueLength,
		pm.InFlightTasks,
		pm.Rejects,
		pm.TasksDispatched,
		pm.TasksCompleted,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.QueueLength)
	prometheus.Unregister(pm.InFlightTasks)
	prometheus.Unregister(pm.Rejects)
	prometheus.Unregister(pm.TasksDispatched)
	prometheus.Unregister(pm.TasksCompleted)
}
