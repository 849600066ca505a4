// Package metrics exposes workflow execution metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flowrun"

// Metrics records execution outcomes. It implements engine.Hook.
type Metrics struct {
	registry *prometheus.Registry

	executions     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	actionAttempts *prometheus.CounterVec
	actionResults  *prometheus.CounterVec
	skipped        *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Recorded workflow executions by terminal status.",
		}, []string{"workflow_id", "status", "triggered_by"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Duration of recorded workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"workflow_id"}),
		actionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_attempts_total",
			Help:      "Action handler attempts, retries included.",
		}, []string{"action_type"}),
		actionResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_results_total",
			Help:      "Action outcomes after retries.",
		}, []string{"action_type", "success"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_skips_total",
			Help:      "Executions skipped before any action ran.",
		}, []string{"workflow_id", "reason"}),
	}

	m.registry.MustRegister(m.executions, m.duration, m.actionAttempts, m.actionResults, m.skipped)

	return m
}

// OnExecutionCompleted records a sealed execution.
func (m *Metrics) OnExecutionCompleted(_ context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) error {
	m.executions.WithLabelValues(workflow.ID, string(execution.Status), string(execution.TriggeredBy)).Inc()
	m.duration.WithLabelValues(workflow.ID).Observe(float64(execution.DurationMs) / 1000)

	for _, outcome := range execution.ActionResults {
		m.actionAttempts.WithLabelValues(outcome.Type).Add(float64(outcome.Attempts))

		success := "false"
		if outcome.Success {
			success = "true"
		}

		m.actionResults.WithLabelValues(outcome.Type, success).Inc()
	}

	return nil
}

// ObserveSkip counts a run that stopped at the trigger or condition stage.
func (m *Metrics) ObserveSkip(workflowID, reason string) {
	m.skipped.WithLabelValues(workflowID, reason).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
