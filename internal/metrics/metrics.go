// Package metrics is the Conductor's Prometheus-style metrics registry.
// It owns its own prometheus.Registry (not a shared/global one) so the
// Conductor can be embedded without clobbering another process's default
// registry, exposed over HTTP via promhttp in internal/admin's server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric named in the spec plus the supplemented
// ones called out in SPEC_FULL.md, registered against a dedicated
// prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	RoutingRequestsTotal  *prometheus.CounterVec
	RoutingDLQSize        prometheus.Gauge
	RoutingLatencySeconds *prometheus.HistogramVec

	IsolationExecutionDurationMS *prometheus.GaugeVec

	PluginFailureTotal *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec

	HealthCheckTotal           *prometheus.CounterVec
	HealthCheckDurationSeconds *prometheus.HistogramVec

	SystemResourcesPercent *prometheus.GaugeVec

	// Supplemented metrics (SPEC_FULL.md "Supplemented features"); none of
	// them is ported from original_source/.
	ScalerPredictionErrorPercent prometheus.Gauge
	RefusalTotal                *prometheus.CounterVec
	ResourceAnomalyTotal        *prometheus.CounterVec
}

// New builds a Registry with every metric registered and ready to record.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,

		RoutingRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_requests_total",
			Help: "Total requests routed, by plugin and outcome status.",
		}, []string{"plugin", "status"}),

		RoutingDLQSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "routing_dlq_size",
			Help: "Current number of entries pending in the dead-letter queue.",
		}),

		RoutingLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routing_latency_seconds",
			Help:    "End-to-end routing latency per plugin.",
			Buckets: prometheus.DefBuckets,
		}, []string{"plugin"}),

		IsolationExecutionDurationMS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "isolation_execution_duration_ms",
			Help: "Most recent isolated plugin execution wall-clock duration in milliseconds.",
		}, []string{"plugin"}),

		PluginFailureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plugin_failure_total",
			Help: "Total plugin failures, by platform and error type.",
		}, []string{"platform", "error_type"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per platform: 0=closed, 1=open, 2=half-open.",
		}, []string{"platform"}),

		HealthCheckTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_check_total",
			Help: "Total health checks performed, by platform and status.",
		}, []string{"platform", "status"}),

		HealthCheckDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "health_check_duration_seconds",
			Help:    "Health check duration per platform.",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"platform"}),

		SystemResourcesPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_resources_percent",
			Help: "Current system resource utilization percent, by resource.",
		}, []string{"resource"}),

		ScalerPredictionErrorPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scaler_prediction_error_percent",
			Help: "Absolute difference between the scaler's last forecast and the observed value.",
		}),

		RefusalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refusal_total",
			Help: "Total requests refused, by category.",
		}, []string{"category"}),

		ResourceAnomalyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resource_anomaly_total",
			Help: "Total resource anomalies detected, by resource.",
		}, []string{"resource"}),
	}

	reg.MustRegister(
		m.RoutingRequestsTotal,
		m.RoutingDLQSize,
		m.RoutingLatencySeconds,
		m.IsolationExecutionDurationMS,
		m.PluginFailureTotal,
		m.CircuitBreakerState,
		m.HealthCheckTotal,
		m.HealthCheckDurationSeconds,
		m.SystemResourcesPercent,
		m.ScalerPredictionErrorPercent,
		m.RefusalTotal,
		m.ResourceAnomalyTotal,
	)

	return m
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// RecordRoute records a completed routing attempt.
func (m *Registry) RecordRoute(plugin, status string, latencySeconds float64) {
	m.RoutingRequestsTotal.WithLabelValues(plugin, status).Inc()
	m.RoutingLatencySeconds.WithLabelValues(plugin).Observe(latencySeconds)
}

// SetDLQSize updates the current DLQ depth gauge.
func (m *Registry) SetDLQSize(n int) {
	m.RoutingDLQSize.Set(float64(n))
}

// RecordIsolationExecution records an isolated execution's duration.
func (m *Registry) RecordIsolationExecution(plugin string, durationMS float64) {
	m.IsolationExecutionDurationMS.WithLabelValues(plugin).Set(durationMS)
}

// RecordPluginFailure increments the plugin failure counter.
func (m *Registry) RecordPluginFailure(platform, errorType string) {
	m.PluginFailureTotal.WithLabelValues(platform, errorType).Inc()
}

// SetCircuitBreakerState records a platform's circuit breaker numeric state.
func (m *Registry) SetCircuitBreakerState(platform string, state float64) {
	m.CircuitBreakerState.WithLabelValues(platform).Set(state)
}

// RecordHealthCheck records a completed health check.
func (m *Registry) RecordHealthCheck(platform, status string, durationSeconds float64) {
	m.HealthCheckTotal.WithLabelValues(platform, status).Inc()
	m.HealthCheckDurationSeconds.WithLabelValues(platform).Observe(durationSeconds)
}

// SetSystemResourcePercent updates a resource utilization gauge.
func (m *Registry) SetSystemResourcePercent(resource string, pct float64) {
	m.SystemResourcesPercent.WithLabelValues(resource).Set(pct)
}

// SetScalerPredictionError records the scaler's last forecast error.
func (m *Registry) SetScalerPredictionError(errPct float64) {
	m.ScalerPredictionErrorPercent.Set(errPct)
}

// RecordRefusal increments the refusal counter for a category.
func (m *Registry) RecordRefusal(category string) {
	m.RefusalTotal.WithLabelValues(category).Inc()
}

// RecordResourceAnomaly increments the anomaly counter for a resource.
func (m *Registry) RecordResourceAnomaly(resource string) {
	m.ResourceAnomalyTotal.WithLabelValues(resource).Inc()
}
