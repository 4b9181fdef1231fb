package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics 网关Prometheus指标
type GatewayMetrics struct {
	InvocationsTotal *prometheus.CounterVec
	InvocationErrors *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	TokensTotal      *prometheus.CounterVec
	CostTotal        *prometheus.CounterVec
	QuotaDenials     *prometheus.CounterVec
	HealthState      *prometheus.GaugeVec
	FailoverTotal    *prometheus.CounterVec
}

// NewGatewayMetrics 创建并注册网关指标
func NewGatewayMetrics() *GatewayMetrics {
	return &GatewayMetrics{
		InvocationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "invocations_total",
			Help:      "Total model invocations by model and outcome",
		}, []string{"model_id", "outcome"}),

		InvocationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "invocation_errors_total",
			Help:      "Total invocation errors by model and error kind",
		}, []string{"model_id", "kind"}),

		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "invocation_duration_seconds",
			Help:      "Invocation latency distribution",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model_id"}),

		InFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "inflight_invocations",
			Help:      "Currently in-flight invocations per model",
		}, []string{"model_id"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "tokens_total",
			Help:      "Total tokens consumed by model and direction",
		}, []string{"model_id", "direction"}),

		CostTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "cost_usd_total",
			Help:      "Accumulated invocation cost in USD",
		}, []string{"model_id"}),

		QuotaDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "quota_denials_total",
			Help:      "Quota admission denials by subject and reason",
		}, []string{"subject_id", "reason"}),

		HealthState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "model_health_state",
			Help:      "Model health state (2 healthy, 1 degraded, 0 unhealthy)",
		}, []string{"model_id"}),

		FailoverTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcs",
			Subsystem: "model_gateway",
			Name:      "failover_total",
			Help:      "Failover attempts by group",
		}, []string{"group_id"}),
	}
}

// ObserveInvocation 记录一次调用结果
func (m *GatewayMetrics) ObserveInvocation(modelID string, success bool, kind string, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
		m.InvocationErrors.WithLabelValues(modelID, kind).Inc()
	}
	m.InvocationsTotal.WithLabelValues(modelID, outcome).Inc()
	m.Duration.WithLabelValues(modelID).Observe(duration.Seconds())
}

// ObserveTokens 记录Token消耗与成本
func (m *GatewayMetrics) ObserveTokens(modelID string, inputTokens, outputTokens int, cost float64) {
	m.TokensTotal.WithLabelValues(modelID, "input").Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues(modelID, "output").Add(float64(outputTokens))
	m.CostTotal.WithLabelValues(modelID).Add(cost)
}
