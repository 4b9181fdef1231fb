package domain

import "time"

// HealthState 模型健康状态
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"   // 正常
	HealthStateDegraded  HealthState = "degraded"  // 降级
	HealthStateUnhealthy HealthState = "unhealthy" // 不可用
)

// HealthStatus 模型健康快照（滚动窗口的派生结果）
type HealthStatus struct {
	ModelID              string      `json:"model_id"`
	State                HealthState `json:"state"`
	SuccessRate          float64     `json:"success_rate"`
	AvgLatencyMs         float64     `json:"avg_latency_ms"`
	ConsecutiveFailures  int         `json:"consecutive_failures"`
	ConsecutiveSuccesses int         `json:"consecutive_successes"`
	WindowSize           int         `json:"window_size"`
	LastObservedAt       time.Time   `json:"last_observed_at"`
}

// Observation 一次调用结果的健康观测
type Observation struct {
	Success    bool
	LatencyMs  int64
	ObservedAt time.Time
}
