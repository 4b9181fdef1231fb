package biz

import (
	"context"
	"sync"
	"time"

	"smartcs/internal/conf"
	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// modelHealth 单模型的滚动窗口状态
type modelHealth struct {
	window               []domain.Observation
	state                domain.HealthState
	consecutiveFailures  int
	consecutiveSuccesses int
	lastObservedAt       time.Time
}

// HealthMonitor 模型健康监控。
// 每个模型维护一个按条数和时长双重截断的观测窗口，
// 状态降级立即生效，恢复逐级爬升。
type HealthMonitor struct {
	cfg       conf.HealthConfig
	snapshots domain.HealthSnapshotRepository
	clock     func() time.Time

	mu     sync.RWMutex
	models map[string]*modelHealth

	log *log.Helper
}

// NewHealthMonitor 创建健康监控
func NewHealthMonitor(cfg conf.HealthConfig, snapshots domain.HealthSnapshotRepository, logger log.Logger) *HealthMonitor {
	return &HealthMonitor{
		cfg:       cfg,
		snapshots: snapshots,
		clock:     time.Now,
		models:    make(map[string]*modelHealth),
		log:       log.NewHelper(logger),
	}
}

// SetClock 注入时钟（测试用）
func (m *HealthMonitor) SetClock(clock func() time.Time) {
	m.clock = clock
}

// Record 记录一次调用观测并重新评估状态
func (m *HealthMonitor) Record(modelID string, obs domain.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mh := m.models[modelID]
	if mh == nil {
		mh = &modelHealth{state: domain.HealthStateHealthy}
		m.models[modelID] = mh
	}

	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = m.clock()
	}
	mh.window = append(mh.window, obs)
	mh.lastObservedAt = obs.ObservedAt
	m.trimWindow(mh)

	if obs.Success {
		mh.consecutiveFailures = 0
		mh.consecutiveSuccesses++
	} else {
		mh.consecutiveSuccesses = 0
		mh.consecutiveFailures++
	}

	m.evaluate(modelID, mh)
}

// trimWindow 按条数和时长截断窗口
func (m *HealthMonitor) trimWindow(mh *modelHealth) {
	if len(mh.window) > m.cfg.WindowSize {
		mh.window = mh.window[len(mh.window)-m.cfg.WindowSize:]
	}
	cutoff := m.clock().Add(-m.cfg.WindowAge)
	idx := 0
	for idx < len(mh.window) && mh.window[idx].ObservedAt.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		mh.window = mh.window[idx:]
	}
}

// windowMetrics 计算窗口内成功率与平均延迟
func windowMetrics(window []domain.Observation) (successRate, avgLatencyMs float64) {
	if len(window) == 0 {
		return 1.0, 0
	}
	var successes int
	var totalLatency int64
	for _, obs := range window {
		if obs.Success {
			successes++
		}
		totalLatency += obs.LatencyMs
	}
	successRate = float64(successes) / float64(len(window))
	avgLatencyMs = float64(totalLatency) / float64(len(window))
	return successRate, avgLatencyMs
}

// observedState 窗口观测对应的状态级别。
// 样本不足最少观测数时比率和延迟阈值不参与评判，
// 避免单次失败把模型直接打下去。
func (m *HealthMonitor) observedState(mh *modelHealth) domain.HealthState {
	if mh.consecutiveFailures >= m.cfg.UnhealthyFailures {
		return domain.HealthStateUnhealthy
	}
	if len(mh.window) < m.cfg.MinObservations {
		return domain.HealthStateHealthy
	}

	successRate, avgLatency := windowMetrics(mh.window)
	if successRate < m.cfg.UnhealthySuccessRate {
		return domain.HealthStateUnhealthy
	}
	if successRate < m.cfg.DegradedSuccessRate || avgLatency > m.cfg.LatencySLAMs {
		return domain.HealthStateDegraded
	}
	return domain.HealthStateHealthy
}

// evaluate 状态机：恶化立即降级，好转每 M 次连续成功爬升一级。
// 爬升时清空窗口，陈旧的失败不再立即把状态打回去。
func (m *HealthMonitor) evaluate(modelID string, mh *modelHealth) {
	observed := m.observedState(mh)
	current := mh.state

	if healthRank(observed) < healthRank(current) {
		// 立即降级
		m.log.Warnf("model %s health: %s -> %s", modelID, current, observed)
		mh.state = observed
		mh.consecutiveSuccesses = 0
		return
	}

	if current != domain.HealthStateHealthy && mh.consecutiveSuccesses >= m.cfg.RecoveryClimb {
		next := climbOne(current)
		m.log.Infof("model %s health: %s -> %s", modelID, current, next)
		mh.state = next
		mh.consecutiveSuccesses = 0
		mh.window = mh.window[:0]
	}
}

// healthRank 状态排序，越大越健康
func healthRank(s domain.HealthState) int {
	switch s {
	case domain.HealthStateHealthy:
		return 2
	case domain.HealthStateDegraded:
		return 1
	default:
		return 0
	}
}

// climbOne 爬升一级
func climbOne(s domain.HealthState) domain.HealthState {
	switch s {
	case domain.HealthStateUnhealthy:
		return domain.HealthStateDegraded
	default:
		return domain.HealthStateHealthy
	}
}

// StateOf 当前状态，无观测视为健康
func (m *HealthMonitor) StateOf(modelID string) domain.HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if mh, ok := m.models[modelID]; ok {
		return mh.state
	}
	return domain.HealthStateHealthy
}

// IsEligible 是否可参与选择（不可用状态被排除）
func (m *HealthMonitor) IsEligible(modelID string) bool {
	return m.StateOf(modelID) != domain.HealthStateUnhealthy
}

// Status 模型健康快照
func (m *HealthMonitor) Status(modelID string) *domain.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mh, ok := m.models[modelID]
	if !ok {
		return &domain.HealthStatus{
			ModelID:     modelID,
			State:       domain.HealthStateHealthy,
			SuccessRate: 1.0,
		}
	}

	successRate, avgLatency := windowMetrics(mh.window)
	return &domain.HealthStatus{
		ModelID:              modelID,
		State:                mh.state,
		SuccessRate:          successRate,
		AvgLatencyMs:         avgLatency,
		ConsecutiveFailures:  mh.consecutiveFailures,
		ConsecutiveSuccesses: mh.consecutiveSuccesses,
		WindowSize:           len(mh.window),
		LastObservedAt:       mh.lastObservedAt,
	}
}

// AvgLatency 窗口平均延迟，响应时间优先策略使用
func (m *HealthMonitor) AvgLatency(modelID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if mh, ok := m.models[modelID]; ok {
		_, avgLatency := windowMetrics(mh.window)
		return avgLatency
	}
	return 0
}

// ModelsNeedingProbe 需要主动探测的模型（降级或不可用）
func (m *HealthMonitor) ModelsNeedingProbe() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0)
	for id, mh := range m.models {
		if mh.state != domain.HealthStateHealthy {
			ids = append(ids, id)
		}
	}
	return ids
}

// SaveSnapshots 持久化所有模型的健康快照（观测用）
func (m *HealthMonitor) SaveSnapshots(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.models))
	for id := range m.models {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.snapshots.Save(ctx, m.Status(id)); err != nil {
			m.log.Warnf("failed to save health snapshot for %s: %v", id, err)
		}
	}
}
