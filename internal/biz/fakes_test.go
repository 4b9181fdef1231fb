package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smartcs/internal/adapter"
	"smartcs/internal/domain"
)

// fakeProviderRepo 内存提供商仓储
type fakeProviderRepo struct {
	mu        sync.RWMutex
	providers map[string]*domain.Provider
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{providers: make(map[string]*domain.Provider)}
}

func (r *fakeProviderRepo) Create(_ context.Context, p *domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
	return nil
}

func (r *fakeProviderRepo) GetByID(_ context.Context, id string) (*domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrProviderNotFound
}

func (r *fakeProviderRepo) Update(_ context.Context, p *domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID]; !ok {
		return domain.ErrProviderNotFound
	}
	r.providers[p.ID] = p
	return nil
}

func (r *fakeProviderRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
	return nil
}

func (r *fakeProviderRepo) ListAll(_ context.Context) ([]*domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// fakeModelRepo 内存模型仓储
type fakeModelRepo struct {
	mu     sync.RWMutex
	models map[string]*domain.Model
}

func newFakeModelRepo() *fakeModelRepo {
	return &fakeModelRepo{models: make(map[string]*domain.Model)}
}

func (r *fakeModelRepo) Create(_ context.Context, m *domain.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID] = m
	return nil
}

func (r *fakeModelRepo) GetByID(_ context.Context, id string) (*domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, domain.ErrModelNotFound
}

func (r *fakeModelRepo) Update(_ context.Context, m *domain.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[m.ID]; !ok {
		return domain.ErrModelNotFound
	}
	r.models[m.ID] = m
	return nil
}

func (r *fakeModelRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, id)
	return nil
}

func (r *fakeModelRepo) List(_ context.Context, filter domain.ModelFilter) ([]*domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Model, 0, len(r.models))
	for _, m := range r.models {
		if filter.ProviderID != "" && m.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Capability != "" && !m.HasCapability(filter.Capability) {
			continue
		}
		if filter.OnlyActive && !m.Active {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// fakeGroupRepo 内存模型组仓储
type fakeGroupRepo struct {
	mu     sync.RWMutex
	groups map[string]*domain.ModelGroup
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: make(map[string]*domain.ModelGroup)}
}

func (r *fakeGroupRepo) Create(_ context.Context, g *domain.ModelGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroupRepo) GetByID(_ context.Context, id string) (*domain.ModelGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.groups[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, domain.ErrGroupNotFound
}

func (r *fakeGroupRepo) Update(_ context.Context, g *domain.ModelGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.ID]; !ok {
		return domain.ErrGroupNotFound
	}
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroupRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
	return nil
}

func (r *fakeGroupRepo) ListAll(_ context.Context) ([]*domain.ModelGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ModelGroup, 0, len(r.groups))
	for _, g := range r.groups {
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

// fakeRecordRepo 内存调用记录仓储
type fakeRecordRepo struct {
	mu      sync.Mutex
	records []*domain.CallRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{}
}

func (r *fakeRecordRepo) Append(_ context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRecordRepo) List(_ context.Context, filter domain.CallRecordFilter, offset, limit int) ([]*domain.CallRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]*domain.CallRecord, 0)
	for _, rec := range r.records {
		if filter.ModelID != "" && rec.ModelID != filter.ModelID {
			continue
		}
		if filter.SubjectID != "" && rec.SubjectID != filter.SubjectID {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		matched = append(matched, rec)
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *fakeRecordRepo) SummarizeDay(_ context.Context, modelID string, day time.Time) (*domain.ModelPerformance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	perf := &domain.ModelPerformance{ModelID: modelID, Date: dayStart}
	var totalLatency int64
	for _, rec := range r.records {
		if rec.ModelID != modelID || rec.Timestamp.Before(dayStart) || !rec.Timestamp.Before(dayEnd) {
			continue
		}
		perf.TotalCalls++
		if rec.Success {
			perf.SuccessfulCalls++
		}
		perf.TotalInputTokens += int64(rec.InputTokens)
		perf.TotalOutputTokens += int64(rec.OutputTokens)
		perf.TotalCost += rec.Cost
		totalLatency += rec.LatencyMs
	}
	if perf.TotalCalls > 0 {
		perf.AvgLatencyMs = float64(totalLatency) / float64(perf.TotalCalls)
	}
	perf.CalculateMetrics()
	return perf, nil
}

func (r *fakeRecordRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *fakeRecordRepo) last() *domain.CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return nil
	}
	return r.records[len(r.records)-1]
}

// fakeQuotaConfigRepo 内存配额配置仓储
type fakeQuotaConfigRepo struct {
	mu     sync.RWMutex
	quotas map[string]*domain.Quota
}

func newFakeQuotaConfigRepo() *fakeQuotaConfigRepo {
	return &fakeQuotaConfigRepo{quotas: make(map[string]*domain.Quota)}
}

func (r *fakeQuotaConfigRepo) GetBySubject(_ context.Context, subjectID string) (*domain.Quota, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if q, ok := r.quotas[subjectID]; ok {
		cp := *q
		return &cp, nil
	}
	return nil, domain.ErrQuotaNotFound
}

func (r *fakeQuotaConfigRepo) Save(_ context.Context, quota *domain.Quota) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotas[quota.SubjectID] = quota
	return nil
}

func (r *fakeQuotaConfigRepo) ListSubjects(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.quotas))
	for id := range r.quotas {
		out = append(out, id)
	}
	return out, nil
}

// fakeUsageStore 内存用量计数器，累加在锁内完成
type fakeUsageStore struct {
	mu    sync.Mutex
	usage map[string]domain.Usage
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{usage: make(map[string]domain.Usage)}
}

func usageKey(subjectID string, periodStart time.Time) string {
	return fmt.Sprintf("%s:%d", subjectID, periodStart.Unix())
}

func (s *fakeUsageStore) GetUsage(_ context.Context, subjectID string, periodStart time.Time) (domain.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[usageKey(subjectID, periodStart)], nil
}

func (s *fakeUsageStore) AddUsage(_ context.Context, subjectID string, periodStart time.Time, delta domain.Usage) (domain.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey(subjectID, periodStart)
	updated := s.usage[key].Add(delta)
	s.usage[key] = updated
	return updated, nil
}

func (s *fakeUsageStore) ResetUsage(_ context.Context, subjectID string, periodStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.usage, usageKey(subjectID, periodStart))
	return nil
}

// fakeSnapshotRepo 内存健康快照仓储
type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[string]*domain.HealthStatus
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{snapshots: make(map[string]*domain.HealthStatus)}
}

func (r *fakeSnapshotRepo) Save(_ context.Context, status *domain.HealthStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[status.ModelID] = status
	return nil
}

func (r *fakeSnapshotRepo) Get(_ context.Context, modelID string) (*domain.HealthStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.snapshots[modelID]; ok {
		return s, nil
	}
	return nil, domain.ErrModelNotFound
}

// fakeClient 脚本化的提供商客户端
type fakeClient struct {
	mu    sync.Mutex
	calls int
	send  func(ctx context.Context, provider *domain.Provider, model *domain.Model, input string, params domain.CallParams) (*adapter.Response, error)
}

func (c *fakeClient) Send(ctx context.Context, provider *domain.Provider, model *domain.Model, input string, params domain.CallParams) (*adapter.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.send(ctx, provider, model, input, params)
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
