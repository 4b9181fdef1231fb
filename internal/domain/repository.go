package domain

import (
	"context"
	"time"
)

// ModelFilter 模型查询条件
type ModelFilter struct {
	ProviderID string
	Capability string
	OnlyActive bool
}

// ProviderRepository 提供商仓储接口
type ProviderRepository interface {
	Create(ctx context.Context, provider *Provider) error
	GetByID(ctx context.Context, id string) (*Provider, error)
	Update(ctx context.Context, provider *Provider) error
	// Delete 软删除；被调用记录引用的配置永不硬删
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*Provider, error)
}

// ModelRepository 模型仓储接口
type ModelRepository interface {
	Create(ctx context.Context, model *Model) error
	GetByID(ctx context.Context, id string) (*Model, error)
	Update(ctx context.Context, model *Model) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ModelFilter) ([]*Model, error)
}

// GroupRepository 模型组仓储接口，权重随组整体读写
type GroupRepository interface {
	Create(ctx context.Context, group *ModelGroup) error
	GetByID(ctx context.Context, id string) (*ModelGroup, error)
	Update(ctx context.Context, group *ModelGroup) error
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*ModelGroup, error)
}

// CallRecordFilter 调用记录查询条件
type CallRecordFilter struct {
	ModelID   string
	SubjectID string
	Since     time.Time
}

// CallRecordRepository 调用记录仓储接口（只追加）
type CallRecordRepository interface {
	Append(ctx context.Context, record *CallRecord) error
	List(ctx context.Context, filter CallRecordFilter, offset, limit int) ([]*CallRecord, int64, error)
	// SummarizeDay 按模型汇总一天的调用记录，供性能日报
	SummarizeDay(ctx context.Context, modelID string, day time.Time) (*ModelPerformance, error)
}

// QuotaConfigRepository 配额限制配置（慢路径，持久化）
type QuotaConfigRepository interface {
	GetBySubject(ctx context.Context, subjectID string) (*Quota, error)
	Save(ctx context.Context, quota *Quota) error
	ListSubjects(ctx context.Context) ([]string, error)
}

// QuotaUsageStore 配额用量计数器（快路径）。
// AddUsage 必须是单个原子操作：同一 subject+period 的并发提交不允许丢失更新。
type QuotaUsageStore interface {
	GetUsage(ctx context.Context, subjectID string, periodStart time.Time) (Usage, error)
	AddUsage(ctx context.Context, subjectID string, periodStart time.Time, delta Usage) (Usage, error)
	ResetUsage(ctx context.Context, subjectID string, periodStart time.Time) error
}

// HealthSnapshotRepository 健康快照存取（观测用，非决策路径）
type HealthSnapshotRepository interface {
	Save(ctx context.Context, status *HealthStatus) error
	Get(ctx context.Context, modelID string) (*HealthStatus, error)
}

// PerformanceRepository 性能日统计仓储接口
type PerformanceRepository interface {
	Upsert(ctx context.Context, perf *ModelPerformance) error
	GetByModelAndDate(ctx context.Context, modelID string, day time.Time) (*ModelPerformance, error)
}
