package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaPO 配额限制持久化对象
type QuotaPO struct {
	SubjectID string  `gorm:"primaryKey;size:64"`
	Cadence   string  `gorm:"size:20;not null"`
	MaxCalls  int64   `gorm:"not null"`
	MaxTokens int64   `gorm:"not null"`
	MaxCost   float64 `gorm:"type:decimal(12,4);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 表名
func (QuotaPO) TableName() string {
	return "model_gateway.quotas"
}

// QuotaConfigRepository 配额配置仓储实现（慢路径）
type QuotaConfigRepository struct {
	data *Data
	log  *log.Helper
}

// NewQuotaConfigRepo 创建配额配置仓储
func NewQuotaConfigRepo(data *Data, logger log.Logger) domain.QuotaConfigRepository {
	return &QuotaConfigRepository{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetBySubject 获取主体的配额限制
func (r *QuotaConfigRepository) GetBySubject(ctx context.Context, subjectID string) (*domain.Quota, error) {
	var po QuotaPO
	if err := r.data.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrQuotaNotFound
		}
		r.log.Errorf("failed to get quota: %v", err)
		return nil, err
	}

	return &domain.Quota{
		SubjectID: po.SubjectID,
		Cadence:   domain.QuotaCadence(po.Cadence),
		Limits: domain.QuotaLimits{
			MaxCalls:  po.MaxCalls,
			MaxTokens: po.MaxTokens,
			MaxCost:   po.MaxCost,
		},
		UpdatedAt: po.UpdatedAt,
	}, nil
}

// Save 保存配额限制
func (r *QuotaConfigRepository) Save(ctx context.Context, quota *domain.Quota) error {
	po := &QuotaPO{
		SubjectID: quota.SubjectID,
		Cadence:   string(quota.Cadence),
		MaxCalls:  quota.Limits.MaxCalls,
		MaxTokens: quota.Limits.MaxTokens,
		MaxCost:   quota.Limits.MaxCost,
		UpdatedAt: time.Now(),
	}

	if err := r.data.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"cadence", "max_calls", "max_tokens", "max_cost", "updated_at"}),
		}).
		Create(po).Error; err != nil {
		r.log.Errorf("failed to save quota: %v", err)
		return err
	}

	return nil
}

// ListSubjects 列出所有配置了配额的主体
func (r *QuotaConfigRepository) ListSubjects(ctx context.Context) ([]string, error) {
	var subjects []string
	if err := r.data.db.WithContext(ctx).
		Model(&QuotaPO{}).
		Pluck("subject_id", &subjects).Error; err != nil {
		r.log.Errorf("failed to list quota subjects: %v", err)
		return nil, err
	}
	return subjects, nil
}

// usageKeyTTL 用量计数器保留时长，覆盖最长的月度窗口
const usageKeyTTL = 40 * 24 * time.Hour

// QuotaUsageStore 配额用量计数器实现（快路径，Redis哈希）。
// 三个维度存放在同一哈希键下，按窗口起点区分键。
type QuotaUsageStore struct {
	data *Data
	log  *log.Helper
}

// NewQuotaUsageStore 创建配额用量计数器
func NewQuotaUsageStore(data *Data, logger log.Logger) domain.QuotaUsageStore {
	return &QuotaUsageStore{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// usageKey 用量哈希键
func (s *QuotaUsageStore) usageKey(subjectID string, periodStart time.Time) string {
	return fmt.Sprintf("quota:usage:%s:%d", subjectID, periodStart.UTC().Unix())
}

// GetUsage 读取当前窗口用量
func (s *QuotaUsageStore) GetUsage(ctx context.Context, subjectID string, periodStart time.Time) (domain.Usage, error) {
	fields, err := s.data.redis.HGetAll(ctx, s.usageKey(subjectID, periodStart)).Result()
	if err != nil {
		s.log.Errorf("failed to get usage: %v", err)
		return domain.Usage{}, err
	}

	var usage domain.Usage
	if v, ok := fields["calls"]; ok {
		usage.Calls, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["tokens"]; ok {
		usage.Tokens, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["cost"]; ok {
		usage.Cost, _ = strconv.ParseFloat(v, 64)
	}
	return usage, nil
}

// AddUsage 原子累加用量并返回新值。三个维度在一个 MULTI/EXEC
// 事务内提交，并发累加不会丢失更新。
func (s *QuotaUsageStore) AddUsage(ctx context.Context, subjectID string, periodStart time.Time, delta domain.Usage) (domain.Usage, error) {
	key := s.usageKey(subjectID, periodStart)

	pipe := s.data.redis.TxPipeline()
	callsCmd := pipe.HIncrBy(ctx, key, "calls", delta.Calls)
	tokensCmd := pipe.HIncrBy(ctx, key, "tokens", delta.Tokens)
	costCmd := pipe.HIncrByFloat(ctx, key, "cost", delta.Cost)
	pipe.Expire(ctx, key, usageKeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Errorf("failed to add usage: %v", err)
		return domain.Usage{}, err
	}

	return domain.Usage{
		Calls:  callsCmd.Val(),
		Tokens: tokensCmd.Val(),
		Cost:   costCmd.Val(),
	}, nil
}

// ResetUsage 清零窗口用量。删除键即归零，重复执行结果相同。
func (s *QuotaUsageStore) ResetUsage(ctx context.Context, subjectID string, periodStart time.Time) error {
	if err := s.data.redis.Del(ctx, s.usageKey(subjectID, periodStart)).Err(); err != nil {
		s.log.Errorf("failed to reset usage: %v", err)
		return err
	}
	return nil
}
