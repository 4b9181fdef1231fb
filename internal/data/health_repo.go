package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// healthKeyTTL 健康快照保留时长
const healthKeyTTL = 24 * time.Hour

// HealthSnapshotRepository 健康快照存取实现（Redis，观测用）
type HealthSnapshotRepository struct {
	data *Data
	log  *log.Helper
}

// NewHealthSnapshotRepo 创建健康快照仓储
func NewHealthSnapshotRepo(data *Data, logger log.Logger) domain.HealthSnapshotRepository {
	return &HealthSnapshotRepository{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// healthKey 快照键
func (r *HealthSnapshotRepository) healthKey(modelID string) string {
	return "health:model:" + modelID
}

// Save 保存健康快照
func (r *HealthSnapshotRepository) Save(ctx context.Context, status *domain.HealthStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}

	if err := r.data.redis.Set(ctx, r.healthKey(status.ModelID), payload, healthKeyTTL).Err(); err != nil {
		r.log.Errorf("failed to save health snapshot: %v", err)
		return err
	}
	return nil
}

// Get 读取健康快照，无快照视为模型未知
func (r *HealthSnapshotRepository) Get(ctx context.Context, modelID string) (*domain.HealthStatus, error) {
	payload, err := r.data.redis.Get(ctx, r.healthKey(modelID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrModelNotFound
		}
		r.log.Errorf("failed to get health snapshot: %v", err)
		return nil, err
	}

	var status domain.HealthStatus
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		return nil, err
	}
	return &status, nil
}
