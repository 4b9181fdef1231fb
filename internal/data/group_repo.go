package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// ModelGroupPO 模型组持久化对象，权重随组整体序列化
type ModelGroupPO struct {
	ID              string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"size:100;not null;uniqueIndex:idx_group_name"`
	Strategy        string `gorm:"size:30;not null"`
	MaxRetries      int    `gorm:"not null"`
	FallbackEnabled bool   `gorm:"not null"`
	Active          bool   `gorm:"not null;index:idx_group_active"`
	Weights         string `gorm:"type:jsonb"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// TableName 表名
func (ModelGroupPO) TableName() string {
	return "model_gateway.model_groups"
}

// GroupRepository 模型组仓储实现
type GroupRepository struct {
	data *Data
	log  *log.Helper
}

// NewGroupRepo 创建模型组仓储
func NewGroupRepo(data *Data, logger log.Logger) domain.GroupRepository {
	return &GroupRepository{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Create 创建模型组
func (r *GroupRepository) Create(ctx context.Context, group *domain.ModelGroup) error {
	po, err := r.toGroupPO(group)
	if err != nil {
		return err
	}

	if err := r.data.db.WithContext(ctx).Create(po).Error; err != nil {
		r.log.Errorf("failed to create group: %v", err)
		return err
	}

	return nil
}

// GetByID 根据ID获取模型组
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*domain.ModelGroup, error) {
	var po ModelGroupPO
	if err := r.data.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGroupNotFound
		}
		r.log.Errorf("failed to get group: %v", err)
		return nil, err
	}

	return r.toDomainGroup(&po)
}

// Update 更新模型组
func (r *GroupRepository) Update(ctx context.Context, group *domain.ModelGroup) error {
	po, err := r.toGroupPO(group)
	if err != nil {
		return err
	}

	if err := r.data.db.WithContext(ctx).
		Model(&ModelGroupPO{}).
		Where("id = ?", group.ID).
		Select("name", "strategy", "max_retries", "fallback_enabled", "active", "weights", "updated_at").
		Updates(po).Error; err != nil {
		r.log.Errorf("failed to update group: %v", err)
		return err
	}

	return nil
}

// Delete 软删除模型组
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	if err := r.data.db.WithContext(ctx).Delete(&ModelGroupPO{}, "id = ?", id).Error; err != nil {
		r.log.Errorf("failed to delete group: %v", err)
		return err
	}

	return nil
}

// ListAll 获取所有模型组
func (r *GroupRepository) ListAll(ctx context.Context) ([]*domain.ModelGroup, error) {
	var pos []ModelGroupPO

	if err := r.data.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&pos).Error; err != nil {
		r.log.Errorf("failed to list groups: %v", err)
		return nil, err
	}

	groups := make([]*domain.ModelGroup, 0, len(pos))
	for i := range pos {
		group, err := r.toDomainGroup(&pos[i])
		if err != nil {
			r.log.Warnf("failed to convert group %s: %v", pos[i].ID, err)
			continue
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// toGroupPO 转换为持久化对象
func (r *GroupRepository) toGroupPO(group *domain.ModelGroup) (*ModelGroupPO, error) {
	weightsJSON, err := json.Marshal(group.Weights)
	if err != nil {
		return nil, err
	}

	return &ModelGroupPO{
		ID:              group.ID,
		Name:            group.Name,
		Strategy:        string(group.Strategy),
		MaxRetries:      group.MaxRetries,
		FallbackEnabled: group.FallbackEnabled,
		Active:          group.Active,
		Weights:         string(weightsJSON),
		CreatedAt:       group.CreatedAt,
		UpdatedAt:       group.UpdatedAt,
	}, nil
}

// toDomainGroup 转换为领域对象
func (r *GroupRepository) toDomainGroup(po *ModelGroupPO) (*domain.ModelGroup, error) {
	weights := make([]domain.ModelWeight, 0)
	if po.Weights != "" {
		if err := json.Unmarshal([]byte(po.Weights), &weights); err != nil {
			return nil, err
		}
	}

	return &domain.ModelGroup{
		ID:              po.ID,
		Name:            po.Name,
		Strategy:        domain.Strategy(po.Strategy),
		MaxRetries:      po.MaxRetries,
		FallbackEnabled: po.FallbackEnabled,
		Active:          po.Active,
		Weights:         weights,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
	}, nil
}
