package data

import (
	"context"
	"errors"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ModelPO 模型持久化对象
type ModelPO struct {
	ID              string         `gorm:"primaryKey;size:64"`
	ProviderID      string         `gorm:"size:64;not null;index:idx_model_provider"`
	Name            string         `gorm:"size:100;not null;index:idx_model_name"`
	DisplayName     string         `gorm:"size:255;not null"`
	Capabilities    pq.StringArray `gorm:"type:text[]"`
	MaxTokens       int            `gorm:"not null"`
	ContextWindow   int            `gorm:"not null"`
	InputPricePerK  float64        `gorm:"type:decimal(10,6);not null"`
	OutputPricePerK float64        `gorm:"type:decimal(10,6);not null"`
	Priority        int            `gorm:"not null;index:idx_model_priority"`
	TimeoutSec      int            `gorm:"not null"`
	Active          bool           `gorm:"not null;index:idx_model_active"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// TableName 表名
func (ModelPO) TableName() string {
	return "model_gateway.models"
}

// ModelRepository 模型仓储实现
type ModelRepository struct {
	data *Data
	log  *log.Helper
}

// NewModelRepo 创建模型仓储
func NewModelRepo(data *Data, logger log.Logger) domain.ModelRepository {
	return &ModelRepository{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Create 创建模型
func (r *ModelRepository) Create(ctx context.Context, model *domain.Model) error {
	po := r.toModelPO(model)

	if err := r.data.db.WithContext(ctx).Create(po).Error; err != nil {
		r.log.Errorf("failed to create model: %v", err)
		return err
	}

	return nil
}

// GetByID 根据ID获取模型
func (r *ModelRepository) GetByID(ctx context.Context, id string) (*domain.Model, error) {
	var po ModelPO
	if err := r.data.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrModelNotFound
		}
		r.log.Errorf("failed to get model: %v", err)
		return nil, err
	}

	return r.toDomainModel(&po), nil
}

// Update 更新模型
func (r *ModelRepository) Update(ctx context.Context, model *domain.Model) error {
	po := r.toModelPO(model)

	if err := r.data.db.WithContext(ctx).
		Model(&ModelPO{}).
		Where("id = ?", model.ID).
		Select("provider_id", "name", "display_name", "capabilities", "max_tokens",
			"context_window", "input_price_per_k", "output_price_per_k",
			"priority", "timeout_sec", "active", "updated_at").
		Updates(po).Error; err != nil {
		r.log.Errorf("failed to update model: %v", err)
		return err
	}

	return nil
}

// Delete 软删除模型
func (r *ModelRepository) Delete(ctx context.Context, id string) error {
	if err := r.data.db.WithContext(ctx).Delete(&ModelPO{}, "id = ?", id).Error; err != nil {
		r.log.Errorf("failed to delete model: %v", err)
		return err
	}

	return nil
}

// List 按条件获取模型列表
func (r *ModelRepository) List(ctx context.Context, filter domain.ModelFilter) ([]*domain.Model, error) {
	var pos []ModelPO

	query := r.data.db.WithContext(ctx)
	if filter.ProviderID != "" {
		query = query.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Capability != "" {
		query = query.Where("? = ANY(capabilities)", filter.Capability)
	}
	if filter.OnlyActive {
		query = query.Where("active = ?", true)
	}

	if err := query.Order("priority DESC, created_at DESC").Find(&pos).Error; err != nil {
		r.log.Errorf("failed to list models: %v", err)
		return nil, err
	}

	models := make([]*domain.Model, 0, len(pos))
	for i := range pos {
		models = append(models, r.toDomainModel(&pos[i]))
	}
	return models, nil
}

// toModelPO 转换为持久化对象
func (r *ModelRepository) toModelPO(model *domain.Model) *ModelPO {
	return &ModelPO{
		ID:              model.ID,
		ProviderID:      model.ProviderID,
		Name:            model.Name,
		DisplayName:     model.DisplayName,
		Capabilities:    pq.StringArray(model.Capabilities),
		MaxTokens:       model.MaxTokens,
		ContextWindow:   model.ContextWindow,
		InputPricePerK:  model.InputPricePerK,
		OutputPricePerK: model.OutputPricePerK,
		Priority:        model.Priority,
		TimeoutSec:      model.TimeoutSec,
		Active:          model.Active,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// toDomainModel 转换为领域对象
func (r *ModelRepository) toDomainModel(po *ModelPO) *domain.Model {
	return &domain.Model{
		ID:              po.ID,
		ProviderID:      po.ProviderID,
		Name:            po.Name,
		DisplayName:     po.DisplayName,
		Capabilities:    []string(po.Capabilities),
		MaxTokens:       po.MaxTokens,
		ContextWindow:   po.ContextWindow,
		InputPricePerK:  po.InputPricePerK,
		OutputPricePerK: po.OutputPricePerK,
		Priority:        po.Priority,
		TimeoutSec:      po.TimeoutSec,
		Active:          po.Active,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
	}
}
