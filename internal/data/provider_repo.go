package data

import (
	"context"
	"errors"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// ProviderPO 提供商持久化对象
type ProviderPO struct {
	ID         string `gorm:"primaryKey;size:64"`
	Name       string `gorm:"size:100;not null;uniqueIndex:idx_provider_name"`
	Type       string `gorm:"size:20;not null;index:idx_provider_type"`
	BaseURL    string `gorm:"size:500;not null"`
	APIKey     string `gorm:"size:500"`
	APIVersion string `gorm:"size:50"`
	Active     bool   `gorm:"not null;index:idx_provider_active"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// TableName 表名
func (ProviderPO) TableName() string {
	return "model_gateway.providers"
}

// ProviderRepository 提供商仓储实现
type ProviderRepository struct {
	data *Data
	log  *log.Helper
}

// NewProviderRepo 创建提供商仓储
func NewProviderRepo(data *Data, logger log.Logger) domain.ProviderRepository {
	return &ProviderRepository{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Create 创建提供商
func (r *ProviderRepository) Create(ctx context.Context, provider *domain.Provider) error {
	po := r.toProviderPO(provider)

	if err := r.data.db.WithContext(ctx).Create(po).Error; err != nil {
		r.log.Errorf("failed to create provider: %v", err)
		return err
	}

	return nil
}

// GetByID 根据ID获取提供商
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	var po ProviderPO
	if err := r.data.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProviderNotFound
		}
		r.log.Errorf("failed to get provider: %v", err)
		return nil, err
	}

	return r.toDomainProvider(&po), nil
}

// Update 更新提供商
func (r *ProviderRepository) Update(ctx context.Context, provider *domain.Provider) error {
	po := r.toProviderPO(provider)

	if err := r.data.db.WithContext(ctx).
		Model(&ProviderPO{}).
		Where("id = ?", provider.ID).
		Select("name", "type", "base_url", "api_key", "api_version", "active", "updated_at").
		Updates(po).Error; err != nil {
		r.log.Errorf("failed to update provider: %v", err)
		return err
	}

	return nil
}

// Delete 软删除提供商，历史调用记录保留引用
func (r *ProviderRepository) Delete(ctx context.Context, id string) error {
	if err := r.data.db.WithContext(ctx).Delete(&ProviderPO{}, "id = ?", id).Error; err != nil {
		r.log.Errorf("failed to delete provider: %v", err)
		return err
	}

	return nil
}

// ListAll 获取所有提供商
func (r *ProviderRepository) ListAll(ctx context.Context) ([]*domain.Provider, error) {
	var pos []ProviderPO

	if err := r.data.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&pos).Error; err != nil {
		r.log.Errorf("failed to list providers: %v", err)
		return nil, err
	}

	providers := make([]*domain.Provider, 0, len(pos))
	for i := range pos {
		providers = append(providers, r.toDomainProvider(&pos[i]))
	}
	return providers, nil
}

// toProviderPO 转换为持久化对象
func (r *ProviderRepository) toProviderPO(provider *domain.Provider) *ProviderPO {
	return &ProviderPO{
		ID:         provider.ID,
		Name:       provider.Name,
		Type:       string(provider.Type),
		BaseURL:    provider.BaseURL,
		APIKey:     provider.APIKey,
		APIVersion: provider.APIVersion,
		Active:     provider.Active,
		CreatedAt:  provider.CreatedAt,
		UpdatedAt:  provider.UpdatedAt,
	}
}

// toDomainProvider 转换为领域对象
func (r *ProviderRepository) toDomainProvider(po *ProviderPO) *domain.Provider {
	return &domain.Provider{
		ID:         po.ID,
		Name:       po.Name,
		Type:       domain.ProviderType(po.Type),
		BaseURL:    po.BaseURL,
		APIKey:     po.APIKey,
		APIVersion: po.APIVersion,
		Active:     po.Active,
		CreatedAt:  po.CreatedAt,
		UpdatedAt:  po.UpdatedAt,
	}
}
