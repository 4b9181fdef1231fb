package biz

import (
	"context"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// CatalogUsecase 模型目录用例。提供商、模型与模型组的配置管理，
// 以及调用路径上的可选性判定。
type CatalogUsecase struct {
	providers domain.ProviderRepository
	models    domain.ModelRepository
	groups    domain.GroupRepository
	log       *log.Helper
}

// NewCatalogUsecase 创建目录用例
func NewCatalogUsecase(
	providers domain.ProviderRepository,
	models domain.ModelRepository,
	groups domain.GroupRepository,
	logger log.Logger,
) *CatalogUsecase {
	return &CatalogUsecase{
		providers: providers,
		models:    models,
		groups:    groups,
		log:       log.NewHelper(logger),
	}
}

// CreateProvider 创建提供商
func (uc *CatalogUsecase) CreateProvider(ctx context.Context, provider *domain.Provider) error {
	if err := provider.Validate(); err != nil {
		return err
	}
	return uc.providers.Create(ctx, provider)
}

// GetProvider 获取提供商
func (uc *CatalogUsecase) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	return uc.providers.GetByID(ctx, id)
}

// UpdateProvider 更新提供商
func (uc *CatalogUsecase) UpdateProvider(ctx context.Context, provider *domain.Provider) error {
	if err := provider.Validate(); err != nil {
		return err
	}
	provider.UpdatedAt = time.Now()
	return uc.providers.Update(ctx, provider)
}

// DeleteProvider 软删除提供商
func (uc *CatalogUsecase) DeleteProvider(ctx context.Context, id string) error {
	if _, err := uc.providers.GetByID(ctx, id); err != nil {
		return err
	}
	return uc.providers.Delete(ctx, id)
}

// ListProviders 列出所有提供商
func (uc *CatalogUsecase) ListProviders(ctx context.Context) ([]*domain.Provider, error) {
	return uc.providers.ListAll(ctx)
}

// CreateModel 创建模型，所属提供商必须存在
func (uc *CatalogUsecase) CreateModel(ctx context.Context, model *domain.Model) error {
	if err := model.Validate(); err != nil {
		return err
	}
	if _, err := uc.providers.GetByID(ctx, model.ProviderID); err != nil {
		return err
	}
	return uc.models.Create(ctx, model)
}

// GetModel 获取模型
func (uc *CatalogUsecase) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	return uc.models.GetByID(ctx, id)
}

// UpdateModel 更新模型
func (uc *CatalogUsecase) UpdateModel(ctx context.Context, model *domain.Model) error {
	if err := model.Validate(); err != nil {
		return err
	}
	model.UpdatedAt = time.Now()
	return uc.models.Update(ctx, model)
}

// DeleteModel 软删除模型
func (uc *CatalogUsecase) DeleteModel(ctx context.Context, id string) error {
	if _, err := uc.models.GetByID(ctx, id); err != nil {
		return err
	}
	return uc.models.Delete(ctx, id)
}

// ListModels 按条件列出模型
func (uc *CatalogUsecase) ListModels(ctx context.Context, filter domain.ModelFilter) ([]*domain.Model, error) {
	return uc.models.List(ctx, filter)
}

// GetSelectable 返回模型及其提供商，二者都必须处于激活状态。
// 停用是即时生效的：已在途的调用不受影响，新调用从此被拒。
func (uc *CatalogUsecase) GetSelectable(ctx context.Context, modelID string) (*domain.Model, *domain.Provider, error) {
	model, err := uc.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if !model.Active {
		return nil, nil, domain.ErrModelNotSelectable
	}

	provider, err := uc.providers.GetByID(ctx, model.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	if !provider.Active {
		return nil, nil, domain.ErrModelNotSelectable
	}

	return model, provider, nil
}

// CreateGroup 创建模型组，成员模型必须存在
func (uc *CatalogUsecase) CreateGroup(ctx context.Context, group *domain.ModelGroup) error {
	if err := group.Validate(); err != nil {
		return err
	}
	for _, w := range group.Weights {
		if _, err := uc.models.GetByID(ctx, w.ModelID); err != nil {
			return err
		}
	}
	return uc.groups.Create(ctx, group)
}

// GetGroup 获取模型组
func (uc *CatalogUsecase) GetGroup(ctx context.Context, id string) (*domain.ModelGroup, error) {
	return uc.groups.GetByID(ctx, id)
}

// UpdateGroup 更新模型组
func (uc *CatalogUsecase) UpdateGroup(ctx context.Context, group *domain.ModelGroup) error {
	if err := group.Validate(); err != nil {
		return err
	}
	group.UpdatedAt = time.Now()
	return uc.groups.Update(ctx, group)
}

// DeleteGroup 软删除模型组
func (uc *CatalogUsecase) DeleteGroup(ctx context.Context, id string) error {
	if _, err := uc.groups.GetByID(ctx, id); err != nil {
		return err
	}
	return uc.groups.Delete(ctx, id)
}

// ListGroups 列出所有模型组
func (uc *CatalogUsecase) ListGroups(ctx context.Context) ([]*domain.ModelGroup, error) {
	return uc.groups.ListAll(ctx)
}
