package service

import (
	"context"

	"smartcs/internal/biz"
	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// ProviderPayload 提供商写入载荷
type ProviderPayload struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	APIVersion string `json:"api_version"`
	Active     *bool  `json:"active"`
}

// ModelPayload 模型写入载荷
type ModelPayload struct {
	ProviderID      string   `json:"provider_id"`
	Name            string   `json:"name"`
	DisplayName     string   `json:"display_name"`
	Capabilities    []string `json:"capabilities"`
	MaxTokens       int      `json:"max_tokens"`
	ContextWindow   int      `json:"context_window"`
	InputPricePerK  float64  `json:"input_price_per_k"`
	OutputPricePerK float64  `json:"output_price_per_k"`
	Priority        *int     `json:"priority"`
	TimeoutSec      int      `json:"timeout_sec"`
	Active          *bool    `json:"active"`
}

// GroupWeightPayload 组成员权重载荷
type GroupWeightPayload struct {
	ModelID string `json:"model_id"`
	Weight  int    `json:"weight"`
}

// GroupPayload 模型组写入载荷
type GroupPayload struct {
	Name            string               `json:"name"`
	Strategy        string               `json:"strategy"`
	MaxRetries      *int                 `json:"max_retries"`
	FallbackEnabled *bool                `json:"fallback_enabled"`
	Active          *bool                `json:"active"`
	Weights         []GroupWeightPayload `json:"weights"`
}

// QuotaPayload 配额写入载荷
type QuotaPayload struct {
	Cadence   string  `json:"cadence"`
	MaxCalls  int64   `json:"max_calls"`
	MaxTokens int64   `json:"max_tokens"`
	MaxCost   float64 `json:"max_cost"`
}

// AdminService 配置管理服务：提供商、模型、模型组的增删改查
type AdminService struct {
	catalog *biz.CatalogUsecase
	log     *log.Helper
}

// NewAdminService 创建配置管理服务
func NewAdminService(catalog *biz.CatalogUsecase, logger log.Logger) *AdminService {
	return &AdminService{
		catalog: catalog,
		log:     log.NewHelper(logger),
	}
}

// CreateProvider 创建提供商
func (s *AdminService) CreateProvider(ctx context.Context, payload *ProviderPayload) (*domain.Provider, error) {
	provider := domain.NewProvider(payload.Name, domain.ProviderType(payload.Type), payload.BaseURL, payload.APIKey)
	provider.APIVersion = payload.APIVersion
	if payload.Active != nil {
		provider.Active = *payload.Active
	}

	if err := s.catalog.CreateProvider(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

// GetProvider 获取提供商
func (s *AdminService) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	return s.catalog.GetProvider(ctx, id)
}

// UpdateProvider 更新提供商，载荷中省略的布尔字段保持不变
func (s *AdminService) UpdateProvider(ctx context.Context, id string, payload *ProviderPayload) (*domain.Provider, error) {
	provider, err := s.catalog.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload.Name != "" {
		provider.Name = payload.Name
	}
	if payload.Type != "" {
		provider.Type = domain.ProviderType(payload.Type)
	}
	if payload.BaseURL != "" {
		provider.BaseURL = payload.BaseURL
	}
	if payload.APIKey != "" {
		provider.APIKey = payload.APIKey
	}
	if payload.APIVersion != "" {
		provider.APIVersion = payload.APIVersion
	}
	if payload.Active != nil {
		provider.Active = *payload.Active
	}

	if err := s.catalog.UpdateProvider(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

// DeleteProvider 软删除提供商
func (s *AdminService) DeleteProvider(ctx context.Context, id string) error {
	return s.catalog.DeleteProvider(ctx, id)
}

// ListProviders 列出所有提供商
func (s *AdminService) ListProviders(ctx context.Context) ([]*domain.Provider, error) {
	return s.catalog.ListProviders(ctx)
}

// CreateModel 创建模型
func (s *AdminService) CreateModel(ctx context.Context, payload *ModelPayload) (*domain.Model, error) {
	model := domain.NewModel(payload.ProviderID, payload.Name, payload.DisplayName)
	applyModelPayload(model, payload)

	if err := s.catalog.CreateModel(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

// GetModel 获取模型
func (s *AdminService) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	return s.catalog.GetModel(ctx, id)
}

// UpdateModel 更新模型
func (s *AdminService) UpdateModel(ctx context.Context, id string, payload *ModelPayload) (*domain.Model, error) {
	model, err := s.catalog.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload.Name != "" {
		model.Name = payload.Name
	}
	if payload.DisplayName != "" {
		model.DisplayName = payload.DisplayName
	}
	applyModelPayload(model, payload)

	if err := s.catalog.UpdateModel(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

// applyModelPayload 应用载荷中显式给出的字段
func applyModelPayload(model *domain.Model, payload *ModelPayload) {
	if payload.Capabilities != nil {
		model.Capabilities = payload.Capabilities
	}
	if payload.MaxTokens > 0 {
		model.MaxTokens = payload.MaxTokens
	}
	if payload.ContextWindow > 0 {
		model.ContextWindow = payload.ContextWindow
	}
	if payload.InputPricePerK > 0 || payload.OutputPricePerK > 0 {
		model.UpdatePricing(payload.InputPricePerK, payload.OutputPricePerK)
	}
	if payload.Priority != nil {
		model.Priority = *payload.Priority
	}
	if payload.TimeoutSec > 0 {
		model.TimeoutSec = payload.TimeoutSec
	}
	if payload.Active != nil {
		model.Active = *payload.Active
	}
}

// DeleteModel 软删除模型
func (s *AdminService) DeleteModel(ctx context.Context, id string) error {
	return s.catalog.DeleteModel(ctx, id)
}

// ListModels 按条件列出模型
func (s *AdminService) ListModels(ctx context.Context, filter domain.ModelFilter) ([]*domain.Model, error) {
	return s.catalog.ListModels(ctx, filter)
}

// CreateGroup 创建模型组
func (s *AdminService) CreateGroup(ctx context.Context, payload *GroupPayload) (*domain.ModelGroup, error) {
	group := domain.NewModelGroup(payload.Name, domain.Strategy(payload.Strategy))
	applyGroupPayload(group, payload)

	if err := s.catalog.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// GetGroup 获取模型组
func (s *AdminService) GetGroup(ctx context.Context, id string) (*domain.ModelGroup, error) {
	return s.catalog.GetGroup(ctx, id)
}

// UpdateGroup 更新模型组
func (s *AdminService) UpdateGroup(ctx context.Context, id string, payload *GroupPayload) (*domain.ModelGroup, error) {
	group, err := s.catalog.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload.Name != "" {
		group.Name = payload.Name
	}
	if payload.Strategy != "" {
		group.Strategy = domain.Strategy(payload.Strategy)
	}
	applyGroupPayload(group, payload)

	if err := s.catalog.UpdateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// applyGroupPayload 应用载荷中显式给出的字段
func applyGroupPayload(group *domain.ModelGroup, payload *GroupPayload) {
	if payload.MaxRetries != nil {
		group.MaxRetries = *payload.MaxRetries
	}
	if payload.FallbackEnabled != nil {
		group.FallbackEnabled = *payload.FallbackEnabled
	}
	if payload.Active != nil {
		group.Active = *payload.Active
	}
	if payload.Weights != nil {
		weights := make([]domain.ModelWeight, 0, len(payload.Weights))
		for _, w := range payload.Weights {
			weights = append(weights, domain.ModelWeight{ModelID: w.ModelID, Weight: w.Weight})
		}
		group.Weights = weights
	}
}

// DeleteGroup 软删除模型组
func (s *AdminService) DeleteGroup(ctx context.Context, id string) error {
	return s.catalog.DeleteGroup(ctx, id)
}

// ListGroups 列出所有模型组
func (s *AdminService) ListGroups(ctx context.Context) ([]*domain.ModelGroup, error) {
	return s.catalog.ListGroups(ctx)
}
