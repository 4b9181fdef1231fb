package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProviderType 提供商类型
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"    // OpenAI
	ProviderTypeAnthropic ProviderType = "anthropic" // Anthropic (Claude)
	ProviderTypeAzure     ProviderType = "azure"     // Azure OpenAI
	ProviderTypeGoogle    ProviderType = "google"    // Google AI
	ProviderTypeLocal     ProviderType = "local"     // 本地部署
	ProviderTypeCustom    ProviderType = "custom"    // 自定义API
)

// Provider 模型提供商
type Provider struct {
	ID         string
	Name       string
	Type       ProviderType
	BaseURL    string // 基础API地址
	APIKey     string
	APIVersion string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewProvider 创建提供商
func NewProvider(name string, providerType ProviderType, baseURL, apiKey string) *Provider {
	now := time.Now()
	return &Provider{
		ID:        "prov_" + uuid.New().String(),
		Name:      name,
		Type:      providerType,
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate 验证提供商配置
func (p *Provider) Validate() error {
	if p.Name == "" {
		return ErrInvalidProviderName
	}
	if p.BaseURL == "" {
		return ErrInvalidEndpoint
	}
	return nil
}

// Model 模型配置（目录条目）
type Model struct {
	ID              string
	ProviderID      string
	Name            string
	DisplayName     string
	Capabilities    []string // 能力标签
	MaxTokens       int      // 最大Token数
	ContextWindow   int      // 上下文窗口
	InputPricePerK  float64  // 输入价格(每1K tokens, USD)
	OutputPricePerK float64  // 输出价格(每1K tokens, USD)
	Priority        int      // 优先级：0-100
	TimeoutSec      int      // 单次调用超时(秒)
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewModel 创建模型
func NewModel(providerID, name, displayName string) *Model {
	now := time.Now()
	return &Model{
		ID:            "model_" + uuid.New().String(),
		ProviderID:    providerID,
		Name:          name,
		DisplayName:   displayName,
		Capabilities:  make([]string, 0),
		MaxTokens:     4096,
		ContextWindow: 8192,
		Priority:      50,
		TimeoutSec:    30,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CalculateCost 计算调用成本
func (m *Model) CalculateCost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) / 1000.0 * m.InputPricePerK
	outputCost := float64(outputTokens) / 1000.0 * m.OutputPricePerK
	return inputCost + outputCost
}

// HasCapability 检查是否具备能力
func (m *Model) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// SetPriority 设置优先级
func (m *Model) SetPriority(priority int) error {
	if priority < 0 || priority > 100 {
		return ErrInvalidPriority
	}
	m.Priority = priority
	m.UpdatedAt = time.Now()
	return nil
}

// UpdatePricing 更新定价
func (m *Model) UpdatePricing(inputPrice, outputPrice float64) {
	m.InputPricePerK = inputPrice
	m.OutputPricePerK = outputPrice
	m.UpdatedAt = time.Now()
}

// Activate 激活模型
func (m *Model) Activate() {
	m.Active = true
	m.UpdatedAt = time.Now()
}

// Deactivate 停用模型
func (m *Model) Deactivate() {
	m.Active = false
	m.UpdatedAt = time.Now()
}

// Timeout 单次调用超时
func (m *Model) Timeout() time.Duration {
	if m.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.TimeoutSec) * time.Second
}

// Validate 验证模型
func (m *Model) Validate() error {
	if m.Name == "" {
		return ErrInvalidModelName
	}
	if m.ProviderID == "" {
		return ErrInvalidProviderID
	}
	if m.MaxTokens <= 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}
