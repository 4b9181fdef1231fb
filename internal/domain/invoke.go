package domain

// ErrorKind 调用错误分类
type ErrorKind string

const (
	ErrorKindTimeout             ErrorKind = "timeout"              // 超时
	ErrorKindRateLimited         ErrorKind = "rate_limited"         // 被上游限流
	ErrorKindProviderUnavailable ErrorKind = "provider_unavailable" // 提供商不可用
	ErrorKindAuthError           ErrorKind = "auth_error"           // 鉴权失败
	ErrorKindValidationError     ErrorKind = "validation_error"     // 参数校验失败
	ErrorKindInvalidResponse     ErrorKind = "invalid_response"     // 响应不可解析
	ErrorKindQuotaExceeded       ErrorKind = "quota_exceeded"       // 配额超限（准入期拒绝）
	ErrorKindNoEligibleModel     ErrorKind = "no_eligible_model"    // 无可用候选
	ErrorKindCancelled           ErrorKind = "cancelled"            // 调用方取消
)

// Retryable 是否可以故障转移到其他候选。
// InvalidResponse 单独处理：同一模型仅重试一次后上抛。
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindRateLimited, ErrorKindProviderUnavailable:
		return true
	}
	return false
}

// CallParams 调用参数
type CallParams struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultCallParams 模型默认参数
func DefaultCallParams(m *Model) CallParams {
	return CallParams{
		Temperature: 0.7,
		TopP:        1.0,
		MaxTokens:   m.MaxTokens,
	}
}

// Validate 按模型限制校验参数，越界即拒绝（不做静默钳制）
func (p CallParams) Validate(m *Model) error {
	if p.Temperature < 0.0 || p.Temperature > 2.0 {
		return ErrInvalidParams
	}
	if p.TopP < 0.0 || p.TopP > 1.0 {
		return ErrInvalidParams
	}
	if p.MaxTokens < 1 || p.MaxTokens > m.MaxTokens {
		return ErrInvalidParams
	}
	return nil
}

// CallResult 单次调用的标签化结果。
// Attempts 为本次请求消耗的提供商调用次数，
// 经故障转移返回时为各候选的累计值。
type CallResult struct {
	Success      bool
	OutputText   string
	InputTokens  int
	OutputTokens int
	Cost         float64
	LatencyMs    int64
	Attempts     int
	ErrorKind    ErrorKind
	ErrorMessage string
}

// Retryable 失败结果是否允许转移
func (r *CallResult) Retryable() bool {
	return !r.Success && r.ErrorKind.Retryable()
}

// TotalTokens 总Token数
func (r *CallResult) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}
