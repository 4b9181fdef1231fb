package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
)

// ProviderError 可分类的提供商调用错误
type ProviderError struct {
	Kind    domain.ErrorKind
	Message string
}

// Error 实现error接口
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewProviderError 创建提供商错误
func NewProviderError(kind domain.ErrorKind, message string) *ProviderError {
	return &ProviderError{Kind: kind, Message: message}
}

// ClassifyError 将任意错误归入错误分类
func ClassifyError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(domain.ErrorKindTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return NewProviderError(domain.ErrorKindCancelled, err.Error())
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewProviderError(domain.ErrorKindProviderUnavailable, err.Error())
	}
	return NewProviderError(domain.ErrorKindProviderUnavailable, err.Error())
}

// Response 提供商原始响应
type Response struct {
	OutputText   string
	InputTokens  int
	OutputTokens int
}

// ProviderClient 提供商调用协作方接口
type ProviderClient interface {
	// Send 执行一次模型调用。超时由 ctx 携带；
	// 返回的错误必须可被 ClassifyError 归类。
	Send(ctx context.Context, provider *domain.Provider, model *domain.Model, input string, params domain.CallParams) (*Response, error)
}

// HTTPProviderClient 基于HTTP的提供商客户端，按提供商维护熔断器
type HTTPProviderClient struct {
	httpClient *http.Client
	breakers   map[string]*gobreaker.CircuitBreaker
	mu         sync.Mutex
	log        *log.Helper
}

// NewHTTPProviderClient 创建提供商客户端
func NewHTTPProviderClient(logger log.Logger) *HTTPProviderClient {
	return &HTTPProviderClient{
		// 不设置客户端级超时，超时由每次调用的ctx控制
		httpClient: &http.Client{},
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		log:        log.NewHelper(logger),
	}
}

// breaker 获取提供商对应的熔断器
func (c *HTTPProviderClient) breaker(providerID string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[providerID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerID,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// 调用方侧的错误不计入提供商失败
			pe := ClassifyError(err)
			return pe.Kind == domain.ErrorKindCancelled || pe.Kind == domain.ErrorKindAuthError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warnf("provider %s circuit breaker: %s -> %s", name, from, to)
		},
	})
	c.breakers[providerID] = cb
	return cb
}

// Send 执行一次模型调用
func (c *HTTPProviderClient) Send(
	ctx context.Context,
	provider *domain.Provider,
	model *domain.Model,
	input string,
	params domain.CallParams,
) (*Response, error) {
	result, err := c.breaker(provider.ID).Execute(func() (interface{}, error) {
		return c.send(ctx, provider, model, input, params)
	})
	if err != nil {
		return nil, ClassifyError(err)
	}
	return result.(*Response), nil
}

// send 按提供商类型分发
func (c *HTTPProviderClient) send(
	ctx context.Context,
	provider *domain.Provider,
	model *domain.Model,
	input string,
	params domain.CallParams,
) (*Response, error) {
	switch provider.Type {
	case domain.ProviderTypeAnthropic:
		return c.sendAnthropic(ctx, provider, model, input, params)
	case domain.ProviderTypeOpenAI, domain.ProviderTypeAzure, domain.ProviderTypeGoogle, domain.ProviderTypeLocal:
		return c.sendOpenAICompatible(ctx, provider, model, input, params)
	default:
		return c.sendCustom(ctx, provider, model, input, params)
	}
}

// openaiChatRequest OpenAI兼容请求体
type openaiChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openaiChatResponse OpenAI兼容响应体
type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// sendOpenAICompatible 调用OpenAI兼容API
func (c *HTTPProviderClient) sendOpenAICompatible(
	ctx context.Context,
	provider *domain.Provider,
	model *domain.Model,
	input string,
	params domain.CallParams,
) (*Response, error) {
	reqBody := openaiChatRequest{
		Model:       model.Name,
		Messages:    []chatMessage{{Role: "user", Content: input}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + provider.APIKey,
	}
	if provider.Type == domain.ProviderTypeAzure {
		headers = map[string]string{"api-key": provider.APIKey}
	}

	body, err := c.post(ctx, provider.BaseURL+"/chat/completions", headers, reqBody)
	if err != nil {
		return nil, err
	}

	var chatResp openaiChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, NewProviderError(domain.ErrorKindInvalidResponse, "unmarshal response: "+err.Error())
	}
	if len(chatResp.Choices) == 0 {
		return nil, NewProviderError(domain.ErrorKindInvalidResponse, "response has no choices")
	}

	return &Response{
		OutputText:   chatResp.Choices[0].Message.Content,
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

// anthropicResponse Anthropic响应体
type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// sendAnthropic 调用Anthropic API
func (c *HTTPProviderClient) sendAnthropic(
	ctx context.Context,
	provider *domain.Provider,
	model *domain.Model,
	input string,
	params domain.CallParams,
) (*Response, error) {
	reqBody := map[string]interface{}{
		"model":       model.Name,
		"max_tokens":  params.MaxTokens,
		"temperature": params.Temperature,
		"messages":    []chatMessage{{Role: "user", Content: input}},
	}

	apiVersion := provider.APIVersion
	if apiVersion == "" {
		apiVersion = "2023-06-01"
	}
	headers := map[string]string{
		"x-api-key":         provider.APIKey,
		"anthropic-version": apiVersion,
	}

	body, err := c.post(ctx, provider.BaseURL+"/v1/messages", headers, reqBody)
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewProviderError(domain.ErrorKindInvalidResponse, "unmarshal response: "+err.Error())
	}
	if len(resp.Content) == 0 {
		return nil, NewProviderError(domain.ErrorKindInvalidResponse, "response has no content")
	}

	return &Response{
		OutputText:   resp.Content[0].Text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// customResponse 自定义API响应体
type customResponse struct {
	Output string `json:"output"`
	Usage  struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// sendCustom 调用自定义API
func (c *HTTPProviderClient) sendCustom(
	ctx context.Context,
	provider *domain.Provider,
	model *domain.Model,
	input string,
	params domain.CallParams,
) (*Response, error) {
	reqBody := map[string]interface{}{
		"model":      model.Name,
		"input":      input,
		"parameters": params,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + provider.APIKey,
	}

	body, err := c.post(ctx, provider.BaseURL, headers, reqBody)
	if err != nil {
		return nil, err
	}

	var resp customResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewProviderError(domain.ErrorKindInvalidResponse, "unmarshal response: "+err.Error())
	}

	return &Response{
		OutputText:   resp.Output,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// post 发送请求并按状态码分类错误
func (c *HTTPProviderClient) post(ctx context.Context, url string, headers map[string]string, reqBody interface{}) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewProviderError(domain.ErrorKindValidationError, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewProviderError(domain.ErrorKindValidationError, "create request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ClassifyError(ctxErr)
		}
		return nil, NewProviderError(domain.ErrorKindProviderUnavailable, "send request: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(domain.ErrorKindInvalidResponse, "read response: "+err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}
	return body, nil
}

// classifyStatus HTTP状态码到错误分类
func classifyStatus(status int, body []byte) *ProviderError {
	msg := fmt.Sprintf("status=%d body=%s", status, truncate(string(body), 256))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(domain.ErrorKindAuthError, msg)
	case status == http.StatusTooManyRequests:
		return NewProviderError(domain.ErrorKindRateLimited, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return NewProviderError(domain.ErrorKindValidationError, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewProviderError(domain.ErrorKindTimeout, msg)
	case status >= 500:
		return NewProviderError(domain.ErrorKindProviderUnavailable, msg)
	default:
		return NewProviderError(domain.ErrorKindInvalidResponse, msg)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
