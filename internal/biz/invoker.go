package biz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"smartcs/internal/adapter"
	"smartcs/internal/domain"
	"smartcs/pkg/monitoring"

	"github.com/go-kratos/kratos/v2/log"
)

// Invoker 模型调用器。负责一次调用的完整生命周期：
// 参数校验、并发计数、超时控制、错误分类、成本计算，
// 以及事后的记账（调用记录、健康观测、配额提交）。
type Invoker struct {
	client  adapter.ProviderClient
	records domain.CallRecordRepository
	health  *HealthMonitor
	quota   *QuotaGuard
	metrics *monitoring.GatewayMetrics

	mu       sync.Mutex
	inflight map[string]*atomic.Int64

	log *log.Helper
}

// NewInvoker 创建调用器。metrics 可为 nil（测试场景）。
func NewInvoker(
	client adapter.ProviderClient,
	records domain.CallRecordRepository,
	health *HealthMonitor,
	quota *QuotaGuard,
	metrics *monitoring.GatewayMetrics,
	logger log.Logger,
) *Invoker {
	return &Invoker{
		client:   client,
		records:  records,
		health:   health,
		quota:    quota,
		metrics:  metrics,
		inflight: make(map[string]*atomic.Int64),
		log:      log.NewHelper(logger),
	}
}

// inflightCounter 模型的并发计数器
func (i *Invoker) inflightCounter(modelID string) *atomic.Int64 {
	i.mu.Lock()
	defer i.mu.Unlock()

	counter, ok := i.inflight[modelID]
	if !ok {
		counter = &atomic.Int64{}
		i.inflight[modelID] = counter
	}
	return counter
}

// InFlight 模型当前并发数
func (i *Invoker) InFlight(modelID string) int64 {
	return i.inflightCounter(modelID).Load()
}

// InvokeModel 对指定模型执行一次调用。失败以结果标签表达，
// error 仅用于不可恢复的内部故障。
func (i *Invoker) InvokeModel(
	ctx context.Context,
	provider *domain.Provider,
	model *domain.Model,
	subjectID, requestID, input string,
	params domain.CallParams,
) *domain.CallResult {
	counter := i.inflightCounter(model.ID)
	counter.Add(1)
	if i.metrics != nil {
		i.metrics.InFlight.WithLabelValues(model.ID).Inc()
	}
	defer func() {
		counter.Add(-1)
		if i.metrics != nil {
			i.metrics.InFlight.WithLabelValues(model.ID).Dec()
		}
	}()

	if err := params.Validate(model); err != nil {
		result := &domain.CallResult{
			Success:      false,
			ErrorKind:    domain.ErrorKindValidationError,
			ErrorMessage: err.Error(),
		}
		i.settle(ctx, model, subjectID, requestID, result, false)
		return result
	}

	result := i.attempt(ctx, provider, model, input, params)
	result.Attempts = 1

	// 响应不可解析：同一模型立即重试一次，仍失败则上抛。
	// 首次尝试同样逐笔记账。
	if !result.Success && result.ErrorKind == domain.ErrorKindInvalidResponse {
		i.settle(ctx, model, subjectID, requestID, result, true)
		i.log.Warnf("invalid response from model %s, retrying once", model.ID)
		result = i.attempt(ctx, provider, model, input, params)
		result.Attempts = 2
	}

	i.settle(ctx, model, subjectID, requestID, result, true)
	return result
}

// attempt 单次提供商调用
func (i *Invoker) attempt(ctx context.Context, provider *domain.Provider, model *domain.Model, input string, params domain.CallParams) *domain.CallResult {
	callCtx, cancel := context.WithTimeout(ctx, model.Timeout())
	defer cancel()

	start := time.Now()
	resp, err := i.client.Send(callCtx, provider, model, input, params)
	latency := time.Since(start)

	if err != nil {
		pe := adapter.ClassifyError(err)
		return &domain.CallResult{
			Success:      false,
			LatencyMs:    latency.Milliseconds(),
			ErrorKind:    pe.Kind,
			ErrorMessage: pe.Message,
		}
	}

	return &domain.CallResult{
		Success:      true,
		OutputText:   resp.OutputText,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         model.CalculateCost(resp.InputTokens, resp.OutputTokens),
		LatencyMs:    latency.Milliseconds(),
	}
}

// settle 调用后的记账：每次尝试都落一条调用记录；
// 健康观测跳过调用方取消；配额只对到达提供商的尝试提交。
func (i *Invoker) settle(ctx context.Context, model *domain.Model, subjectID, requestID string, result *domain.CallResult, reachedProvider bool) {
	// 记录落库失败不影响调用结果，ctx 可能已取消，用独立上下文
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	record := domain.NewCallRecord(model.ID, subjectID, requestID, result)
	if err := i.records.Append(settleCtx, record); err != nil {
		i.log.Errorf("failed to append call record: %v", err)
	}

	// 鉴权失败需要运维介入
	if result.ErrorKind == domain.ErrorKindAuthError {
		i.log.Errorf("auth error on model %s: %s", model.ID, result.ErrorMessage)
	}

	if reachedProvider && result.ErrorKind != domain.ErrorKindCancelled {
		i.health.Record(model.ID, domain.Observation{
			Success:   result.Success,
			LatencyMs: result.LatencyMs,
		})
	}

	if reachedProvider {
		delta := domain.Usage{
			Calls:  1,
			Tokens: int64(result.TotalTokens()),
			Cost:   result.Cost,
		}
		if err := i.quota.Commit(settleCtx, subjectID, delta); err != nil {
			i.log.Errorf("failed to commit quota usage: %v", err)
		}
	}

	if i.metrics != nil {
		i.metrics.ObserveInvocation(model.ID, result.Success, string(result.ErrorKind), time.Duration(result.LatencyMs)*time.Millisecond)
		if result.Success {
			i.metrics.ObserveTokens(model.ID, result.InputTokens, result.OutputTokens, result.Cost)
		}
	}
}
