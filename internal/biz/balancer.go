package biz

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"smartcs/internal/domain"
	"smartcs/pkg/monitoring"

	"github.com/go-kratos/kratos/v2/log"
)

// candidate 可参与选择的模型及其提供商
type candidate struct {
	model    *domain.Model
	provider *domain.Provider
	weight   int
}

// Balancer 负载均衡器。按组策略在候选间选择模型，
// 失败时在组内做故障转移，额外尝试次数受组配置约束。
type Balancer struct {
	models    domain.ModelRepository
	providers domain.ProviderRepository
	health    *HealthMonitor
	invoker   *Invoker
	quota     *QuotaGuard
	metrics   *monitoring.GatewayMetrics

	mu      sync.Mutex
	cursors map[string]int
	rng     *rand.Rand

	log *log.Helper
}

// NewBalancer 创建负载均衡器
func NewBalancer(
	models domain.ModelRepository,
	providers domain.ProviderRepository,
	health *HealthMonitor,
	invoker *Invoker,
	quota *QuotaGuard,
	metrics *monitoring.GatewayMetrics,
	logger log.Logger,
) *Balancer {
	return &Balancer{
		models:    models,
		providers: providers,
		health:    health,
		invoker:   invoker,
		quota:     quota,
		metrics:   metrics,
		cursors:   make(map[string]int),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log.NewHelper(logger),
	}
}

// SetRandSeed 固定随机种子（测试用）
func (b *Balancer) SetRandSeed(seed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng = rand.New(rand.NewSource(seed))
}

// eligible 组装候选集：权重为正、模型与提供商均激活、健康未被摘除。
// ignoreHealth 用于候选全被健康过滤清空后的降级重算。
func (b *Balancer) eligible(ctx context.Context, group *domain.ModelGroup, exclude map[string]bool, ignoreHealth bool) ([]candidate, error) {
	providerCache := make(map[string]*domain.Provider)

	candidates := make([]candidate, 0, len(group.Weights))
	for _, w := range group.Weights {
		if w.Weight <= 0 || exclude[w.ModelID] {
			continue
		}

		model, err := b.models.GetByID(ctx, w.ModelID)
		if err != nil {
			b.log.Warnf("group %s references missing model %s", group.ID, w.ModelID)
			continue
		}
		if !model.Active {
			continue
		}

		provider, ok := providerCache[model.ProviderID]
		if !ok {
			provider, err = b.providers.GetByID(ctx, model.ProviderID)
			if err != nil {
				b.log.Warnf("model %s references missing provider %s", model.ID, model.ProviderID)
				continue
			}
			providerCache[model.ProviderID] = provider
		}
		if !provider.Active {
			continue
		}

		if !ignoreHealth && !b.health.IsEligible(model.ID) {
			continue
		}

		candidates = append(candidates, candidate{model: model, provider: provider, weight: w.Weight})
	}
	return candidates, nil
}

// pick 按策略从候选集中选一个
func (b *Balancer) pick(group *domain.ModelGroup, candidates []candidate) candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch group.Strategy {
	case domain.StrategyWeightedRandom:
		return b.pickWeightedRandom(candidates)
	case domain.StrategyRandom:
		return candidates[b.rng.Intn(len(candidates))]
	case domain.StrategyLeastInFlight:
		return b.pickLeastInFlight(candidates)
	case domain.StrategyFastestResponse:
		return b.pickFastest(candidates)
	case domain.StrategyCheapest:
		return b.pickCheapest(candidates)
	default: // round_robin
		idx := b.cursors[group.ID] % len(candidates)
		b.cursors[group.ID]++
		return candidates[idx]
	}
}

// pickWeightedRandom 加权随机
func (b *Balancer) pickWeightedRandom(candidates []candidate) candidate {
	total := 0
	for _, c := range candidates {
		total += c.weight
	}
	if total <= 0 {
		return candidates[b.rng.Intn(len(candidates))]
	}

	n := b.rng.Intn(total)
	for _, c := range candidates {
		n -= c.weight
		if n < 0 {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// pickLeastInFlight 最少并发优先，并发相同取权重大者
func (b *Balancer) pickLeastInFlight(candidates []candidate) candidate {
	best := candidates[0]
	bestLoad := b.invoker.InFlight(best.model.ID)
	for _, c := range candidates[1:] {
		load := b.invoker.InFlight(c.model.ID)
		if load < bestLoad || (load == bestLoad && c.weight > best.weight) {
			best = c
			bestLoad = load
		}
	}
	return best
}

// pickFastest 响应时间优先，无观测数据的模型视为最快
func (b *Balancer) pickFastest(candidates []candidate) candidate {
	best := candidates[0]
	bestLatency := b.health.AvgLatency(best.model.ID)
	for _, c := range candidates[1:] {
		latency := b.health.AvgLatency(c.model.ID)
		if latency < bestLatency {
			best = c
			bestLatency = latency
		}
	}
	return best
}

// pickCheapest 成本优先，按每1K token 输入+输出价格之和比较
func (b *Balancer) pickCheapest(candidates []candidate) candidate {
	best := candidates[0]
	bestPrice := best.model.InputPricePerK + best.model.OutputPricePerK
	for _, c := range candidates[1:] {
		price := c.model.InputPricePerK + c.model.OutputPricePerK
		if price < bestPrice {
			best = c
			bestPrice = price
		}
	}
	return best
}

// InvokeGroup 对模型组执行一次调用，失败时按组配置故障转移。
// 同一请求内已失败的模型不再重选，每次尝试前重新做配额准入。
// 返回结果的 Attempts 为本请求消耗的提供商调用总数。
func (b *Balancer) InvokeGroup(
	ctx context.Context,
	group *domain.ModelGroup,
	subjectID, requestID, input string,
	params *domain.CallParams,
) (*domain.CallResult, *domain.Model, error) {
	maxAttempts := 1 + group.MaxRetries
	tried := make(map[string]bool)
	attempts := 0

	var lastResult *domain.CallResult
	var lastModel *domain.Model

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidates, err := b.eligible(ctx, group, tried, false)
		if err != nil {
			return nil, nil, err
		}
		if len(candidates) == 0 && group.FallbackEnabled {
			// 健康过滤清空候选集时忽略健康状态重算一次
			candidates, err = b.eligible(ctx, group, tried, true)
			if err != nil {
				return nil, nil, err
			}
		}
		if len(candidates) == 0 {
			if lastResult != nil {
				// 候选耗尽，返回聚合后的最后一次失败
				lastResult.Attempts = attempts
				return lastResult, lastModel, nil
			}
			return nil, nil, domain.ErrNoEligibleModel
		}

		chosen := b.pick(group, candidates)
		tried[chosen.model.ID] = true

		callParams := domain.DefaultCallParams(chosen.model)
		if params != nil {
			callParams = *params
		}

		// 失败的尝试同样消耗配额，转移前重新准入
		admission, err := b.quota.Admit(ctx, subjectID, domain.Usage{Calls: 1, Tokens: int64(callParams.MaxTokens)})
		if err != nil {
			return nil, nil, err
		}
		if !admission.Allowed {
			if b.metrics != nil {
				b.metrics.QuotaDenials.WithLabelValues(subjectID, string(admission.Reason)).Inc()
			}
			return nil, nil, domain.ErrQuotaExceeded
		}

		result := b.invoker.InvokeModel(ctx, chosen.provider, chosen.model, subjectID, requestID, input, callParams)
		attempts += result.Attempts
		result.Attempts = attempts
		if result.Success {
			return result, chosen.model, nil
		}

		lastResult, lastModel = result, chosen.model

		if !result.ErrorKind.Retryable() || !group.FallbackEnabled || ctx.Err() != nil {
			return result, chosen.model, nil
		}

		if attempt+1 < maxAttempts {
			b.log.Infof("failover in group %s after %s from model %s", group.ID, result.ErrorKind, chosen.model.ID)
			if b.metrics != nil {
				b.metrics.FailoverTotal.WithLabelValues(group.ID).Inc()
			}
		}
	}

	if lastResult != nil {
		lastResult.Attempts = attempts
	}
	return lastResult, lastModel, nil
}
