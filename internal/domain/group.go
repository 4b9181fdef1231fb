package domain

import (
	"time"

	"github.com/google/uuid"
)

// Strategy 负载均衡策略（封闭集合，新增策略需要在均衡器中补齐分支）
type Strategy string

const (
	StrategyRoundRobin      Strategy = "round_robin"      // 轮询
	StrategyWeightedRandom  Strategy = "weighted_random"  // 加权随机
	StrategyRandom          Strategy = "random"           // 随机
	StrategyLeastInFlight   Strategy = "least_inflight"   // 最少并发
	StrategyFastestResponse Strategy = "fastest_response" // 响应时间优先
	StrategyCheapest        Strategy = "cheapest"         // 成本优先
)

// Valid 检查策略是否合法
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyWeightedRandom, StrategyRandom,
		StrategyLeastInFlight, StrategyFastestResponse, StrategyCheapest:
		return true
	}
	return false
}

// ModelWeight 模型权重
type ModelWeight struct {
	ModelID string
	Weight  int // >= 0；0 表示从该组摘除但保留配置
}

// ModelGroup 模型组（一个负载均衡器的配置）
type ModelGroup struct {
	ID              string
	Name            string
	Strategy        Strategy
	MaxRetries      int // 故障转移的额外尝试次数
	FallbackEnabled bool
	Active          bool
	Weights         []ModelWeight
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewModelGroup 创建模型组
func NewModelGroup(name string, strategy Strategy) *ModelGroup {
	now := time.Now()
	return &ModelGroup{
		ID:              "group_" + uuid.New().String(),
		Name:            name,
		Strategy:        strategy,
		MaxRetries:      2,
		FallbackEnabled: true,
		Active:          true,
		Weights:         make([]ModelWeight, 0),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SetWeight 设置成员权重，不存在则添加
func (g *ModelGroup) SetWeight(modelID string, weight int) error {
	if weight < 0 {
		return ErrInvalidWeight
	}
	for i := range g.Weights {
		if g.Weights[i].ModelID == modelID {
			g.Weights[i].Weight = weight
			g.UpdatedAt = time.Now()
			return nil
		}
	}
	g.Weights = append(g.Weights, ModelWeight{ModelID: modelID, Weight: weight})
	g.UpdatedAt = time.Now()
	return nil
}

// RemoveModel 移除成员
func (g *ModelGroup) RemoveModel(modelID string) {
	for i := range g.Weights {
		if g.Weights[i].ModelID == modelID {
			g.Weights = append(g.Weights[:i], g.Weights[i+1:]...)
			g.UpdatedAt = time.Now()
			return
		}
	}
}

// WeightOf 获取成员权重，非成员返回0
func (g *ModelGroup) WeightOf(modelID string) int {
	for _, w := range g.Weights {
		if w.ModelID == modelID {
			return w.Weight
		}
	}
	return 0
}

// Validate 验证组配置
func (g *ModelGroup) Validate() error {
	if g.Name == "" {
		return ErrInvalidGroupName
	}
	if !g.Strategy.Valid() {
		return ErrInvalidStrategy
	}
	if g.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	for _, w := range g.Weights {
		if w.Weight < 0 {
			return ErrInvalidWeight
		}
	}
	return nil
}
