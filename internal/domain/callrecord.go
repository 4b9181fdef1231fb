package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallRecord 调用记录。只追加、不修改，是用量与健康的事实账本；
// 配额计数与健康窗口都是由它派生的快速缓存。
type CallRecord struct {
	ID           string
	ModelID      string
	SubjectID    string
	RequestID    string
	Timestamp    time.Time
	Success      bool
	ErrorKind    ErrorKind // 成功时为空
	InputTokens  int
	OutputTokens int
	Cost         float64
	LatencyMs    int64
}

// NewCallRecord 从一次尝试的结果生成调用记录
func NewCallRecord(modelID, subjectID, requestID string, result *CallResult) *CallRecord {
	return &CallRecord{
		ID:           "call_" + uuid.New().String(),
		ModelID:      modelID,
		SubjectID:    subjectID,
		RequestID:    requestID,
		Timestamp:    time.Now(),
		Success:      result.Success,
		ErrorKind:    result.ErrorKind,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Cost:         result.Cost,
		LatencyMs:    result.LatencyMs,
	}
}

// TotalTokens 总Token数
func (r *CallRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelPerformance 模型性能日统计（由调用记录滚动汇总）
type ModelPerformance struct {
	ModelID           string
	Date              time.Time // 当天零点(UTC)
	TotalCalls        int64
	SuccessfulCalls   int64
	FailedCalls       int64
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalCost         float64
	AvgLatencyMs      float64
	SuccessRate       float64
	UpdatedAt         time.Time
}

// CalculateMetrics 计算派生指标
func (p *ModelPerformance) CalculateMetrics() {
	if p.TotalCalls > 0 {
		p.SuccessRate = float64(p.SuccessfulCalls) / float64(p.TotalCalls)
	} else {
		p.SuccessRate = 0
	}
	p.FailedCalls = p.TotalCalls - p.SuccessfulCalls
}
