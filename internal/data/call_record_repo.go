package data

import (
	"context"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// CallRecordPO 调用记录持久化对象（只追加）
type CallRecordPO struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ModelID      string    `gorm:"size:64;not null;index:idx_record_model"`
	SubjectID    string    `gorm:"size:64;not null;index:idx_record_subject"`
	RequestID    string    `gorm:"size:64;index:idx_record_request"`
	Timestamp    time.Time `gorm:"not null;index:idx_record_ts"`
	Success      bool      `gorm:"not null"`
	ErrorKind    string    `gorm:"size:30"`
	InputTokens  int       `gorm:"not null"`
	OutputTokens int       `gorm:"not null"`
	Cost         float64   `gorm:"type:decimal(12,6);not null"`
	LatencyMs    int64     `gorm:"not null"`
}

// TableName 表名
func (CallRecordPO) TableName() string {
	return "model_gateway.call_records"
}

// CallRecordRepository 调用记录仓储实现
type CallRecordRepository struct {
	data *Data
	log  *log.Helper
}

// NewCallRecordRepo 创建调用记录仓储
func NewCallRecordRepo(data *Data, logger log.Logger) domain.CallRecordRepository {
	return &CallRecordRepository{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Append 追加调用记录
func (r *CallRecordRepository) Append(ctx context.Context, record *domain.CallRecord) error {
	po := r.toRecordPO(record)

	if err := r.data.db.WithContext(ctx).Create(po).Error; err != nil {
		r.log.Errorf("failed to append call record: %v", err)
		return err
	}

	return nil
}

// List 按条件分页查询调用记录
func (r *CallRecordRepository) List(ctx context.Context, filter domain.CallRecordFilter, offset, limit int) ([]*domain.CallRecord, int64, error) {
	var pos []CallRecordPO
	var total int64

	query := r.data.db.WithContext(ctx).Model(&CallRecordPO{})
	if filter.ModelID != "" {
		query = query.Where("model_id = ?", filter.ModelID)
	}
	if filter.SubjectID != "" {
		query = query.Where("subject_id = ?", filter.SubjectID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("timestamp >= ?", filter.Since)
	}

	if err := query.Count(&total).Error; err != nil {
		r.log.Errorf("failed to count call records: %v", err)
		return nil, 0, err
	}

	if err := query.
		Order("timestamp DESC").
		Offset(offset).
		Limit(limit).
		Find(&pos).Error; err != nil {
		r.log.Errorf("failed to list call records: %v", err)
		return nil, 0, err
	}

	records := make([]*domain.CallRecord, 0, len(pos))
	for i := range pos {
		records = append(records, r.toDomainRecord(&pos[i]))
	}
	return records, total, nil
}

// daySummary 日汇总聚合行
type daySummary struct {
	TotalCalls        int64
	SuccessfulCalls   int64
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalCost         float64
	AvgLatencyMs      float64
}

// SummarizeDay 按模型汇总一天的调用记录
func (r *CallRecordRepository) SummarizeDay(ctx context.Context, modelID string, day time.Time) (*domain.ModelPerformance, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var summary daySummary
	if err := r.data.db.WithContext(ctx).
		Model(&CallRecordPO{}).
		Select(`COUNT(*) AS total_calls,
			COUNT(*) FILTER (WHERE success) AS successful_calls,
			COALESCE(SUM(input_tokens), 0) AS total_input_tokens,
			COALESCE(SUM(output_tokens), 0) AS total_output_tokens,
			COALESCE(SUM(cost), 0) AS total_cost,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms`).
		Where("model_id = ? AND timestamp >= ? AND timestamp < ?", modelID, dayStart, dayEnd).
		Scan(&summary).Error; err != nil {
		r.log.Errorf("failed to summarize day: %v", err)
		return nil, err
	}

	perf := &domain.ModelPerformance{
		ModelID:           modelID,
		Date:              dayStart,
		TotalCalls:        summary.TotalCalls,
		SuccessfulCalls:   summary.SuccessfulCalls,
		TotalInputTokens:  summary.TotalInputTokens,
		TotalOutputTokens: summary.TotalOutputTokens,
		TotalCost:         summary.TotalCost,
		AvgLatencyMs:      summary.AvgLatencyMs,
		UpdatedAt:         time.Now(),
	}
	perf.CalculateMetrics()
	return perf, nil
}

// toRecordPO 转换为持久化对象
func (r *CallRecordRepository) toRecordPO(record *domain.CallRecord) *CallRecordPO {
	return &CallRecordPO{
		ID:           record.ID,
		ModelID:      record.ModelID,
		SubjectID:    record.SubjectID,
		RequestID:    record.RequestID,
		Timestamp:    record.Timestamp,
		Success:      record.Success,
		ErrorKind:    string(record.ErrorKind),
		InputTokens:  record.InputTokens,
		OutputTokens: record.OutputTokens,
		Cost:         record.Cost,
		LatencyMs:    record.LatencyMs,
	}
}

// toDomainRecord 转换为领域对象
func (r *CallRecordRepository) toDomainRecord(po *CallRecordPO) *domain.CallRecord {
	return &domain.CallRecord{
		ID:           po.ID,
		ModelID:      po.ModelID,
		SubjectID:    po.SubjectID,
		RequestID:    po.RequestID,
		Timestamp:    po.Timestamp,
		Success:      po.Success,
		ErrorKind:    domain.ErrorKind(po.ErrorKind),
		InputTokens:  po.InputTokens,
		OutputTokens: po.OutputTokens,
		Cost:         po.Cost,
		LatencyMs:    po.LatencyMs,
	}
}
