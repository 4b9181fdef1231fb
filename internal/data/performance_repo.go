package data

import (
	"context"
	"errors"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModelPerformancePO 模型性能日统计持久化对象
type ModelPerformancePO struct {
	ModelID           string    `gorm:"primaryKey;size:64"`
	Date              time.Time `gorm:"primaryKey"`
	TotalCalls        int64     `gorm:"not null"`
	SuccessfulCalls   int64     `gorm:"not null"`
	FailedCalls       int64     `gorm:"not null"`
	TotalInputTokens  int64     `gorm:"not null"`
	TotalOutputTokens int64     `gorm:"not null"`
	TotalCost         float64   `gorm:"type:decimal(12,6);not null"`
	AvgLatencyMs      float64   `gorm:"not null"`
	SuccessRate       float64   `gorm:"not null"`
	UpdatedAt         time.Time
}

// TableName 表名
func (ModelPerformancePO) TableName() string {
	return "model_gateway.model_performance"
}

// PerformanceRepository 性能日统计仓储实现
type PerformanceRepository struct {
	data *Data
	log  *log.Helper
}

// NewPerformanceRepo 创建性能仓储
func NewPerformanceRepo(data *Data, logger log.Logger) domain.PerformanceRepository {
	return &PerformanceRepository{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Upsert 写入或更新日统计
func (r *PerformanceRepository) Upsert(ctx context.Context, perf *domain.ModelPerformance) error {
	po := &ModelPerformancePO{
		ModelID:           perf.ModelID,
		Date:              perf.Date,
		TotalCalls:        perf.TotalCalls,
		SuccessfulCalls:   perf.SuccessfulCalls,
		FailedCalls:       perf.FailedCalls,
		TotalInputTokens:  perf.TotalInputTokens,
		TotalOutputTokens: perf.TotalOutputTokens,
		TotalCost:         perf.TotalCost,
		AvgLatencyMs:      perf.AvgLatencyMs,
		SuccessRate:       perf.SuccessRate,
		UpdatedAt:         time.Now(),
	}

	if err := r.data.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "model_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_calls", "successful_calls", "failed_calls",
				"total_input_tokens", "total_output_tokens",
				"total_cost", "avg_latency_ms", "success_rate", "updated_at",
			}),
		}).
		Create(po).Error; err != nil {
		r.log.Errorf("failed to upsert performance: %v", err)
		return err
	}

	return nil
}

// GetByModelAndDate 查询某模型某天的统计
func (r *PerformanceRepository) GetByModelAndDate(ctx context.Context, modelID string, day time.Time) (*domain.ModelPerformance, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var po ModelPerformancePO
	if err := r.data.db.WithContext(ctx).
		Where("model_id = ? AND date = ?", modelID, dayStart).
		First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrModelNotFound
		}
		r.log.Errorf("failed to get performance: %v", err)
		return nil, err
	}

	return &domain.ModelPerformance{
		ModelID:           po.ModelID,
		Date:              po.Date,
		TotalCalls:        po.TotalCalls,
		SuccessfulCalls:   po.SuccessfulCalls,
		FailedCalls:       po.FailedCalls,
		TotalInputTokens:  po.TotalInputTokens,
		TotalOutputTokens: po.TotalOutputTokens,
		TotalCost:         po.TotalCost,
		AvgLatencyMs:      po.AvgLatencyMs,
		SuccessRate:       po.SuccessRate,
		UpdatedAt:         po.UpdatedAt,
	}, nil
}
