package service

import (
	"context"
	"errors"

	"smartcs/internal/biz"
	"smartcs/internal/domain"
	"smartcs/pkg/monitoring"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// InvokeRequest 调用请求。ModelID 与 GroupID 二选一。
type InvokeRequest struct {
	ModelID   string             `json:"model_id"`
	GroupID   string             `json:"group_id"`
	SubjectID string             `json:"subject_id"`
	RequestID string             `json:"request_id"`
	Input     string             `json:"input"`
	Params    *domain.CallParams `json:"params"`
}

// InvokeResponse 调用响应
type InvokeResponse struct {
	RequestID    string  `json:"request_id"`
	ModelID      string  `json:"model_id"`
	Success      bool    `json:"success"`
	OutputText   string  `json:"output_text,omitempty"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	LatencyMs    int64   `json:"latency_ms"`
	Attempts     int     `json:"attempts"`
	ErrorKind    string  `json:"error_kind,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// GatewayService 网关服务，调用链路的编排入口
type GatewayService struct {
	catalog  *biz.CatalogUsecase
	balancer *biz.Balancer
	invoker  *biz.Invoker
	health   *biz.HealthMonitor
	quota    *biz.QuotaGuard
	records  domain.CallRecordRepository
	metrics  *monitoring.GatewayMetrics
	log      *log.Helper
}

// NewGatewayService 创建网关服务
func NewGatewayService(
	catalog *biz.CatalogUsecase,
	balancer *biz.Balancer,
	invoker *biz.Invoker,
	health *biz.HealthMonitor,
	quota *biz.QuotaGuard,
	records domain.CallRecordRepository,
	metrics *monitoring.GatewayMetrics,
	logger log.Logger,
) *GatewayService {
	return &GatewayService{
		catalog:  catalog,
		balancer: balancer,
		invoker:  invoker,
		health:   health,
		quota:    quota,
		records:  records,
		metrics:  metrics,
		log:      log.NewHelper(logger),
	}
}

// validate 请求基本校验
func (r *InvokeRequest) validate() error {
	if r.SubjectID == "" || r.Input == "" {
		return domain.ErrInvalidParams
	}
	if (r.ModelID == "") == (r.GroupID == "") {
		// 必须且只能指定一个目标
		return domain.ErrInvalidParams
	}
	return nil
}

// Invoke 执行一次模型调用：配额准入 → 目标解析 → 调用/故障转移。
// 调用失败以响应标签表达，error 保留给准入拒绝与内部故障。
func (s *GatewayService) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = "req_" + uuid.New().String()
	}

	estimate := domain.Usage{Calls: 1}
	if req.Params != nil {
		estimate.Tokens = int64(req.Params.MaxTokens)
	}

	admission, err := s.quota.Admit(ctx, req.SubjectID, estimate)
	if err != nil {
		return nil, err
	}
	if !admission.Allowed {
		if s.metrics != nil {
			s.metrics.QuotaDenials.WithLabelValues(req.SubjectID, string(admission.Reason)).Inc()
		}
		return nil, domain.ErrQuotaExceeded
	}

	if req.ModelID != "" {
		return s.invokeModel(ctx, req)
	}
	return s.invokeGroup(ctx, req)
}

// invokeModel 直连指定模型
func (s *GatewayService) invokeModel(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	model, provider, err := s.catalog.GetSelectable(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}

	params := domain.DefaultCallParams(model)
	if req.Params != nil {
		params = *req.Params
	}

	result := s.invoker.InvokeModel(ctx, provider, model, req.SubjectID, req.RequestID, req.Input, params)
	return toResponse(req.RequestID, model.ID, result), nil
}

// invokeGroup 经模型组调用
func (s *GatewayService) invokeGroup(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	group, err := s.catalog.GetGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if !group.Active {
		return nil, domain.ErrNoEligibleModel
	}

	result, model, err := s.balancer.InvokeGroup(ctx, group, req.SubjectID, req.RequestID, req.Input, req.Params)
	if err != nil {
		return nil, err
	}

	return toResponse(req.RequestID, model.ID, result), nil
}

// toResponse 结果到响应的映射
func toResponse(requestID, modelID string, result *domain.CallResult) *InvokeResponse {
	return &InvokeResponse{
		RequestID:    requestID,
		ModelID:      modelID,
		Success:      result.Success,
		OutputText:   result.OutputText,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Cost:         result.Cost,
		LatencyMs:    result.LatencyMs,
		Attempts:     result.Attempts,
		ErrorKind:    string(result.ErrorKind),
		ErrorMessage: result.ErrorMessage,
	}
}

// ModelHealth 模型健康快照
func (s *GatewayService) ModelHealth(ctx context.Context, modelID string) (*domain.HealthStatus, error) {
	if _, err := s.catalog.GetModel(ctx, modelID); err != nil {
		return nil, err
	}
	return s.health.Status(modelID), nil
}

// SubjectQuota 主体配额快照
func (s *GatewayService) SubjectQuota(ctx context.Context, subjectID string) (*domain.Quota, error) {
	return s.quota.Current(ctx, subjectID)
}

// SaveQuota 保存配额限制
func (s *GatewayService) SaveQuota(ctx context.Context, quota *domain.Quota) error {
	switch quota.Cadence {
	case domain.CadenceDaily, domain.CadenceWeekly, domain.CadenceMonthly:
	default:
		return domain.ErrInvalidParams
	}
	return s.quota.SaveLimits(ctx, quota)
}

// ResetQuota 清零主体当前窗口的用量
func (s *GatewayService) ResetQuota(ctx context.Context, subjectID string) error {
	return s.quota.Reset(ctx, subjectID)
}

// ListCallRecords 分页查询调用记录
func (s *GatewayService) ListCallRecords(ctx context.Context, filter domain.CallRecordFilter, offset, limit int) ([]*domain.CallRecord, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.records.List(ctx, filter, offset, limit)
}

// IsNotFound 目标不存在类错误
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrModelNotFound) ||
		errors.Is(err, domain.ErrProviderNotFound) ||
		errors.Is(err, domain.ErrGroupNotFound) ||
		errors.Is(err, domain.ErrQuotaNotFound)
}
