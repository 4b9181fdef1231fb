package service

import (
	"context"
	"time"

	"smartcs/internal/biz"
	"smartcs/internal/conf"
	"smartcs/internal/domain"
	"smartcs/pkg/monitoring"

	"github.com/go-kratos/kratos/v2/log"
)

// probeSubjectID 主动探测使用的保留主体，不参与配额配置
const probeSubjectID = "health_probe"

// Scheduler 周期任务调度器：健康探测、配额窗口清理、性能日报。
// 每类任务都是可单独触发的入口，定时循环只是驱动方式。
type Scheduler struct {
	catalog *biz.CatalogUsecase
	invoker *biz.Invoker
	health  *biz.HealthMonitor
	quota   *biz.QuotaGuard
	records domain.CallRecordRepository
	perf    domain.PerformanceRepository
	metrics *monitoring.GatewayMetrics
	cfg     conf.SchedulerConfig

	stopCh chan struct{}
	log    *log.Helper
}

// NewScheduler 创建调度器
func NewScheduler(
	catalog *biz.CatalogUsecase,
	invoker *biz.Invoker,
	health *biz.HealthMonitor,
	quota *biz.QuotaGuard,
	records domain.CallRecordRepository,
	perf domain.PerformanceRepository,
	metrics *monitoring.GatewayMetrics,
	cfg conf.SchedulerConfig,
	logger log.Logger,
) *Scheduler {
	return &Scheduler{
		catalog: catalog,
		invoker: invoker,
		health:  health,
		quota:   quota,
		records: records,
		perf:    perf,
		metrics: metrics,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		log:     log.NewHelper(logger),
	}
}

// Start 启动周期任务
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.cfg.HealthProbeInterval, s.HealthProbeTick)
	go s.loop(ctx, s.cfg.QuotaResetInterval, s.QuotaResetTick)
	go s.loop(ctx, s.cfg.RollupInterval, s.PerformanceRollupTick)
	s.log.Info("scheduler started")
}

// Stop 停止周期任务
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.log.Info("scheduler stopped")
}

// loop 定时循环
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// HealthProbeTick 对降级和不可用的模型发起轻量探测，
// 探测结果作为普通观测进入健康窗口，推动状态爬升或保持摘除。
func (s *Scheduler) HealthProbeTick(ctx context.Context) {
	for _, modelID := range s.health.ModelsNeedingProbe() {
		model, provider, err := s.catalog.GetSelectable(ctx, modelID)
		if err != nil {
			// 已停用或删除的模型不再探测
			continue
		}

		params := domain.CallParams{Temperature: 0, TopP: 1.0, MaxTokens: 1}
		result := s.invoker.InvokeModel(ctx, provider, model, probeSubjectID, "", "ping", params)
		s.log.Debugf("health probe model=%s success=%v kind=%s", modelID, result.Success, result.ErrorKind)
	}

	s.health.SaveSnapshots(ctx)
	s.publishHealthMetrics(ctx)
}

// publishHealthMetrics 导出各模型健康状态指标
func (s *Scheduler) publishHealthMetrics(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	models, err := s.catalog.ListModels(ctx, domain.ModelFilter{OnlyActive: true})
	if err != nil {
		return
	}
	for _, m := range models {
		var v float64
		switch s.health.StateOf(m.ID) {
		case domain.HealthStateHealthy:
			v = 2
		case domain.HealthStateDegraded:
			v = 1
		}
		s.metrics.HealthState.WithLabelValues(m.ID).Set(v)
	}
}

// QuotaResetTick 配额窗口轮换清理
func (s *Scheduler) QuotaResetTick(ctx context.Context) {
	if err := s.quota.ResetTick(ctx); err != nil {
		s.log.Errorf("quota reset tick: %v", err)
	}
}

// PerformanceRollupTick 从调用记录汇总当天的模型性能日报
func (s *Scheduler) PerformanceRollupTick(ctx context.Context) {
	models, err := s.catalog.ListModels(ctx, domain.ModelFilter{})
	if err != nil {
		s.log.Errorf("performance rollup: list models: %v", err)
		return
	}

	today := time.Now().UTC()
	for _, m := range models {
		perf, err := s.records.SummarizeDay(ctx, m.ID, today)
		if err != nil {
			s.log.Warnf("performance rollup: summarize %s: %v", m.ID, err)
			continue
		}
		if perf.TotalCalls == 0 {
			continue
		}
		if err := s.perf.Upsert(ctx, perf); err != nil {
			s.log.Warnf("performance rollup: upsert %s: %v", m.ID, err)
		}
	}
}
