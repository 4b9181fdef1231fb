package biz

import (
	"context"
	"errors"
	"time"

	"smartcs/internal/conf"
	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// Admission 配额准入结果
type Admission struct {
	Allowed     bool
	Reason      domain.DenyReason
	SubjectID   string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// QuotaGuard 配额守卫。准入在调用前判定，用量在调用后按实际
// 消耗提交（乐观记账）；开启 reserve_estimate 后准入时把预估
// 消耗一并计入判定，换取不超额的保证。
// 用量计数器按 主体+窗口起点 分键，窗口轮换即自然归零。
type QuotaGuard struct {
	configs domain.QuotaConfigRepository
	usage   domain.QuotaUsageStore
	cfg     conf.QuotaConfig
	clock   func() time.Time
	log     *log.Helper
}

// NewQuotaGuard 创建配额守卫
func NewQuotaGuard(configs domain.QuotaConfigRepository, usage domain.QuotaUsageStore, cfg conf.QuotaConfig, logger log.Logger) *QuotaGuard {
	return &QuotaGuard{
		configs: configs,
		usage:   usage,
		cfg:     cfg,
		clock:   time.Now,
		log:     log.NewHelper(logger),
	}
}

// SetClock 注入时钟（测试用）
func (g *QuotaGuard) SetClock(clock func() time.Time) {
	g.clock = clock
}

// Admit 配额准入。未配置配额的主体直接放行。
// estimate 仅在悲观模式下参与判定。
func (g *QuotaGuard) Admit(ctx context.Context, subjectID string, estimate domain.Usage) (*Admission, error) {
	quota, err := g.configs.GetBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaNotFound) {
			return &Admission{Allowed: true, SubjectID: subjectID}, nil
		}
		return nil, err
	}

	start, end := domain.PeriodWindow(g.clock(), quota.Cadence)
	quota.PeriodStart = start
	quota.PeriodEnd = end

	used, err := g.usage.GetUsage(ctx, subjectID, start)
	if err != nil {
		return nil, err
	}
	quota.Used = used

	reserve := domain.Usage{}
	if g.cfg.ReserveEstimate {
		reserve = estimate
	}

	if reason, exceeded := quota.ExceededDimension(reserve); exceeded {
		g.log.Infof("quota denied subject=%s reason=%s calls=%d tokens=%d cost=%.4f",
			subjectID, reason, used.Calls, used.Tokens, used.Cost)
		return &Admission{
			Allowed:     false,
			Reason:      reason,
			SubjectID:   subjectID,
			PeriodStart: start,
			PeriodEnd:   end,
		}, nil
	}

	return &Admission{
		Allowed:     true,
		SubjectID:   subjectID,
		PeriodStart: start,
		PeriodEnd:   end,
	}, nil
}

// Commit 提交一次调用的实际消耗。未配置配额的主体为空操作。
func (g *QuotaGuard) Commit(ctx context.Context, subjectID string, delta domain.Usage) error {
	quota, err := g.configs.GetBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaNotFound) {
			return nil
		}
		return err
	}

	start, _ := domain.PeriodWindow(g.clock(), quota.Cadence)
	if _, err := g.usage.AddUsage(ctx, subjectID, start, delta); err != nil {
		return err
	}
	return nil
}

// Current 当前窗口的配额快照
func (g *QuotaGuard) Current(ctx context.Context, subjectID string) (*domain.Quota, error) {
	quota, err := g.configs.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	start, end := domain.PeriodWindow(g.clock(), quota.Cadence)
	quota.PeriodStart = start
	quota.PeriodEnd = end

	used, err := g.usage.GetUsage(ctx, subjectID, start)
	if err != nil {
		return nil, err
	}
	quota.Used = used
	return quota, nil
}

// SaveLimits 保存配额限制
func (g *QuotaGuard) SaveLimits(ctx context.Context, quota *domain.Quota) error {
	return g.configs.Save(ctx, quota)
}

// Reset 清零主体当前窗口的用量。同一窗口内重复执行结果相同。
func (g *QuotaGuard) Reset(ctx context.Context, subjectID string) error {
	quota, err := g.configs.GetBySubject(ctx, subjectID)
	if err != nil {
		return err
	}
	start, _ := domain.PeriodWindow(g.clock(), quota.Cadence)
	return g.usage.ResetUsage(ctx, subjectID, start)
}

// ResetTick 窗口轮换清理。计数器按窗口起点分键，新窗口从零
// 开始无需显式清零，这里清理上一窗口的残留键。同一窗口内重复
// 执行得到相同结果。
func (g *QuotaGuard) ResetTick(ctx context.Context) error {
	subjects, err := g.configs.ListSubjects(ctx)
	if err != nil {
		return err
	}

	now := g.clock()
	for _, subjectID := range subjects {
		quota, err := g.configs.GetBySubject(ctx, subjectID)
		if err != nil {
			g.log.Warnf("failed to load quota for %s: %v", subjectID, err)
			continue
		}

		start, _ := domain.PeriodWindow(now, quota.Cadence)
		prevStart, _ := domain.PeriodWindow(start.Add(-time.Second), quota.Cadence)
		if err := g.usage.ResetUsage(ctx, subjectID, prevStart); err != nil {
			g.log.Warnf("failed to reset usage for %s: %v", subjectID, err)
		}
	}
	return nil
}
