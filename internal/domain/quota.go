package domain

import "time"

// QuotaCadence 配额重置周期
type QuotaCadence string

const (
	CadenceDaily   QuotaCadence = "daily"   // 每日
	CadenceWeekly  QuotaCadence = "weekly"  // 每周
	CadenceMonthly QuotaCadence = "monthly" // 每月
)

// PeriodWindow 计算 now 所在的配额窗口边界。
// 起点按周期截断，保证同一窗口内任意时刻计算结果一致（reset 幂等的基础）。
func PeriodWindow(now time.Time, cadence QuotaCadence) (start, end time.Time) {
	now = now.UTC()
	switch cadence {
	case CadenceWeekly:
		// 周一为一周起点
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)
	case CadenceMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	default: // daily
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}

// Usage 配额三个维度的用量
type Usage struct {
	Calls  int64
	Tokens int64
	Cost   float64
}

// Add 累加用量
func (u Usage) Add(delta Usage) Usage {
	return Usage{
		Calls:  u.Calls + delta.Calls,
		Tokens: u.Tokens + delta.Tokens,
		Cost:   u.Cost + delta.Cost,
	}
}

// QuotaLimits 配额限制，0 表示该维度不限制
type QuotaLimits struct {
	MaxCalls  int64
	MaxTokens int64
	MaxCost   float64
}

// Quota 配额快照：限制 + 窗口 + 当前用量
type Quota struct {
	SubjectID   string
	Cadence     QuotaCadence
	PeriodStart time.Time
	PeriodEnd   time.Time
	Limits      QuotaLimits
	Used        Usage
	UpdatedAt   time.Time
}

// DenyReason 配额拒绝原因
type DenyReason string

const (
	DenyMaxCalls  DenyReason = "max_calls_exceeded"
	DenyMaxTokens DenyReason = "max_tokens_exceeded"
	DenyMaxCost   DenyReason = "max_cost_exceeded"
)

// ExceededDimension 按 调用次数 → Token → 成本 的固定顺序检查，
// 返回第一个达到或超过上限的维度。reserve 为悲观模式下的预留量，
// 乐观模式传零值，此时仅按已用量判断。
func (q *Quota) ExceededDimension(reserve Usage) (DenyReason, bool) {
	if exceeded(q.Used.Calls, reserve.Calls, q.Limits.MaxCalls) {
		return DenyMaxCalls, true
	}
	if exceeded(q.Used.Tokens, reserve.Tokens, q.Limits.MaxTokens) {
		return DenyMaxTokens, true
	}
	if exceededFloat(q.Used.Cost, reserve.Cost, q.Limits.MaxCost) {
		return DenyMaxCost, true
	}
	return "", false
}

func exceeded(used, reserve, limit int64) bool {
	if limit <= 0 {
		return false
	}
	return used >= limit || used+reserve > limit
}

func exceededFloat(used, reserve, limit float64) bool {
	if limit <= 0 {
		return false
	}
	return used >= limit || used+reserve > limit
}
