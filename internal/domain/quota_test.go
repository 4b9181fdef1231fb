package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodWindow(t *testing.T) {
	// 2026-08-19 周三
	now := time.Date(2026, 8, 19, 15, 30, 45, 0, time.UTC)

	testCases := []struct {
		name          string
		cadence       QuotaCadence
		expectedStart time.Time
		expectedEnd   time.Time
	}{
		{
			name:          "日周期 - 截断到当天零点",
			cadence:       CadenceDaily,
			expectedStart: time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "周周期 - 截断到周一",
			cadence:       CadenceWeekly,
			expectedStart: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "月周期 - 截断到月初",
			cadence:       CadenceMonthly,
			expectedStart: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := PeriodWindow(now, tc.cadence)
			assert.Equal(t, tc.expectedStart, start)
			assert.Equal(t, tc.expectedEnd, end)
		})
	}
}

func TestPeriodWindow_SameWindowSameBounds(t *testing.T) {
	// 同一窗口内任意两个时刻必须得到相同边界
	a := time.Date(2026, 8, 19, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 8, 19, 23, 59, 59, 0, time.UTC)

	startA, endA := PeriodWindow(a, CadenceDaily)
	startB, endB := PeriodWindow(b, CadenceDaily)
	assert.Equal(t, startA, startB)
	assert.Equal(t, endA, endB)
}

func TestPeriodWindow_SundayBelongsToPreviousWeek(t *testing.T) {
	// 周日属于上周一开始的窗口
	sunday := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	start, _ := PeriodWindow(sunday, CadenceWeekly)
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)
}

func TestQuota_ExceededDimension(t *testing.T) {
	testCases := []struct {
		name           string
		limits         QuotaLimits
		used           Usage
		reserve        Usage
		expectedReason DenyReason
		expectExceeded bool
	}{
		{
			name:           "未超限",
			limits:         QuotaLimits{MaxCalls: 100, MaxTokens: 1000, MaxCost: 10},
			used:           Usage{Calls: 50, Tokens: 500, Cost: 5},
			expectExceeded: false,
		},
		{
			name:           "调用数达到上限",
			limits:         QuotaLimits{MaxCalls: 100},
			used:           Usage{Calls: 100},
			expectedReason: DenyMaxCalls,
			expectExceeded: true,
		},
		{
			name:           "上限为零不限制",
			limits:         QuotaLimits{},
			used:           Usage{Calls: 1 << 40, Tokens: 1 << 40, Cost: 1e12},
			expectExceeded: false,
		},
		{
			name:           "多维度超限时按固定顺序返回调用数",
			limits:         QuotaLimits{MaxCalls: 10, MaxTokens: 10, MaxCost: 1},
			used:           Usage{Calls: 10, Tokens: 10, Cost: 1},
			expectedReason: DenyMaxCalls,
			expectExceeded: true,
		},
		{
			name:           "Token超限",
			limits:         QuotaLimits{MaxCalls: 100, MaxTokens: 1000},
			used:           Usage{Calls: 1, Tokens: 1000},
			expectedReason: DenyMaxTokens,
			expectExceeded: true,
		},
		{
			name:           "成本超限",
			limits:         QuotaLimits{MaxCost: 10},
			used:           Usage{Cost: 10.5},
			expectedReason: DenyMaxCost,
			expectExceeded: true,
		},
		{
			name:           "乐观模式 - 差一次调用仍放行",
			limits:         QuotaLimits{MaxCalls: 100},
			used:           Usage{Calls: 99},
			expectExceeded: false,
		},
		{
			name:           "悲观模式 - 预留量使其超限",
			limits:         QuotaLimits{MaxTokens: 1000},
			used:           Usage{Tokens: 950},
			reserve:        Usage{Tokens: 100},
			expectedReason: DenyMaxTokens,
			expectExceeded: true,
		},
		{
			name:           "悲观模式 - 预留量恰好占满放行",
			limits:         QuotaLimits{MaxTokens: 1000},
			used:           Usage{Tokens: 900},
			reserve:        Usage{Tokens: 100},
			expectExceeded: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := &Quota{Limits: tc.limits, Used: tc.used}
			reason, exceeded := q.ExceededDimension(tc.reserve)
			assert.Equal(t, tc.expectExceeded, exceeded)
			if tc.expectExceeded {
				assert.Equal(t, tc.expectedReason, reason)
			}
		})
	}
}

func TestUsage_Add(t *testing.T) {
	total := Usage{Calls: 1, Tokens: 100, Cost: 0.5}.Add(Usage{Calls: 2, Tokens: 200, Cost: 1.5})
	assert.Equal(t, Usage{Calls: 3, Tokens: 300, Cost: 2.0}, total)
}
