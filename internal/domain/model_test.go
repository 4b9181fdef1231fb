package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_CalculateCost(t *testing.T) {
	testCases := []struct {
		name         string
		inputPrice   float64
		outputPrice  float64
		inputTokens  int
		outputTokens int
		expected     float64
	}{
		{
			name:        "基础定价",
			inputPrice:  0.5, outputPrice: 1.5,
			inputTokens: 1000, outputTokens: 1000,
			expected: 2.0,
		},
		{
			name:        "不足1K按比例",
			inputPrice:  0.001, outputPrice: 0.002,
			inputTokens: 100, outputTokens: 200,
			expected: 0.0005,
		},
		{
			name:        "零Token零成本",
			inputPrice:  1.0, outputPrice: 1.0,
			inputTokens: 0, outputTokens: 0,
			expected: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := &Model{InputPricePerK: tc.inputPrice, OutputPricePerK: tc.outputPrice}
			assert.InDelta(t, tc.expected, m.CalculateCost(tc.inputTokens, tc.outputTokens), 1e-9)
		})
	}
}

func TestModel_SetPriority(t *testing.T) {
	m := NewModel("prov_1", "gpt-4o", "GPT-4o")

	require.NoError(t, m.SetPriority(80))
	assert.Equal(t, 80, m.Priority)

	assert.ErrorIs(t, m.SetPriority(-1), ErrInvalidPriority)
	assert.ErrorIs(t, m.SetPriority(101), ErrInvalidPriority)
	assert.Equal(t, 80, m.Priority)
}

func TestModel_HasCapability(t *testing.T) {
	m := NewModel("prov_1", "gpt-4o", "GPT-4o")
	m.Capabilities = []string{"chat", "vision"}

	assert.True(t, m.HasCapability("chat"))
	assert.False(t, m.HasCapability("embedding"))
}

func TestModel_Timeout(t *testing.T) {
	m := NewModel("prov_1", "gpt-4o", "GPT-4o")
	m.TimeoutSec = 15
	assert.Equal(t, 15*time.Second, m.Timeout())

	m.TimeoutSec = 0
	assert.Equal(t, 30*time.Second, m.Timeout())
}

func TestModel_Validate(t *testing.T) {
	m := NewModel("prov_1", "gpt-4o", "GPT-4o")
	require.NoError(t, m.Validate())

	m.Name = ""
	assert.ErrorIs(t, m.Validate(), ErrInvalidModelName)
}

func TestCallParams_Validate(t *testing.T) {
	m := NewModel("prov_1", "gpt-4o", "GPT-4o")
	m.MaxTokens = 4096

	testCases := []struct {
		name    string
		params  CallParams
		wantErr bool
	}{
		{name: "合法参数", params: CallParams{Temperature: 0.7, TopP: 1.0, MaxTokens: 1024}},
		{name: "温度越界", params: CallParams{Temperature: 2.5, TopP: 1.0, MaxTokens: 1024}, wantErr: true},
		{name: "温度为负", params: CallParams{Temperature: -0.1, TopP: 1.0, MaxTokens: 1024}, wantErr: true},
		{name: "TopP越界", params: CallParams{Temperature: 0.7, TopP: 1.1, MaxTokens: 1024}, wantErr: true},
		{name: "MaxTokens为零", params: CallParams{Temperature: 0.7, TopP: 1.0, MaxTokens: 0}, wantErr: true},
		{name: "MaxTokens超过模型上限", params: CallParams{Temperature: 0.7, TopP: 1.0, MaxTokens: 8192}, wantErr: true},
		{name: "边界值合法", params: CallParams{Temperature: 2.0, TopP: 0, MaxTokens: 4096}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate(m)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestModelGroup_Weights(t *testing.T) {
	g := NewModelGroup("chat-pool", StrategyRoundRobin)

	require.NoError(t, g.SetWeight("model_a", 70))
	require.NoError(t, g.SetWeight("model_b", 30))
	assert.Equal(t, 70, g.WeightOf("model_a"))

	// 更新已有成员
	require.NoError(t, g.SetWeight("model_a", 50))
	assert.Equal(t, 50, g.WeightOf("model_a"))
	assert.Len(t, g.Weights, 2)

	// 负权重被拒绝
	assert.ErrorIs(t, g.SetWeight("model_c", -1), ErrInvalidWeight)

	g.RemoveModel("model_b")
	assert.Equal(t, 0, g.WeightOf("model_b"))
	assert.Len(t, g.Weights, 1)
}

func TestStrategy_Valid(t *testing.T) {
	for _, s := range []Strategy{
		StrategyRoundRobin, StrategyWeightedRandom, StrategyRandom,
		StrategyLeastInFlight, StrategyFastestResponse, StrategyCheapest,
	} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Strategy("priority").Valid())
}

func TestErrorKind_Retryable(t *testing.T) {
	retryable := []ErrorKind{ErrorKindTimeout, ErrorKindRateLimited, ErrorKindProviderUnavailable}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), string(k))
	}

	nonRetryable := []ErrorKind{
		ErrorKindAuthError, ErrorKindValidationError, ErrorKindInvalidResponse,
		ErrorKindQuotaExceeded, ErrorKindNoEligibleModel, ErrorKindCancelled,
	}
	for _, k := range nonRetryable {
		assert.False(t, k.Retryable(), string(k))
	}
}
