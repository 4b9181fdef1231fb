package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"smartcs/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *HTTPProviderClient {
	return NewHTTPProviderClient(log.NewStdLogger(os.Stdout))
}

func openaiProviderFor(url string) (*domain.Provider, *domain.Model) {
	provider := domain.NewProvider("openai-main", domain.ProviderTypeOpenAI, url, "sk-test")
	model := domain.NewModel(provider.ID, "gpt-4o", "GPT-4o")
	return provider, model
}

func TestHTTPProviderClient_OpenAISuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req["model"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello there"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 34},
		})
	}))
	defer srv.Close()

	provider, model := openaiProviderFor(srv.URL)
	resp, err := newTestClient().Send(context.Background(), provider, model, "hi", domain.DefaultCallParams(model))

	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.OutputText)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 34, resp.OutputTokens)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestHTTPProviderClient_AnthropicSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"text": "claude says hi"}},
			"usage":   map[string]int{"input_tokens": 5, "output_tokens": 7},
		})
	}))
	defer srv.Close()

	provider := domain.NewProvider("anthropic-main", domain.ProviderTypeAnthropic, srv.URL, "sk-test")
	model := domain.NewModel(provider.ID, "claude-sonnet", "Claude Sonnet")

	resp, err := newTestClient().Send(context.Background(), provider, model, "hi", domain.DefaultCallParams(model))

	require.NoError(t, err)
	assert.Equal(t, "claude says hi", resp.OutputText)
	assert.Equal(t, 5, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)
}

func TestHTTPProviderClient_StatusClassification(t *testing.T) {
	testCases := []struct {
		name         string
		status       int
		expectedKind domain.ErrorKind
	}{
		{name: "401归为鉴权失败", status: http.StatusUnauthorized, expectedKind: domain.ErrorKindAuthError},
		{name: "403归为鉴权失败", status: http.StatusForbidden, expectedKind: domain.ErrorKindAuthError},
		{name: "429归为限流", status: http.StatusTooManyRequests, expectedKind: domain.ErrorKindRateLimited},
		{name: "400归为参数错误", status: http.StatusBadRequest, expectedKind: domain.ErrorKindValidationError},
		{name: "504归为超时", status: http.StatusGatewayTimeout, expectedKind: domain.ErrorKindTimeout},
		{name: "500归为提供商不可用", status: http.StatusInternalServerError, expectedKind: domain.ErrorKindProviderUnavailable},
		{name: "503归为提供商不可用", status: http.StatusServiceUnavailable, expectedKind: domain.ErrorKindProviderUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			provider, model := openaiProviderFor(srv.URL)
			_, err := newTestClient().Send(context.Background(), provider, model, "hi", domain.DefaultCallParams(model))

			require.Error(t, err)
			pe := ClassifyError(err)
			assert.Equal(t, tc.expectedKind, pe.Kind)
		})
	}
}

func TestHTTPProviderClient_MalformedResponse(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "非法JSON", body: `{"choices": [`},
		{name: "缺少choices", body: `{"usage": {"prompt_tokens": 1}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			provider, model := openaiProviderFor(srv.URL)
			_, err := newTestClient().Send(context.Background(), provider, model, "hi", domain.DefaultCallParams(model))

			require.Error(t, err)
			assert.Equal(t, domain.ErrorKindInvalidResponse, ClassifyError(err).Kind)
		})
	}
}

func TestHTTPProviderClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	provider, model := openaiProviderFor(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient().Send(ctx, provider, model, "hi", domain.DefaultCallParams(model))

	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindTimeout, ClassifyError(err).Kind)
}

func TestHTTPProviderClient_ConnectionRefused(t *testing.T) {
	provider, model := openaiProviderFor("http://127.0.0.1:1")

	_, err := newTestClient().Send(context.Background(), provider, model, "hi", domain.DefaultCallParams(model))

	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindProviderUnavailable, ClassifyError(err).Kind)
}

func TestHTTPProviderClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider, model := openaiProviderFor(srv.URL)
	client := newTestClient()

	for i := 0; i < 10; i++ {
		_, err := client.Send(context.Background(), provider, model, "hi", domain.DefaultCallParams(model))
		require.Error(t, err)
	}

	// 熔断后不再打到上游
	assert.Less(t, requests, 10)
}
