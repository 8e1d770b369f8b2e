package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/llm"
	"github.com/BaSui01/stategraph/types"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	c := New(Config{
		ProviderName: "openai",
		APIKey:       "sk-test",
		BaseURL:      srv.URL + "/v1/",
		Model:        "gpt-4o-mini",
		MaxRetries:   retries,
		MaxTokens:    256,
	}, zaptest.NewLogger(t))
	c.backoff = time.Millisecond
	return c
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func TestClient_ChatWithToolCall(t *testing.T) {
	t.Parallel()

	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini-2024-07-18",
			"created": 1700000000,
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "multiply", "arguments": "{\"a\":15,\"b\":8}"}}]
				}
			}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 10, "total_tokens": 60}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{
			types.NewSystemMessage("you multiply"),
			types.NewUserMessage("What is 15 multiplied by 8?"),
		},
		Tools: []types.ToolSchema{{
			Name:        "multiply",
			Description: "Multiply two numbers",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
		ToolChoice: "auto",
	})
	require.NoError(t, err)

	// 请求
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.Equal(t, "auto", got.ToolChoice)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "multiply", got.Tools[0].Function.Name)

	// 响应
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, llm.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, time.Unix(1700000000, 0), resp.CreatedAt)
	assert.Equal(t, types.TokenUsage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60}, resp.Usage)
	require.True(t, resp.HasToolCalls())
	assert.Equal(t, types.RoleAssistant, resp.Message.Role)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"a":15,"b":8}`, string(resp.Message.ToolCalls[0].Arguments))
}

func TestClient_ToolMessagesOnTheWire(t *testing.T) {
	t.Parallel()

	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"120"}}]}`))
	}))
	defer srv.Close()

	call := types.ToolCall{ID: "call_1", Name: "multiply", Arguments: json.RawMessage(`{"a":15,"b":8}`)}
	resp, err := newTestClient(t, srv, 0).Chat(context.Background(), &llm.ChatRequest{
		Model: "custom-model",
		Messages: []types.Message{
			types.NewUserMessage("15 * 8"),
			types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{call}),
			types.NewToolMessage("call_1", "multiply", "120"),
		},
		ToolChoice: "auto",
	})
	require.NoError(t, err)
	assert.Equal(t, "120", resp.Message.Content)
	assert.Equal(t, types.TokenUsage{}, resp.Usage)

	assert.Equal(t, "custom-model", got.Model)
	assert.Empty(t, got.ToolChoice, "tool_choice is dropped without tools")
	require.Len(t, got.Messages, 3)
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.Equal(t, `{"a":15,"b":8}`, got.Messages[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", got.Messages[2].Role)
	assert.Equal(t, "call_1", got.Messages[2].ToolCallID)
}

func TestClient_RetriesRetryableErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 2).Chat(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 1).Chat(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, llm.ErrUpstreamError, llm.CodeOf(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).Chat(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.ErrUnauthorized, lerr.Code)
	assert.Equal(t, "bad key", lerr.Message)
	assert.Equal(t, http.StatusUnauthorized, lerr.HTTPStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).Chat(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	assert.Equal(t, llm.ErrEmptyResponse, llm.CodeOf(err))
}

func TestClient_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 读完请求体后服务端才会感知客户端断开
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv, 3).Chat(ctx, &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// Errors and configuration
// ---------------------------------------------------------------------------

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		code      llm.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "", llm.ErrUnauthorized, false},
		{http.StatusForbidden, "", llm.ErrForbidden, false},
		{http.StatusTooManyRequests, "", llm.ErrRateLimited, true},
		{http.StatusBadRequest, "You exceeded your current quota", llm.ErrQuotaExceeded, false},
		{http.StatusBadRequest, "bad field", llm.ErrInvalidRequest, false},
		{http.StatusGatewayTimeout, "", llm.ErrUpstreamTimeout, true},
		{http.StatusBadGateway, "", llm.ErrUpstreamError, true},
		{529, "", llm.ErrModelOverloaded, true},
		{http.StatusInternalServerError, "", llm.ErrUpstreamError, true},
		{http.StatusNotFound, "", llm.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		e := mapHTTPError(tt.status, tt.msg, "p")
		assert.Equal(t, tt.code, e.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, e.Retryable, "status %d", tt.status)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	cfg.Provider = "openai"
	cfg.APIKey = "k"
	cfg.Temperature = 0.5

	c := New(ConfigFrom(cfg), nil)
	assert.Equal(t, "openai", c.Name())
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", c.endpoint())
	assert.Equal(t, float32(0.5), c.cfg.Temperature)
	assert.Equal(t, 2, c.cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, c.http.Timeout)
}
