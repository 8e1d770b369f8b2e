package llm

import (
	"context"
	"time"

	"github.com/BaSui01/stategraph/types"
)

// ChatModel 统一的聊天模型接口
type ChatModel interface {
	// Chat 发起同步聊天请求，返回完整响应
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回模型实现的唯一标识
	Name() string
}

// ChatRequest is one round of conversation sent to a model. Tools lists the
// schemas the model may call; the model never executes them itself.
type ChatRequest struct {
	Model       string             `json:"model,omitempty"`
	Messages    []types.Message    `json:"messages"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string             `json:"tool_choice,omitempty"` // auto/none/<tool name>
	Temperature float32            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

// HasTool reports whether the request offers the named tool.
func (r *ChatRequest) HasTool(name string) bool {
	for _, t := range r.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// ChatResponse carries the assistant message, which may request tool calls.
type ChatResponse struct {
	ID           string           `json:"id,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	Model        string           `json:"model,omitempty"`
	Message      types.Message    `json:"message"`
	FinishReason string           `json:"finish_reason,omitempty"`
	Usage        types.TokenUsage `json:"usage"`
	CreatedAt    time.Time        `json:"created_at,omitempty"`
}

// HasToolCalls reports whether the model asked for tool calls.
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && r.Message.HasToolCalls()
}

// Finish reasons
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)
