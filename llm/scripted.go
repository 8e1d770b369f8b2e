package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/stategraph/types"
)

// ErrScriptExhausted is returned once a ScriptedModel has no replies left.
var ErrScriptExhausted = errors.New("scripted model has no replies left")

// ScriptedModel replays a fixed list of replies in order and records every
// request it receives. It is safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	replies  []types.Message
	next     int
	requests []ChatRequest
}

// NewScriptedModel 创建按顺序回放回复的模型
func NewScriptedModel(replies ...types.Message) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

// Name implements ChatModel.
func (m *ScriptedModel) Name() string { return "scripted" }

// Chat returns the next scripted reply.
func (m *ScriptedModel) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := *req
	snapshot.Messages = append([]types.Message(nil), req.Messages...)
	m.requests = append(m.requests, snapshot)

	if m.next >= len(m.replies) {
		return nil, ErrScriptExhausted
	}
	msg := m.replies[m.next]
	m.next++
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}

	finish := FinishStop
	if msg.HasToolCalls() {
		finish = FinishToolCalls
	}
	return &ChatResponse{Provider: m.Name(), Model: req.Model, Message: msg, FinishReason: finish}, nil
}

// Requests returns a copy of the requests received so far.
func (m *ScriptedModel) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// Remaining returns how many replies are left.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies) - m.next
}
