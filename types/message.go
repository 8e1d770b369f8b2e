package types

import "encoding/json"

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments stay raw so
// the tool executor can validate them against the tool's parameter schema.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one conversation turn. It carries no timestamp, so equal runs
// produce equal message histories.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

func NewSystemMessage(content string) Message    { return NewMessage(RoleSystem, content) }
func NewUserMessage(content string) Message      { return NewMessage(RoleUser, content) }
func NewAssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// NewToolMessage 创建工具结果消息，toolCallID 对应发起调用的 ToolCall.ID
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// WithToolCalls returns a copy of m requesting calls.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// LastMessage returns the final message of msgs, if any.
func LastMessage(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}
