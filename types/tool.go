package types

import (
	"encoding/json"
	"time"
)

// ToolSchema defines a tool's interface for model function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// NewToolSchema builds a ToolSchema from a JSONSchema parameter definition.
func NewToolSchema(name, description string, params *JSONSchema) ToolSchema {
	raw := json.RawMessage(`{"type":"object"}`)
	if params != nil {
		if data, err := params.ToJSON(); err == nil {
			raw = data
		}
	}
	return ToolSchema{Name: name, Description: description, Parameters: raw}
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Content renders the result as text suitable for a tool message.
func (tr ToolResult) Content() string {
	if tr.Error != "" {
		return "Error: " + tr.Error
	}
	var s string
	if err := json.Unmarshal(tr.Result, &s); err == nil {
		return s
	}
	return string(tr.Result)
}

// ToMessage converts ToolResult to a Message.
func (tr ToolResult) ToMessage() Message {
	return Message{
		Role:       RoleTool,
		Content:    tr.Content(),
		Name:       tr.Name,
		ToolCallID: tr.ToolCallID,
	}
}

// IsError returns true if the tool execution failed.
func (tr ToolResult) IsError() bool {
	return tr.Error != ""
}
