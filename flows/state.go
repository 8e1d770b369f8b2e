package flows

import (
	"github.com/BaSui01/stategraph/types"
	"github.com/BaSui01/stategraph/workflow"
)

// 状态字段名
const (
	FieldInput        = "input_text"
	FieldProcessed    = "processed_text"
	FieldTransformed  = "transformed_text"
	FieldOutput       = "output_text"
	FieldStep         = "step"
	FieldToolReport   = "tool_results"
	FieldMessages     = "messages"
	FieldPendingCalls = "pending_calls"
	FieldCallResults  = "call_results"
)

// Schema returns the state schema shared by every example flow. messages is
// the only accumulating field; everything else is last-write-wins.
func Schema() *workflow.Schema {
	return workflow.MustSchema(
		workflow.OverwriteField(FieldInput),
		workflow.OverwriteField(FieldProcessed),
		workflow.OverwriteField(FieldTransformed),
		workflow.OverwriteField(FieldOutput),
		workflow.OverwriteField(FieldStep),
		workflow.OverwriteField(FieldToolReport),
		workflow.AppendField(FieldMessages).WithDefault([]types.Message{}),
		workflow.OverwriteField(FieldPendingCalls).WithDefault([]types.ToolCall{}),
		workflow.OverwriteField(FieldCallResults),
	)
}

// Input builds the initial state update for a run.
func Input(text string) workflow.Partial {
	return workflow.Partial{FieldInput: text}
}
