package flows

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/llm"
	"github.com/BaSui01/stategraph/tools"
	"github.com/BaSui01/stategraph/types"
	"github.com/BaSui01/stategraph/workflow"
)

// Tool loop route labels
const (
	RouteTools = "tools"
	RouteEnd   = "end"
)

// PendingCallsRouter routes to RouteTools while field holds at least one
// []types.ToolCall entry, and to RouteEnd otherwise.
func PendingCallsRouter(field string) workflow.Router {
	return func(_ context.Context, s workflow.State) (string, error) {
		if len(workflow.ValueOr(s, field, []types.ToolCall(nil))) > 0 {
			return RouteTools, nil
		}
		return RouteEnd, nil
	}
}

// ToolNode executes the calls pending in pendingField and clears it.
// The results, one per call and in call order, are written to resultsField.
// When messagesField is not empty each result is also appended to it as a
// tool message. A failed call is reported in its result and never fails
// the node.
func ToolNode(exec *tools.Executor, pendingField, resultsField, messagesField string) workflow.NodeFunc {
	return func(ctx context.Context, s workflow.State) (workflow.Partial, error) {
		raw, _ := s.Get(pendingField)
		calls, ok := raw.([]types.ToolCall)
		if raw != nil && !ok {
			return nil, fmt.Errorf("%s holds %T, want []types.ToolCall", pendingField, raw)
		}

		results := exec.Execute(ctx, calls)
		out := workflow.Partial{
			pendingField: []types.ToolCall{},
			resultsField: results,
		}
		if messagesField != "" {
			msgs := make([]types.Message, len(results))
			for i, r := range results {
				msgs[i] = r.ToMessage()
			}
			out[messagesField] = msgs
		}
		return out, nil
	}
}

// MessageInput starts a conversation from input_text.
func MessageInput(_ context.Context, s workflow.State) (workflow.Partial, error) {
	return workflow.Partial{
		FieldMessages: []types.Message{types.NewUserMessage(s.String(FieldInput))},
		FieldStep:     "input_processed",
	}, nil
}

// Agent asks model for the next turn, offering every tool in registry. The
// assistant message is appended to messages, and its tool calls (possibly
// none) replace pending_calls.
func Agent(model llm.ChatModel, registry *tools.Registry, logger *zap.Logger) workflow.NodeFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "agent_node"))

	return func(ctx context.Context, s workflow.State) (workflow.Partial, error) {
		msgs := workflow.ValueOr(s, FieldMessages, []types.Message(nil))
		req := &llm.ChatRequest{Messages: msgs, ToolChoice: "auto"}
		if registry != nil {
			req.Tools = registry.List()
		}

		resp, err := model.Chat(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("agent chat: %w", err)
		}

		calls := resp.Message.ToolCalls
		if calls == nil {
			calls = []types.ToolCall{}
		}
		if len(calls) > 0 {
			logger.Debug("tool calls requested", zap.Int("count", len(calls)), zap.String("first", calls[0].Name))
		} else {
			logger.Debug("direct response")
		}
		return workflow.Partial{
			FieldMessages:     []types.Message{resp.Message},
			FieldPendingCalls: calls,
			FieldStep:         "agent_responded",
		}, nil
	}
}

// MessageOutput copies the content of the last message to output_text.
func MessageOutput(_ context.Context, s workflow.State) (workflow.Partial, error) {
	out := "No response generated"
	if last, ok := types.LastMessage(workflow.ValueOr(s, FieldMessages, []types.Message(nil))); ok {
		out = last.Content
	}
	return workflow.Partial{FieldOutput: out, FieldStep: "output_generated"}, nil
}
