package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID contextKey = "trace_id"
	keyRunID   contextKey = "run_id"
	keyGraph   contextKey = "graph"
	keyNode    contextKey = "node"
	keyStep    contextKey = "step"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithGraphName adds the running graph's name to context.
func WithGraphName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyGraph, name)
}

// GraphName extracts the running graph's name from context.
func GraphName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyGraph).(string)
	return v, ok && v != ""
}

// WithNode adds the current node name and step index to context.
func WithNode(ctx context.Context, node string, step int) context.Context {
	ctx = context.WithValue(ctx, keyNode, node)
	return context.WithValue(ctx, keyStep, step)
}

// Node extracts the current node name and step index from context.
func Node(ctx context.Context) (string, int, bool) {
	name, ok := ctx.Value(keyNode).(string)
	step, _ := ctx.Value(keyStep).(int)
	return name, step, ok && name != ""
}
