package workflow

import (
	"context"
	"time"
)

// =============================================================================
// Run Events
// =============================================================================

// EventType defines the type of run event.
type EventType string

const (
	// EventRunStart is emitted once before the entry node runs.
	EventRunStart EventType = "run_start"
	// EventNodeStart is emitted before a node is invoked.
	EventNodeStart EventType = "node_start"
	// EventNodeComplete is emitted after a node's update has been routed and committed.
	EventNodeComplete EventType = "node_complete"
	// EventNodeError is emitted when a step fails.
	EventNodeError EventType = "node_error"
	// EventRunComplete is emitted when the terminal sentinel is reached.
	EventRunComplete EventType = "run_complete"
	// EventRunFailed is emitted when the run ends in failure.
	EventRunFailed EventType = "run_failed"
)

// Event carries information about one point in a run.
type Event struct {
	Type     EventType     `json:"type"`
	RunID    string        `json:"run_id"`
	Graph    string        `json:"graph"`
	Node     string        `json:"node,omitempty"`
	Step     int           `json:"step"`
	Target   string        `json:"target,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    error         `json:"-"`
}

// EventEmitter is a callback that receives run events. It is called
// synchronously from the run loop.
type EventEmitter func(Event)

// eventEmitterKey is the context key for EventEmitter.
type eventEmitterKey struct{}

// WithEventEmitter stores an EventEmitter in the context. Runs started with
// this context report to it in addition to any executor-level observer.
func WithEventEmitter(ctx context.Context, emitter EventEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, eventEmitterKey{}, emitter)
}

// eventEmitterFromContext retrieves the EventEmitter from context.
func eventEmitterFromContext(ctx context.Context) (EventEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	emit, ok := ctx.Value(eventEmitterKey{}).(EventEmitter)
	return emit, ok && emit != nil
}
