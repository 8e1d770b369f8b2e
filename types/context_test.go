package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := RunID(ctx); ok {
		t.Fatalf("empty context should carry no run id")
	}

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithRunID(ctx, "run")
	if got, ok := RunID(ctx); !ok || got != "run" {
		t.Fatalf("RunID mismatch: %v %v", got, ok)
	}

	ctx = WithGraphName(ctx, "basic")
	if got, ok := GraphName(ctx); !ok || got != "basic" {
		t.Fatalf("GraphName mismatch: %v %v", got, ok)
	}

	ctx = WithNode(ctx, "agent", 3)
	if name, step, ok := Node(ctx); !ok || name != "agent" || step != 3 {
		t.Fatalf("Node mismatch: %v %v %v", name, step, ok)
	}
}
