package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/stategraph/types"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func linearGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	schema := MustSchema(
		OverwriteField("text"),
		OverwriteField("processed"),
		OverwriteField("transformed"),
		OverwriteField("output"),
	)
	g, err := NewGraphBuilder("linear", schema).
		AddNode("A", func(_ context.Context, s State) (Partial, error) {
			return Partial{"processed": strings.ToUpper(s.String("text"))}, nil
		}).
		AddNode("B", func(_ context.Context, s State) (Partial, error) {
			return Partial{"transformed": "<" + s.String("processed") + ">"}, nil
		}).
		AddNode("C", func(_ context.Context, s State) (Partial, error) {
			return Partial{"output": "final: " + s.String("transformed")}, nil
		}).
		AddEdge("A", "B").
		AddEdge("B", "C").
		AddEdge("C", Terminal).
		SetEntry("A").
		Compile()
	require.NoError(t, err)
	return g
}

func wordCountGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	schema := MustSchema(OverwriteField("text"), OverwriteField("processed"), OverwriteField("output"))
	g, err := NewGraphBuilder("conditional", schema).
		AddNode("Process", func(_ context.Context, s State) (Partial, error) {
			return Partial{"processed": strings.TrimSpace(s.String("text"))}, nil
		}).
		AddNode("Long", func(context.Context, State) (Partial, error) {
			return Partial{"output": "long"}, nil
		}).
		AddNode("Short", func(context.Context, State) (Partial, error) {
			return Partial{"output": "short"}, nil
		}).
		AddConditionalEdges("Process", func(_ context.Context, s State) (string, error) {
			if len(strings.Fields(s.String("processed"))) > 10 {
				return "long", nil
			}
			return "short", nil
		}, map[string]string{"long": "Long", "short": "Short"}).
		AddEdge("Long", Terminal).
		AddEdge("Short", Terminal).
		SetEntry("Process").
		Compile()
	require.NoError(t, err)
	return g
}

func toolLoopGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	schema := MustSchema(
		OverwriteField("pending_calls"),
		AppendField("tool_results").WithDefault([]string{}),
		OverwriteField("answer"),
	)
	g, err := NewGraphBuilder("tool-loop", schema).
		AddNode("Agent", func(_ context.Context, s State) (Partial, error) {
			if results := ValueOr(s, "tool_results", []string(nil)); len(results) > 0 {
				return Partial{"pending_calls": []types.ToolCall{}, "answer": results[len(results)-1]}, nil
			}
			return Partial{"pending_calls": []types.ToolCall{{
				ID:        "call_1",
				Name:      "mul",
				Arguments: []byte(`{"a":3,"b":4}`),
			}}}, nil
		}).
		AddNode("ToolExec", func(_ context.Context, s State) (Partial, error) {
			calls := ValueOr(s, "pending_calls", []types.ToolCall(nil))
			out := make([]string, 0, len(calls))
			for range calls {
				out = append(out, fmt.Sprint(3*4))
			}
			return Partial{"tool_results": out}, nil
		}).
		AddConditionalEdges("Agent", func(_ context.Context, s State) (string, error) {
			if len(ValueOr(s, "pending_calls", []types.ToolCall(nil))) > 0 {
				return "tools", nil
			}
			return "end", nil
		}, map[string]string{"tools": "ToolExec", "end": Terminal}).
		AddEdge("ToolExec", "Agent").
		SetEntry("Agent").
		Compile()
	require.NoError(t, err)
	return g
}

func selfLoopGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	schema := MustSchema(ReducerField("count", Typed(SumReducer[int]())))
	g, err := NewGraphBuilder("self-loop", schema).
		AddNode("Loop", func(context.Context, State) (Partial, error) {
			return Partial{"count": 1}, nil
		}).
		AddConditionalEdges("Loop", constRouter("again"), map[string]string{"again": "Loop", "stop": Terminal}).
		SetEntry("Loop").
		Compile()
	require.NoError(t, err)
	return g
}

// countdownGraph routes to Terminal on the k-th invocation.
func countdownGraph(t *testing.T, k int) *CompiledGraph {
	t.Helper()
	schema := MustSchema(ReducerField("count", Typed(SumReducer[int]())))
	g, err := NewGraphBuilder("countdown", schema).
		AddNode("Tick", func(context.Context, State) (Partial, error) {
			return Partial{"count": 1}, nil
		}).
		AddConditionalEdges("Tick", func(_ context.Context, s State) (string, error) {
			if ValueOr(s, "count", 0) >= k {
				return "done", nil
			}
			return "again", nil
		}, map[string]string{"again": "Tick", "done": Terminal}).
		SetEntry("Tick").
		Compile()
	require.NoError(t, err)
	return g
}

type recordingMetrics struct {
	mu     sync.Mutex
	nodes  []string
	routes []string
	runs   []string
}

func (m *recordingMetrics) RecordNodeExecution(graph, node, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, node+":"+status)
}

func (m *recordingMetrics) RecordRoute(graph, source, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, source+"->"+target)
}

func (m *recordingMetrics) RecordRun(graph, status, reason string, steps int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, fmt.Sprintf("%s/%s/%s/%d", graph, status, reason, steps))
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestExecutor_LinearGraph(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(WithLogger(zaptest.NewLogger(t)))
	res, err := exec.Run(context.Background(), linearGraph(t), Partial{"text": "hello world"})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, ReasonTerminal, res.Reason)
	assert.Equal(t, []string{"A", "B", "C"}, res.Visited)
	assert.Equal(t, []string{"A", "B", "C", Terminal}, res.Path())
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, map[string]any{
		"text":        "hello world",
		"processed":   "HELLO WORLD",
		"transformed": "<HELLO WORLD>",
		"output":      "final: <HELLO WORLD>",
	}, res.State.Values())
	assert.NotEmpty(t, res.RunID)
}

func TestExecutor_ConditionalRouting(t *testing.T) {
	t.Parallel()

	g := wordCountGraph(t)
	exec := NewExecutor()

	short, err := exec.Run(context.Background(), g, Partial{"text": "one two three"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Process", "Short"}, short.Visited)
	assert.Equal(t, "short", short.State.String("output"))

	long, err := exec.Run(context.Background(), g, Partial{"text": strings.Repeat("word ", 12)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Process", "Long"}, long.Visited)
	assert.Equal(t, "long", long.State.String("output"))
}

func TestExecutor_ToolLoop(t *testing.T) {
	t.Parallel()

	res, err := NewExecutor().Run(context.Background(), toolLoopGraph(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Agent", "ToolExec", "Agent", Terminal}, res.Path())
	assert.Equal(t, "12", res.State.String("answer"))
	assert.Equal(t, []string{"12"}, ValueOr(res.State, "tool_results", []string(nil)))
	assert.Empty(t, ValueOr(res.State, "pending_calls", []types.ToolCall(nil)))
}

func TestExecutor_UndeclaredLabelIsRoutingError(t *testing.T) {
	t.Parallel()

	schema := MustSchema(OverwriteField("x"))
	g, err := NewGraphBuilder("maybe", schema).
		AddNode("Prep", func(context.Context, State) (Partial, error) {
			return Partial{"x": "prepped"}, nil
		}).
		AddNode("Decide", func(context.Context, State) (Partial, error) {
			return Partial{"x": "decided"}, nil
		}).
		AddEdge("Prep", "Decide").
		AddConditionalEdges("Decide", constRouter("maybe"), map[string]string{"yes": Terminal, "no": "Prep"}).
		SetEntry("Prep").
		Compile()
	require.NoError(t, err)

	res, err := NewExecutor().Run(context.Background(), g, Partial{"x": "orig"})
	require.Error(t, err)

	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Decide", rerr.Source)
	assert.Equal(t, "maybe", rerr.Label)
	assert.Equal(t, 1, rerr.Step)
	assert.Equal(t, []string{"no", "yes"}, rerr.Declared)
	assert.Equal(t, types.ErrRouting, types.GetErrorCode(err))

	assert.Equal(t, ReasonRoutingFailed, res.Reason)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, []string{"Prep", "Decide"}, res.Visited)
	assert.Equal(t, "prepped", res.State.String("x"), "the failing step's update is not committed")
	assert.Same(t, rerr, res.Err.(*RoutingError))
}

func TestExecutor_StepBudgetExceeded(t *testing.T) {
	t.Parallel()

	res, err := NewExecutor(WithStepBudget(5)).Run(context.Background(), selfLoopGraph(t), nil)
	require.Error(t, err)

	var budget *StepBudgetExceeded
	require.ErrorAs(t, err, &budget)
	assert.Equal(t, 5, budget.Budget)
	assert.Equal(t, 5, budget.Steps)
	assert.Equal(t, "Loop", budget.Node)
	assert.Equal(t, "Loop", budget.Next)

	assert.Equal(t, 5, res.Steps)
	assert.Len(t, res.Visited, 5)
	assert.Equal(t, 5, ValueOr(res.State, "count", 0))
	assert.Equal(t, ReasonStepBudget, res.Reason)
	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
}

func TestExecutor_TerminalCheckPrecedesBudget(t *testing.T) {
	t.Parallel()

	g := countdownGraph(t, 3)

	res, err := NewExecutor(WithStepBudget(3)).Run(context.Background(), g, nil)
	require.NoError(t, err, "a run reaching terminal on its last allowed step succeeds")
	assert.Equal(t, 3, res.Steps)

	_, err = NewExecutor(WithStepBudget(2)).Run(context.Background(), g, nil)
	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
}

func TestExecutor_DefaultBudget(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(WithStepBudget(0))
	assert.Equal(t, DefaultStepBudget, exec.StepBudget())

	res, err := exec.Run(context.Background(), selfLoopGraph(t), nil)
	require.Error(t, err)
	assert.Equal(t, DefaultStepBudget, res.Steps)
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestExecutor_NodeErrorAndPanic(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	schema := MustSchema(OverwriteField("x"))

	tests := []struct {
		name string
		fn   NodeFunc
	}{
		{"error", func(context.Context, State) (Partial, error) { return Partial{"x": "lost"}, boom }},
		{"panic", func(context.Context, State) (Partial, error) { panic(boom) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, err := NewGraphBuilder("failing", schema).
				AddNode("Ok", func(context.Context, State) (Partial, error) { return Partial{"x": "ok"}, nil }).
				AddNode("Bad", tt.fn).
				AddEdge("Ok", "Bad").
				AddEdge("Bad", Terminal).
				SetEntry("Ok").
				Compile()
			require.NoError(t, err)

			res, err := NewExecutor().Run(context.Background(), g, nil)
			var nerr *NodeExecutionError
			require.ErrorAs(t, err, &nerr)
			assert.Equal(t, "Bad", nerr.Node)
			assert.Equal(t, 1, nerr.Step)
			assert.ErrorIs(t, err, ErrNodeExecution)
			assert.Equal(t, ReasonNodeFailed, res.Reason)
			assert.Equal(t, []string{"Ok", "Bad"}, res.Visited)
			assert.Equal(t, []string{"Ok", "Bad"}, res.Path(), "failed runs do not end with the terminal sentinel")
			assert.Equal(t, "ok", res.State.String("x"))
			if tt.name == "error" {
				assert.ErrorIs(t, err, boom)
			}
		})
	}
}

func TestExecutor_UndeclaredWriteIsSchemaViolation(t *testing.T) {
	t.Parallel()

	g, err := NewGraphBuilder("sloppy", MustSchema(OverwriteField("x"))).
		AddNode("W", func(context.Context, State) (Partial, error) {
			return Partial{"x": 1, "y": 2}, nil
		}).
		AddEdge("W", Terminal).
		SetEntry("W").
		Compile()
	require.NoError(t, err)

	res, err := NewExecutor().Run(context.Background(), g, Partial{"x": 0})
	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "y", sv.Field)
	assert.Equal(t, "W", sv.Node)
	assert.Equal(t, 0, sv.Step)
	assert.Equal(t, ReasonSchemaViolation, res.Reason)
	assert.Equal(t, 0, ValueOr(res.State, "x", -1))
}

func TestExecutor_InvalidInitialState(t *testing.T) {
	t.Parallel()

	res, err := NewExecutor().Run(context.Background(), linearGraph(t), Partial{"bogus": true})
	assert.ErrorIs(t, err, ErrSchemaViolation)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Steps)
	assert.Empty(t, res.Visited)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestExecutor_NilGraph(t *testing.T) {
	t.Parallel()

	res, err := NewExecutor().Run(context.Background(), nil, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNilGraph)
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestExecutor_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewExecutor().Run(ctx, linearGraph(t), Partial{"text": "x"})
	var cerr *CancelledError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 0, cerr.Step)
	assert.Equal(t, "A", cerr.Node)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, res.Visited)
	assert.Equal(t, ReasonCancelled, res.Reason)
}

func TestExecutor_CancelledBetweenSteps(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schema := MustSchema(AppendField("log").WithDefault([]string{}))
	g, err := NewGraphBuilder("cancel", schema).
		AddNode("A", func(context.Context, State) (Partial, error) { return Partial{"log": "a"}, nil }).
		AddNode("B", func(context.Context, State) (Partial, error) {
			cancel()
			return Partial{"log": "b"}, nil
		}).
		AddNode("C", func(context.Context, State) (Partial, error) { return Partial{"log": "c"}, nil }).
		AddEdge("A", "B").
		AddEdge("B", "C").
		AddEdge("C", Terminal).
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	res, err := NewExecutor().Run(ctx, g, nil)
	var cerr *CancelledError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Step)
	assert.Equal(t, "C", cerr.Node)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, []string{"a", "b"}, ValueOr(res.State, "log", []string(nil)),
		"the in-flight node completes and its update is committed")
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

func TestExecutor_Events(t *testing.T) {
	t.Parallel()

	var (
		observed []EventType
		fromCtx  []Event
	)
	exec := NewExecutor(
		WithObserver(func(ev Event) { observed = append(observed, ev.Type) }),
		WithRunIDGenerator(func() string { return "run-1" }),
	)
	ctx := WithEventEmitter(context.Background(), func(ev Event) { fromCtx = append(fromCtx, ev) })

	_, err := exec.Run(ctx, linearGraph(t), Partial{"text": "hi"})
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventRunStart,
		EventNodeStart, EventNodeComplete,
		EventNodeStart, EventNodeComplete,
		EventNodeStart, EventNodeComplete,
		EventRunComplete,
	}, observed)
	require.Len(t, fromCtx, len(observed))
	for _, ev := range fromCtx {
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, "linear", ev.Graph)
	}
	assert.Equal(t, "B", fromCtx[2].Target)
	assert.Equal(t, Terminal, fromCtx[6].Target)
}

func TestExecutor_FailureEvents(t *testing.T) {
	t.Parallel()

	var observed []EventType
	exec := NewExecutor(WithStepBudget(2), WithObserver(func(ev Event) { observed = append(observed, ev.Type) }))
	_, err := exec.Run(context.Background(), selfLoopGraph(t), nil)
	require.Error(t, err)
	assert.Equal(t, EventRunFailed, observed[len(observed)-1])
}

func TestExecutor_HistoryStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryHistoryStore()
	exec := NewExecutor(WithHistoryStore(store), WithRunIDGenerator(func() string { return "run-ok" }))
	_, err := exec.Run(context.Background(), linearGraph(t), Partial{"text": "hi"})
	require.NoError(t, err)

	h, err := store.Get(context.Background(), "run-ok")
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, h.Status)
	assert.Equal(t, string(ReasonTerminal), h.Reason)
	assert.Equal(t, 3, h.Steps)
	require.Len(t, h.Nodes, 3)
	assert.Equal(t, "B", h.Nodes[0].Target)
	assert.Equal(t, StatusCompleted, h.Nodes[2].Status)
	assert.Equal(t, "final: <HI>", h.FinalState["output"])

	failing := NewExecutor(WithHistoryStore(store), WithStepBudget(2), WithRunIDGenerator(func() string { return "run-bad" }))
	_, err = failing.Run(context.Background(), selfLoopGraph(t), nil)
	require.Error(t, err)

	h, err = store.Get(context.Background(), "run-bad")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, h.Status)
	assert.Equal(t, string(types.ErrStepBudgetExceeded), h.ErrorCode)
	failed, err := store.ListByStatus(context.Background(), StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "run-bad", failed[0].RunID)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrHistoryNotFound)
}

func TestExecutor_Metrics(t *testing.T) {
	t.Parallel()

	m := &recordingMetrics{}
	_, err := NewExecutor(WithMetrics(m)).Run(context.Background(), toolLoopGraph(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Agent:ok", "ToolExec:ok", "Agent:ok"}, m.nodes)
	assert.Equal(t, []string{"Agent->ToolExec", "ToolExec->Agent", "Agent->" + Terminal}, m.routes)
	assert.Equal(t, []string{"tool-loop/terminated/reached terminal/3"}, m.runs)
}

func TestExecutor_Tracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	exec := NewExecutor(WithTracer(tp.Tracer("test")))
	_, err := exec.Run(context.Background(), linearGraph(t), Partial{"text": "x"})
	require.NoError(t, err)

	var runSpans, nodeSpans int
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "stategraph.run":
			runSpans++
		case "stategraph.node":
			nodeSpans++
			assert.Equal(t, recorder.Ended()[len(recorder.Ended())-1].SpanContext().SpanID(), s.Parent().SpanID())
		}
	}
	assert.Equal(t, 1, runSpans)
	assert.Equal(t, 3, nodeSpans)
}

func TestExecutor_NodeSeesRunContext(t *testing.T) {
	t.Parallel()

	var (
		runID, graph, node string
		step               int
	)
	g, err := NewGraphBuilder("ctx", MustSchema(OverwriteField("x"))).
		AddNode("Only", func(ctx context.Context, _ State) (Partial, error) {
			runID, _ = types.RunID(ctx)
			graph, _ = types.GraphName(ctx)
			node, step, _ = types.Node(ctx)
			return nil, nil
		}).
		AddEdge("Only", Terminal).
		SetEntry("Only").
		Compile()
	require.NoError(t, err)

	_, err = NewExecutor(WithRunIDGenerator(func() string { return "abc" })).Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", runID)
	assert.Equal(t, "ctx", graph)
	assert.Equal(t, "Only", node)
	assert.Equal(t, 0, step)
}

// ---------------------------------------------------------------------------
// Determinism and reuse
// ---------------------------------------------------------------------------

func TestExecutor_Deterministic(t *testing.T) {
	t.Parallel()

	g := toolLoopGraph(t)
	exec := NewExecutor()

	first, err := exec.Run(context.Background(), g, nil)
	require.NoError(t, err)
	second, err := exec.Run(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Visited, second.Visited)
	assert.Equal(t, first.State.Values(), second.State.Values())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestExecutor_ConcurrentRunsShareGraph(t *testing.T) {
	t.Parallel()

	g := wordCountGraph(t)
	exec := NewExecutor()

	var wg sync.WaitGroup
	results := make([]*ExecutionResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := "a b c"
			if i%2 == 1 {
				text = strings.Repeat("w ", 11)
			}
			results[i], _ = exec.Run(context.Background(), g, Partial{"text": text})
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.NotNil(t, res)
		want := "short"
		if i%2 == 1 {
			want = "long"
		}
		assert.Equal(t, want, res.State.String("output"), "run %d", i)
	}
}
