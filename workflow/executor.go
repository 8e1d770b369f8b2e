package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/types"
)

// DefaultStepBudget bounds runs when no budget is configured. It leaves room
// for several agent/tool round trips.
const DefaultStepBudget = 25

const tracerName = "github.com/BaSui01/stategraph/workflow"

// TerminationReason explains why a run stopped.
type TerminationReason string

const (
	ReasonTerminal        TerminationReason = "reached terminal"
	ReasonStepBudget      TerminationReason = "step budget exceeded"
	ReasonNodeFailed      TerminationReason = "node failed"
	ReasonRoutingFailed   TerminationReason = "routing failed"
	ReasonSchemaViolation TerminationReason = "schema violation"
	ReasonCancelled       TerminationReason = "cancelled"
)

// MetricsRecorder receives per-step and per-run measurements.
type MetricsRecorder interface {
	RecordNodeExecution(graph, node, status string, duration time.Duration)
	RecordRoute(graph, source, target string)
	RecordRun(graph, status, reason string, steps int, duration time.Duration)
}

// ExecutionResult is the outcome of one run. On failure State is the last
// committed state: the failing step's update is never merged into it.
type ExecutionResult struct {
	RunID    string            `json:"run_id"`
	Graph    string            `json:"graph"`
	State    State             `json:"state"`
	Steps    int               `json:"steps"`
	Visited  []string          `json:"visited"`
	Status   ExecutionStatus   `json:"status"`
	Reason   TerminationReason `json:"reason"`
	Err      error             `json:"-"`
	Duration time.Duration     `json:"duration"`
}

// Path returns the visited nodes followed by Terminal when the run terminated.
func (r *ExecutionResult) Path() []string {
	out := make([]string, 0, len(r.Visited)+1)
	out = append(out, r.Visited...)
	if r.Status == StatusTerminated {
		out = append(out, Terminal)
	}
	return out
}

// Succeeded reports whether the run reached the terminal sentinel.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == StatusTerminated
}

// Executor walks compiled graphs. One Executor may run many graphs
// concurrently; each run owns its own state lineage.
type Executor struct {
	budget   int
	logger   *zap.Logger
	observer EventEmitter
	metrics  MetricsRecorder
	tracer   trace.Tracer
	history  HistoryStore
	newID    func() string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithStepBudget sets the maximum number of node invocations per run.
// Values <= 0 keep the default.
func WithStepBudget(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.budget = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger.With(zap.String("component", "graph_executor"))
		}
	}
}

// WithObserver registers an emitter that receives every run's events.
func WithObserver(emitter EventEmitter) ExecutorOption {
	return func(e *Executor) { e.observer = emitter }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithHistoryStore stores an audit record of every finished run.
func WithHistoryStore(s HistoryStore) ExecutorOption {
	return func(e *Executor) { e.history = s }
}

// WithRunIDGenerator replaces the UUID run ID generator.
func WithRunIDGenerator(fn func() string) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewExecutor creates a graph executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		budget: DefaultStepBudget,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StepBudget returns the configured budget.
func (e *Executor) StepBudget() int { return e.budget }

// Run executes g from its entry node until the terminal sentinel is reached
// or the run fails. The returned result is non-nil whenever g is non-nil,
// including on failure; err is the same value as result.Err.
//
// Each step invokes the current node, merges its update, and resolves the
// next target. The terminal check precedes the budget check, so a run whose
// k-th invocation routes to Terminal succeeds for any budget >= k.
// ctx is checked before every step; a node in progress is never interrupted.
func (e *Executor) Run(ctx context.Context, g *CompiledGraph, initial Partial) (*ExecutionResult, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	runID := e.newID()
	ctx = types.WithGraphName(types.WithRunID(ctx, runID), g.name)
	ctx, span := e.tracer.Start(ctx, "stategraph.run", trace.WithAttributes(
		attribute.String("graph.name", g.name),
		attribute.String("run.id", runID),
		attribute.Int("run.step_budget", e.budget),
	))
	defer span.End()

	r := &runner{
		exec:    e,
		graph:   g,
		logger:  e.logger.With(zap.String("run_id", runID), zap.String("graph", g.name)),
		span:    span,
		start:   start,
		history: newExecutionHistory(runID, g.name, start),
		res: &ExecutionResult{
			RunID:   runID,
			Graph:   g.name,
			Status:  StatusRunning,
			Visited: make([]string, 0, 8),
		},
	}
	r.ctxEmit, _ = eventEmitterFromContext(ctx)

	state, err := g.schema.NewState(initial)
	if err != nil {
		r.res.State, _ = g.schema.NewState(nil)
		return r.finish(ctx, ReasonSchemaViolation, err)
	}
	r.res.State = state

	r.logger.Info("starting graph run",
		zap.String("entry", g.entry),
		zap.Int("step_budget", e.budget),
	)
	r.emit(Event{Type: EventRunStart, Node: g.entry})

	current := g.entry
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, ReasonCancelled, &CancelledError{Step: step, Node: current, Cause: err})
		}

		target, next, err := r.step(ctx, current, step, r.res.State)
		if err != nil {
			return r.finish(ctx, reasonFor(err), err)
		}
		r.res.State = next
		r.res.Steps = step + 1

		if target == Terminal {
			return r.finish(ctx, ReasonTerminal, nil)
		}
		if step+1 >= e.budget {
			return r.finish(ctx, ReasonStepBudget, &StepBudgetExceeded{
				Budget: e.budget,
				Steps:  step + 1,
				Node:   current,
				Next:   target,
			})
		}
		current = target
	}
}

// runner carries the bookkeeping of a single run.
type runner struct {
	exec    *Executor
	graph   *CompiledGraph
	logger  *zap.Logger
	span    trace.Span
	start   time.Time
	history *ExecutionHistory
	res     *ExecutionResult
	ctxEmit EventEmitter
}

// step invokes node, merges its partial and resolves the target. On error the
// returned state is the input state.
func (r *runner) step(ctx context.Context, node string, step int, state State) (string, State, error) {
	ctx, span := r.exec.tracer.Start(ctx, "stategraph.node", trace.WithAttributes(
		attribute.String("node.name", node),
		attribute.Int("node.step", step),
	))
	defer span.End()
	ctx = types.WithNode(ctx, node, step)

	rec := r.history.recordNodeStart(node, step)
	r.res.Visited = append(r.res.Visited, node)
	r.emit(Event{Type: EventNodeStart, Node: node, Step: step})
	r.logger.Debug("invoking node", zap.String("node", node), zap.Int("step", step))

	started := time.Now()
	var (
		target string
		next   State
	)
	partial, err := r.graph.nodes.Invoke(ctx, node, state)
	if err == nil {
		next, err = state.Apply(partial)
	}
	if err == nil {
		target, err = r.graph.edges.Next(ctx, node, next)
	}
	duration := time.Since(started)

	if err != nil {
		err = annotate(err, node, step)
		r.history.recordNodeEnd(rec, "", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.recordNode(node, "error", duration)
		r.emit(Event{Type: EventNodeError, Node: node, Step: step, Duration: duration, Error: err})
		r.logger.Error("step failed",
			zap.String("node", node),
			zap.Int("step", step),
			zap.String("error_code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		return "", state, err
	}

	r.history.recordNodeEnd(rec, target, nil)
	span.SetAttributes(attribute.String("node.target", target))
	r.recordNode(node, "ok", duration)
	if m := r.exec.metrics; m != nil {
		m.RecordRoute(r.graph.name, node, target)
	}
	r.emit(Event{Type: EventNodeComplete, Node: node, Step: step, Target: target, Duration: duration})
	r.logger.Debug("node routed",
		zap.String("node", node),
		zap.Int("step", step),
		zap.String("target", target),
		zap.Duration("duration", duration),
	)
	return target, next, nil
}

func (r *runner) finish(ctx context.Context, reason TerminationReason, err error) (*ExecutionResult, error) {
	res := r.res
	res.Reason = reason
	res.Err = err
	res.Duration = time.Since(r.start)
	if err != nil {
		res.Status = StatusFailed
	} else {
		res.Status = StatusTerminated
	}

	h := r.history
	h.EndTime = r.start.Add(res.Duration)
	h.Duration = res.Duration
	h.Status = res.Status
	h.Reason = string(reason)
	h.Steps = res.Steps
	h.FinalState = res.State.Values()
	if err != nil {
		h.Error = err.Error()
		h.ErrorCode = string(types.GetErrorCode(err))
	}
	if store := r.exec.history; store != nil {
		// The run may have been cancelled; the audit record is still written.
		if serr := store.Save(context.WithoutCancel(ctx), h); serr != nil {
			r.logger.Warn("failed to save execution history", zap.Error(serr))
		}
	}

	if m := r.exec.metrics; m != nil {
		m.RecordRun(r.graph.name, string(res.Status), string(reason), res.Steps, res.Duration)
	}

	r.span.SetAttributes(
		attribute.Int("run.steps", res.Steps),
		attribute.String("run.status", string(res.Status)),
		attribute.String("run.reason", string(reason)),
	)

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, string(reason))
		r.emit(Event{Type: EventRunFailed, Step: res.Steps, Duration: res.Duration, Error: err})
		r.logger.Error("graph run failed",
			zap.String("reason", string(reason)),
			zap.Int("steps", res.Steps),
			zap.String("error_code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		return res, err
	}

	r.span.SetStatus(codes.Ok, "")
	r.emit(Event{Type: EventRunComplete, Step: res.Steps, Duration: res.Duration})
	r.logger.Info("graph run completed",
		zap.Int("steps", res.Steps),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (r *runner) emit(ev Event) {
	ev.RunID = r.res.RunID
	ev.Graph = r.graph.name
	if r.exec.observer != nil {
		r.exec.observer(ev)
	}
	if r.ctxEmit != nil {
		r.ctxEmit(ev)
	}
}

func (r *runner) recordNode(node, status string, d time.Duration) {
	if m := r.exec.metrics; m != nil {
		m.RecordNodeExecution(r.graph.name, node, status, d)
	}
}

// annotate stamps step context onto the error types produced by a step.
func annotate(err error, node string, step int) error {
	var (
		nerr *NodeExecutionError
		serr *SchemaViolation
		rerr *RoutingError
	)
	switch {
	case errors.As(err, &nerr) && nerr.Node == node:
		nerr.Step = step
	case errors.As(err, &serr):
		serr.Node = node
		serr.Step = step
	case errors.As(err, &rerr) && rerr.Source == node:
		rerr.Step = step
	}
	return err
}

func reasonFor(err error) TerminationReason {
	switch err.(type) {
	case *NodeExecutionError:
		return ReasonNodeFailed
	case *SchemaViolation:
		return ReasonSchemaViolation
	case *RoutingError:
		return ReasonRoutingFailed
	case *CancelledError:
		return ReasonCancelled
	case *StepBudgetExceeded:
		return ReasonStepBudget
	default:
		return ReasonNodeFailed
	}
}
