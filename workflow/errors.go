package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/stategraph/types"
)

// Sentinels matched by errors.Is against the structured error types below.
var (
	ErrGraphConfiguration = errors.New("graph configuration error")
	ErrDuplicateNode      = errors.New("duplicate node")
	ErrUnknownNode        = errors.New("unknown node")
	ErrNodeExecution      = errors.New("node execution failed")
	ErrRouting            = errors.New("routing error")
	ErrSchemaViolation    = errors.New("schema violation")
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
	ErrCancelled          = errors.New("run cancelled")
)

// Build-time problems that have no dedicated type.
var (
	ErrInvalidNodeName   = errors.New("invalid node name")
	ErrNilNode           = errors.New("node function is nil")
	ErrNilRouter         = errors.New("router is nil")
	ErrNoEntry           = errors.New("no entry point set")
	ErrMultipleEntries   = errors.New("entry point set more than once")
	ErrDuplicateOutgoing = errors.New("node already has an outgoing rule")
	ErrEmptyRoutes       = errors.New("conditional edge declares no routes")
	ErrNoOutgoing        = errors.New("node has no outgoing rule")
	ErrNilSchema         = errors.New("graph has no state schema")
	ErrNilGraph          = errors.New("graph cannot be nil")
)

// GraphConfigurationError aggregates every problem found by Compile.
type GraphConfigurationError struct {
	Graph    string
	Problems []error
}

func (e *GraphConfigurationError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = "  - " + p.Error()
	}
	return fmt.Sprintf("graph %q has %d configuration problem(s):\n%s", e.Graph, len(e.Problems), strings.Join(lines, "\n"))
}

// Unwrap exposes the individual problems to errors.Is / errors.As.
func (e *GraphConfigurationError) Unwrap() []error { return e.Problems }

func (e *GraphConfigurationError) Is(target error) bool { return target == ErrGraphConfiguration }

func (e *GraphConfigurationError) ErrorCode() types.ErrorCode { return types.ErrGraphConfiguration }

// DuplicateNodeError is returned when a node name is registered twice.
type DuplicateNodeError struct {
	Node string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q is already registered", e.Node)
}

func (e *DuplicateNodeError) Is(target error) bool { return target == ErrDuplicateNode }

func (e *DuplicateNodeError) ErrorCode() types.ErrorCode { return types.ErrDuplicateNode }

// UnknownNodeError is returned when a name that was never registered is
// referenced by an edge, the entry point, or an invocation.
type UnknownNodeError struct {
	Node string
	// Ref describes where the name was referenced, e.g. "edge a -> b".
	Ref string
}

func (e *UnknownNodeError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("node %q is not registered", e.Node)
	}
	return fmt.Sprintf("node %q is not registered (referenced by %s)", e.Node, e.Ref)
}

func (e *UnknownNodeError) Is(target error) bool { return target == ErrUnknownNode }

func (e *UnknownNodeError) ErrorCode() types.ErrorCode { return types.ErrUnknownNode }

// NodeExecutionError wraps an error or panic raised inside a node function.
type NodeExecutionError struct {
	Node  string
	Step  int
	Cause error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed at step %d: %v", e.Node, e.Step, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

func (e *NodeExecutionError) Is(target error) bool { return target == ErrNodeExecution }

func (e *NodeExecutionError) ErrorCode() types.ErrorCode { return types.ErrNodeExecution }

// RoutingError is returned when a router yields a label outside its declared
// mapping, or when the router itself fails.
type RoutingError struct {
	Source   string
	Label    string
	Step     int
	Declared []string
	Cause    error
}

func (e *RoutingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("routing from %q failed at step %d: %v", e.Source, e.Step, e.Cause)
	}
	return fmt.Sprintf("router for %q returned undeclared label %q at step %d (declared: %s)",
		e.Source, e.Label, e.Step, strings.Join(e.Declared, ", "))
}

func (e *RoutingError) Unwrap() error { return e.Cause }

func (e *RoutingError) Is(target error) bool { return target == ErrRouting }

func (e *RoutingError) ErrorCode() types.ErrorCode { return types.ErrRouting }

// SchemaViolation is returned when a write targets an undeclared field or an
// append cannot be reconciled with the existing sequence.
type SchemaViolation struct {
	Field  string
	Node   string
	Step   int
	Reason string
}

func (e *SchemaViolation) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema violation on field %q", e.Field)
	if e.Node != "" {
		fmt.Fprintf(&b, " written by node %q at step %d", e.Node, e.Step)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *SchemaViolation) Is(target error) bool { return target == ErrSchemaViolation }

func (e *SchemaViolation) ErrorCode() types.ErrorCode { return types.ErrSchemaViolation }

// StepBudgetExceeded is returned when a run does not reach the terminal
// sentinel within the configured number of node invocations.
type StepBudgetExceeded struct {
	Budget int
	Steps  int
	// Node is the last node invoked, Next the target it routed to.
	Node string
	Next string
}

func (e *StepBudgetExceeded) Error() string {
	return fmt.Sprintf("step budget of %d exceeded after %d steps (last node %q routed to %q)",
		e.Budget, e.Steps, e.Node, e.Next)
}

func (e *StepBudgetExceeded) Is(target error) bool { return target == ErrStepBudgetExceeded }

func (e *StepBudgetExceeded) ErrorCode() types.ErrorCode { return types.ErrStepBudgetExceeded }

// CancelledError is returned when the run's context is done at a step boundary.
type CancelledError struct {
	Step  int
	Node  string
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled before step %d (node %q): %v", e.Step, e.Node, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

func (e *CancelledError) ErrorCode() types.ErrorCode { return types.ErrCancelled }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
