package workflow

import (
	"context"
	"fmt"
)

// Router 路由函数：读取本步合并后的状态，返回条件边映射中声明的标签
type Router func(ctx context.Context, state State) (string, error)

// Edge is a node's single outgoing rule: a StaticEdge or a ConditionalEdge.
type Edge interface {
	// Targets lists every node the edge may lead to, in a stable order.
	Targets() []string
	isEdge()
}

// StaticEdge always transitions to Target.
type StaticEdge struct {
	Target string
}

func (e StaticEdge) Targets() []string { return []string{e.Target} }

func (StaticEdge) isEdge() {}

// ConditionalEdge asks Router for a label and transitions to Routes[label].
type ConditionalEdge struct {
	Router Router
	Routes map[string]string
}

// Targets returns the distinct route targets ordered by label.
func (e ConditionalEdge) Targets() []string {
	seen := make(map[string]bool, len(e.Routes))
	out := make([]string, 0, len(e.Routes))
	for _, label := range sortedKeys(e.Routes) {
		t := e.Routes[label]
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Labels returns the declared labels in sorted order.
func (e ConditionalEdge) Labels() []string {
	return sortedKeys(e.Routes)
}

func (ConditionalEdge) isEdge() {}

// EdgeTable holds at most one outgoing rule per source node.
type EdgeTable struct {
	edges map[string]Edge
}

// NewEdgeTable 创建边表
func NewEdgeTable() *EdgeTable {
	return &EdgeTable{edges: make(map[string]Edge)}
}

// AddStatic adds an unconditional rule source -> target.
func (t *EdgeTable) AddStatic(source, target string) error {
	if _, exists := t.edges[source]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateOutgoing, source)
	}
	t.edges[source] = StaticEdge{Target: target}
	return nil
}

// AddConditional adds a routed rule. routes is copied.
func (t *EdgeTable) AddConditional(source string, router Router, routes map[string]string) error {
	if _, exists := t.edges[source]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateOutgoing, source)
	}
	copied := make(map[string]string, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	t.edges[source] = ConditionalEdge{Router: router, Routes: copied}
	return nil
}

// Get returns the outgoing rule of source.
func (t *EdgeTable) Get(source string) (Edge, bool) {
	e, ok := t.edges[source]
	return e, ok
}

// Sources returns every node with an outgoing rule, sorted.
func (t *EdgeTable) Sources() []string {
	return sortedKeys(t.edges)
}

// Next resolves the successor of source given the post-merge state.
// Failures are *RoutingError; Step is left for the caller to set.
func (t *EdgeTable) Next(ctx context.Context, source string, state State) (string, error) {
	edge, ok := t.edges[source]
	if !ok {
		return "", &RoutingError{Source: source, Cause: ErrNoOutgoing}
	}
	switch e := edge.(type) {
	case StaticEdge:
		return e.Target, nil
	case ConditionalEdge:
		label, err := callRouter(ctx, e.Router, state)
		if err != nil {
			return "", &RoutingError{Source: source, Cause: err}
		}
		target, ok := e.Routes[label]
		if !ok {
			return "", &RoutingError{Source: source, Label: label, Declared: e.Labels()}
		}
		return target, nil
	default:
		return "", &RoutingError{Source: source, Cause: fmt.Errorf("unsupported edge type %T", edge)}
	}
}

func callRouter(ctx context.Context, r Router, state State) (label string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("router panic: %v", rec)
		}
	}()
	return r(ctx, state)
}

func (t *EdgeTable) clone() *EdgeTable {
	out := &EdgeTable{edges: make(map[string]Edge, len(t.edges))}
	for k, v := range t.edges {
		if c, ok := v.(ConditionalEdge); ok {
			routes := make(map[string]string, len(c.Routes))
			for label, target := range c.Routes {
				routes[label] = target
			}
			v = ConditionalEdge{Router: c.Router, Routes: routes}
		}
		out.edges[k] = v
	}
	return out
}
