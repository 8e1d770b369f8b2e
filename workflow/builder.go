package workflow

import (
	"fmt"

	"go.uber.org/zap"
)

// GraphBuilder 图构建器：可变的注册阶段，通过一次 Compile 生成不可变的 CompiledGraph
//
// Builder calls never fail on their own; every problem is recorded and
// reported together by Compile as one *GraphConfigurationError.
type GraphBuilder struct {
	name     string
	schema   *Schema
	nodes    *NodeRegistry
	edges    *EdgeTable
	entry    string
	problems []error
	logger   *zap.Logger
}

// NewGraphBuilder creates a builder for a graph over schema.
func NewGraphBuilder(name string, schema *Schema) *GraphBuilder {
	return &GraphBuilder{
		name:   name,
		schema: schema,
		nodes:  NewNodeRegistry(),
		edges:  NewEdgeTable(),
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger used for compile warnings.
func (b *GraphBuilder) WithLogger(logger *zap.Logger) *GraphBuilder {
	if logger != nil {
		b.logger = logger.With(zap.String("component", "graph_builder"), zap.String("graph", b.name))
	}
	return b
}

// AddNode registers a node.
func (b *GraphBuilder) AddNode(name string, fn NodeFunc) *GraphBuilder {
	if err := b.nodes.Register(name, fn); err != nil {
		b.problems = append(b.problems, err)
	}
	return b
}

// AddEdge adds a static edge source -> target. target may be Terminal.
func (b *GraphBuilder) AddEdge(source, target string) *GraphBuilder {
	if err := b.edges.AddStatic(source, target); err != nil {
		b.problems = append(b.problems, err)
	}
	return b
}

// AddConditionalEdges adds a routed edge. Every value in routes must be a
// registered node or Terminal.
func (b *GraphBuilder) AddConditionalEdges(source string, router Router, routes map[string]string) *GraphBuilder {
	if router == nil {
		b.problems = append(b.problems, fmt.Errorf("%w: conditional edge from %q", ErrNilRouter, source))
		return b
	}
	if len(routes) == 0 {
		b.problems = append(b.problems, fmt.Errorf("%w: conditional edge from %q", ErrEmptyRoutes, source))
		return b
	}
	if err := b.edges.AddConditional(source, router, routes); err != nil {
		b.problems = append(b.problems, err)
	}
	return b
}

// SetEntry sets the entry node. The name is checked by Compile, so nodes may
// be added after the entry is set.
func (b *GraphBuilder) SetEntry(name string) *GraphBuilder {
	if b.entry != "" && b.entry != name {
		b.problems = append(b.problems, fmt.Errorf("%w: %q then %q", ErrMultipleEntries, b.entry, name))
		return b
	}
	b.entry = name
	return b
}

// Compile validates the graph and freezes it. It is a pure function of the
// builder contents: calling it twice yields two equivalent graphs.
func (b *GraphBuilder) Compile() (*CompiledGraph, error) {
	problems := make([]error, 0, len(b.problems))
	problems = append(problems, b.problems...)

	if b.schema == nil {
		problems = append(problems, ErrNilSchema)
	}

	switch {
	case b.entry == "":
		problems = append(problems, ErrNoEntry)
	case !b.nodes.Has(b.entry):
		problems = append(problems, &UnknownNodeError{Node: b.entry, Ref: "entry point"})
	}

	for _, source := range b.edges.Sources() {
		edge, _ := b.edges.Get(source)
		if !b.nodes.Has(source) {
			problems = append(problems, &UnknownNodeError{Node: source, Ref: "edge source"})
		}
		switch e := edge.(type) {
		case StaticEdge:
			if e.Target != Terminal && !b.nodes.Has(e.Target) {
				problems = append(problems, &UnknownNodeError{
					Node: e.Target,
					Ref:  fmt.Sprintf("edge %s -> %s", source, e.Target),
				})
			}
		case ConditionalEdge:
			for _, label := range e.Labels() {
				target := e.Routes[label]
				if target != Terminal && !b.nodes.Has(target) {
					problems = append(problems, &UnknownNodeError{
						Node: target,
						Ref:  fmt.Sprintf("route %s -[%s]-> %s", source, label, target),
					})
				}
			}
		}
	}

	for _, name := range b.nodes.Names() {
		if _, ok := b.edges.Get(name); !ok {
			problems = append(problems, fmt.Errorf("%w: %q", ErrNoOutgoing, name))
		}
	}

	if len(problems) > 0 {
		return nil, &GraphConfigurationError{Graph: b.name, Problems: problems}
	}

	g := &CompiledGraph{
		name:   b.name,
		schema: b.schema,
		entry:  b.entry,
		nodes:  b.nodes.clone(),
		edges:  b.edges.clone(),
	}

	if unreachable := g.unreachable(); len(unreachable) > 0 {
		b.logger.Warn("graph has unreachable nodes", zap.Strings("nodes", unreachable))
	}

	b.logger.Debug("graph compiled",
		zap.String("entry", g.entry),
		zap.Int("nodes", g.nodes.Len()),
	)
	return g, nil
}
