package workflow

// CompiledGraph is an immutable, validated graph. It holds no run state and is
// safe to share across concurrent independent runs.
type CompiledGraph struct {
	name   string
	schema *Schema
	entry  string
	nodes  *NodeRegistry
	edges  *EdgeTable
}

// Name returns the graph name.
func (g *CompiledGraph) Name() string { return g.name }

// Entry returns the entry node.
func (g *CompiledGraph) Entry() string { return g.entry }

// Schema returns the state schema runs are seeded from.
func (g *CompiledGraph) Schema() *Schema { return g.schema }

// NodeNames returns every node name, sorted.
func (g *CompiledGraph) NodeNames() []string { return g.nodes.Names() }

// HasNode reports whether name is a node of the graph.
func (g *CompiledGraph) HasNode(name string) bool { return g.nodes.Has(name) }

// Edge returns a copy of the outgoing rule of name.
func (g *CompiledGraph) Edge(name string) (Edge, bool) {
	e, ok := g.edges.Get(name)
	if !ok {
		return nil, false
	}
	if c, isCond := e.(ConditionalEdge); isCond {
		return ConditionalEdge{Router: c.Router, Routes: g.Routes(name)}, true
	}
	return e, true
}

// Successors returns every possible next target of name, Terminal included.
func (g *CompiledGraph) Successors(name string) []string {
	e, ok := g.edges.Get(name)
	if !ok {
		return nil
	}
	return e.Targets()
}

// IsConditional reports whether name has a routed outgoing rule.
func (g *CompiledGraph) IsConditional(name string) bool {
	e, ok := g.edges.Get(name)
	if !ok {
		return false
	}
	_, cond := e.(ConditionalEdge)
	return cond
}

// Routes returns a copy of the label mapping of a conditional node, or nil.
func (g *CompiledGraph) Routes(name string) map[string]string {
	e, ok := g.edges.Get(name)
	if !ok {
		return nil
	}
	c, cond := e.(ConditionalEdge)
	if !cond {
		return nil
	}
	out := make(map[string]string, len(c.Routes))
	for k, v := range c.Routes {
		out[k] = v
	}
	return out
}

// IsAcyclic reports whether no node can reach itself.
func (g *CompiledGraph) IsAcyclic() bool {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, g.nodes.Len())
	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = grey
		for _, next := range g.Successors(n) {
			if next == Terminal {
				continue
			}
			switch color[next] {
			case grey:
				return false
			case white:
				if !visit(next) {
					return false
				}
			}
		}
		color[n] = black
		return true
	}
	for _, n := range g.NodeNames() {
		if color[n] == white && !visit(n) {
			return false
		}
	}
	return true
}

// unreachable lists nodes the entry can never reach.
func (g *CompiledGraph) unreachable() []string {
	seen := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range g.Successors(n) {
			if next != Terminal && !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	var out []string
	for _, n := range g.NodeNames() {
		if !seen[n] {
			out = append(out, n)
		}
	}
	return out
}
