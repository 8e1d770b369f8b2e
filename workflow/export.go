package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GraphDefinition is a serializable description of a compiled graph's shape.
// Node and router functions are not part of it.
type GraphDefinition struct {
	Name    string            `json:"name" yaml:"name"`
	Entry   string            `json:"entry" yaml:"entry"`
	State   []FieldDefinition `json:"state" yaml:"state"`
	Nodes   []string          `json:"nodes" yaml:"nodes"`
	Edges   []EdgeDefinition  `json:"edges" yaml:"edges"`
	Acyclic bool              `json:"acyclic" yaml:"acyclic"`
}

// FieldDefinition describes one state field.
type FieldDefinition struct {
	Name  string `json:"name" yaml:"name"`
	Merge string `json:"merge" yaml:"merge"`
}

// EdgeDefinition describes a node's outgoing rule: To for a static edge,
// Routes for a conditional one.
type EdgeDefinition struct {
	From   string            `json:"from" yaml:"from"`
	To     string            `json:"to,omitempty" yaml:"to,omitempty"`
	Routes map[string]string `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// Definition describes the graph's schema, nodes and edges in a stable order.
func (g *CompiledGraph) Definition() *GraphDefinition {
	def := &GraphDefinition{
		Name:    g.name,
		Entry:   g.entry,
		Nodes:   g.NodeNames(),
		Acyclic: g.IsAcyclic(),
	}
	for _, f := range g.schema.Fields() {
		merge := f.Strategy.String()
		if f.Merge != nil {
			merge = "custom"
		}
		def.State = append(def.State, FieldDefinition{Name: f.Name, Merge: merge})
	}
	for _, source := range g.edges.Sources() {
		if g.IsConditional(source) {
			def.Edges = append(def.Edges, EdgeDefinition{From: source, Routes: g.Routes(source)})
			continue
		}
		def.Edges = append(def.Edges, EdgeDefinition{From: source, To: g.Successors(source)[0]})
	}
	return def
}

// ToJSON converts a GraphDefinition to an indented JSON string
func (d *GraphDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a GraphDefinition to a YAML string
func (d *GraphDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// ToMermaid exports the graph to Mermaid flowchart syntax. Conditional routes
// are drawn as dotted edges labelled with the route label.
func (g *CompiledGraph) ToMermaid() string {
	var sb strings.Builder

	sb.WriteString("graph TD\n")
	sb.WriteString("    __start__([start])\n")
	for _, n := range g.NodeNames() {
		fmt.Fprintf(&sb, "    %s[%s]\n", mermaidID(n), n)
	}
	fmt.Fprintf(&sb, "    %s([end])\n", Terminal)

	fmt.Fprintf(&sb, "    __start__ --> %s\n", mermaidID(g.entry))
	for _, source := range g.edges.Sources() {
		if g.IsConditional(source) {
			routes := g.Routes(source)
			for _, label := range sortedKeys(routes) {
				fmt.Fprintf(&sb, "    %s -. %s .-> %s\n", mermaidID(source), label, mermaidID(routes[label]))
			}
			continue
		}
		fmt.Fprintf(&sb, "    %s --> %s\n", mermaidID(source), mermaidID(g.Successors(source)[0]))
	}
	return sb.String()
}

// mermaidID replaces characters Mermaid does not accept in node IDs.
func mermaidID(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
