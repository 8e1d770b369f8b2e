package dsl

import (
	"fmt"
	"strings"

	"github.com/BaSui01/stategraph/workflow"
)

// endAliases are the target names that mean workflow.Terminal.
var endAliases = map[string]bool{"END": true, workflow.Terminal: true}

func resolveTarget(name string) string {
	if endAliases[name] {
		return workflow.Terminal
	}
	return name
}

// ValidationError aggregates every problem found in a Document.
type ValidationError struct {
	Document string
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("graph document %q is invalid: %s", e.Document, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Problems }

// Validator DSL 验证器
type Validator struct {
	catalog Catalog
}

// NewValidator creates a validator. A nil catalog skips name resolution checks.
func NewValidator(catalog Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate 验证文档，返回全部问题
func (v *Validator) Validate(doc *Document) []error {
	var errs []error

	if doc.Version == "" {
		errs = append(errs, fmt.Errorf("version is required"))
	} else if doc.Version != "1" && !strings.HasPrefix(doc.Version, "1.") {
		errs = append(errs, fmt.Errorf("unsupported version %q", doc.Version))
	}
	if doc.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if doc.Entry == "" {
		errs = append(errs, fmt.Errorf("entry is required"))
	}
	if len(doc.Nodes) == 0 {
		errs = append(errs, fmt.Errorf("nodes must have at least one node"))
	}

	errs = append(errs, v.validateState(doc)...)

	nodeIDs := make(map[string]bool, len(doc.Nodes))
	for _, node := range doc.Nodes {
		switch {
		case node.ID == "":
			errs = append(errs, fmt.Errorf("node ID is required"))
			continue
		case endAliases[node.ID]:
			errs = append(errs, fmt.Errorf("node ID %q is reserved", node.ID))
			continue
		case nodeIDs[node.ID]:
			errs = append(errs, fmt.Errorf("duplicate node ID: %s", node.ID))
		}
		nodeIDs[node.ID] = true

		if v.catalog != nil {
			if _, ok := v.catalog.Node(node.use()); !ok {
				errs = append(errs, fmt.Errorf("node %s: %q is not in the catalog", node.ID, node.use()))
			}
		}
	}

	if doc.Entry != "" && !nodeIDs[doc.Entry] {
		errs = append(errs, fmt.Errorf("entry node %q does not exist", doc.Entry))
	}

	outgoing := make(map[string]bool, len(doc.Edges))
	for i := range doc.Edges {
		edge := &doc.Edges[i]
		if edge.From == "" {
			errs = append(errs, fmt.Errorf("edge %d: from is required", i))
			continue
		}
		if !nodeIDs[edge.From] {
			errs = append(errs, fmt.Errorf("edge from %q: node does not exist", edge.From))
		}
		if outgoing[edge.From] {
			errs = append(errs, fmt.Errorf("edge from %q: node already has an outgoing edge", edge.From))
		}
		outgoing[edge.From] = true
		errs = append(errs, v.validateEdge(edge, nodeIDs)...)
	}

	for _, node := range doc.Nodes {
		if node.ID != "" && !outgoing[node.ID] && !endAliases[node.ID] {
			errs = append(errs, fmt.Errorf("node %s: no outgoing edge", node.ID))
		}
	}

	return errs
}

func (v *Validator) validateState(doc *Document) []error {
	var errs []error
	seen := make(map[string]bool, len(doc.State))
	for _, f := range doc.State {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("state field name is required"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate state field: %s", f.Name))
		}
		seen[f.Name] = true
		if _, err := workflow.ParseMergeStrategy(f.Merge); err != nil {
			errs = append(errs, fmt.Errorf("state field %s: %w", f.Name, err))
		}
	}
	return errs
}

func (v *Validator) validateEdge(edge *EdgeDef, nodeIDs map[string]bool) []error {
	var errs []error
	checkTarget := func(where, target string) {
		if target == "" {
			errs = append(errs, fmt.Errorf("edge from %q: %s target is empty", edge.From, where))
			return
		}
		if !endAliases[target] && !nodeIDs[target] {
			errs = append(errs, fmt.Errorf("edge from %q: %s target %q does not exist", edge.From, where, target))
		}
	}

	switch edge.forms() {
	case 0:
		errs = append(errs, fmt.Errorf("edge from %q: one of to, router or branches is required", edge.From))
		return errs
	case 1:
	default:
		errs = append(errs, fmt.Errorf("edge from %q: to, router and branches are mutually exclusive", edge.From))
		return errs
	}

	switch {
	case edge.To != "":
		checkTarget("to", edge.To)

	case edge.Router != "" || len(edge.Routes) > 0:
		if edge.Router == "" {
			errs = append(errs, fmt.Errorf("edge from %q: routes require a router", edge.From))
		} else if v.catalog != nil {
			if _, ok := v.catalog.Router(edge.Router); !ok {
				errs = append(errs, fmt.Errorf("edge from %q: router %q is not in the catalog", edge.From, edge.Router))
			}
		}
		if len(edge.Routes) == 0 {
			errs = append(errs, fmt.Errorf("edge from %q: router requires routes", edge.From))
		}
		for _, label := range sortedNames(edge.Routes) {
			checkTarget("route "+label, edge.Routes[label])
		}

	default:
		labels := make(map[string]bool, len(edge.Branches))
		for i, br := range edge.Branches {
			label := branchLabel(br, i)
			if labels[label] {
				errs = append(errs, fmt.Errorf("edge from %q: duplicate branch label %q", edge.From, label))
			}
			labels[label] = true
			if _, err := CompileCondition(br.When); err != nil {
				errs = append(errs, fmt.Errorf("edge from %q: branch %s: %w", edge.From, label, err))
			}
			checkTarget("branch "+label, br.To)
		}
		if edge.Default != "" {
			if labels[defaultLabel] {
				errs = append(errs, fmt.Errorf("edge from %q: branch label %q is reserved for the default", edge.From, defaultLabel))
			}
			checkTarget("default", edge.Default)
		}
	}
	return errs
}

const defaultLabel = "default"

func branchLabel(br BranchDef, i int) string {
	if br.Label != "" {
		return br.Label
	}
	return fmt.Sprintf("branch_%d", i)
}
