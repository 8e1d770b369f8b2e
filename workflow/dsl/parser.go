package dsl

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/stategraph/workflow"
)

// Parser DSL 解析器：YAML 文档 → 已编译的状态图
type Parser struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewParser 创建 DSL 解析器
func NewParser(catalog Catalog, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		catalog: catalog,
		logger:  logger.With(zap.String("component", "graph_dsl")),
	}
}

// ParseFile 从文件解析 DSL
func (p *Parser) ParseFile(filename string) (*workflow.CompiledGraph, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read DSL file: %w", err)
	}
	return p.Parse(data)
}

// Parse 从 YAML 字节解析 DSL
func (p *Parser) Parse(data []byte) (*workflow.CompiledGraph, error) {
	doc, err := Load(data)
	if err != nil {
		return nil, err
	}
	return p.Build(doc)
}

// Load decodes a Document without validating it. Unknown keys are rejected.
func Load(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &doc, nil
}

// Build validates doc and compiles it into a graph.
func (p *Parser) Build(doc *Document) (*workflow.CompiledGraph, error) {
	if p.catalog == nil {
		return nil, fmt.Errorf("dsl parser has no catalog")
	}

	// 1. 验证文档
	if errs := NewValidator(p.catalog).Validate(doc); len(errs) > 0 {
		return nil, &ValidationError{Document: doc.Name, Problems: errs}
	}

	// 2. 状态模式
	schema, err := buildSchema(doc.State)
	if err != nil {
		return nil, fmt.Errorf("build state schema: %w", err)
	}

	// 3. 节点与边
	b := workflow.NewGraphBuilder(doc.Name, schema).WithLogger(p.logger)
	for _, node := range doc.Nodes {
		fn, _ := p.catalog.Node(node.use())
		b.AddNode(node.ID, fn)
	}
	for _, edge := range doc.Edges {
		switch {
		case edge.To != "":
			b.AddEdge(edge.From, resolveTarget(edge.To))
		case edge.Router != "":
			router, _ := p.catalog.Router(edge.Router)
			routes := make(map[string]string, len(edge.Routes))
			for label, target := range edge.Routes {
				routes[label] = resolveTarget(target)
			}
			b.AddConditionalEdges(edge.From, router, routes)
		default:
			router, routes, err := branchRouter(edge)
			if err != nil {
				return nil, fmt.Errorf("edge from %q: %w", edge.From, err)
			}
			b.AddConditionalEdges(edge.From, router, routes)
		}
	}
	b.SetEntry(doc.Entry)

	g, err := b.Compile()
	if err != nil {
		return nil, err
	}
	p.logger.Debug("graph document compiled",
		zap.String("graph", doc.Name),
		zap.Int("nodes", len(doc.Nodes)),
		zap.Int("edges", len(doc.Edges)),
	)
	return g, nil
}

func buildSchema(defs []FieldDef) (*workflow.Schema, error) {
	fields := make([]workflow.Field, 0, len(defs))
	for _, def := range defs {
		strategy, err := workflow.ParseMergeStrategy(def.Merge)
		if err != nil {
			return nil, err
		}
		f := workflow.Field{Name: def.Name, Strategy: strategy}
		if def.Default != nil {
			f = f.WithDefault(def.Default)
		}
		fields = append(fields, f)
	}
	return workflow.NewSchema(fields...)
}

// branchRouter compiles the branch conditions of edge into a router. The first
// branch whose condition holds wins; with none holding the router returns the
// default label, which is undeclared when no default is given.
func branchRouter(edge EdgeDef) (workflow.Router, map[string]string, error) {
	type branch struct {
		label string
		cond  *Condition
	}
	branches := make([]branch, 0, len(edge.Branches))
	routes := make(map[string]string, len(edge.Branches)+1)
	for i, br := range edge.Branches {
		cond, err := CompileCondition(br.When)
		if err != nil {
			return nil, nil, err
		}
		label := branchLabel(br, i)
		branches = append(branches, branch{label: label, cond: cond})
		routes[label] = resolveTarget(br.To)
	}
	if edge.Default != "" {
		routes[defaultLabel] = resolveTarget(edge.Default)
	}

	router := func(_ context.Context, s workflow.State) (string, error) {
		vars := s.Values()
		for _, b := range branches {
			if b.cond.Eval(vars) {
				return b.label, nil
			}
		}
		return defaultLabel, nil
	}
	return router, routes, nil
}
