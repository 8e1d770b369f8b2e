package flows

import (
	"embed"
	"fmt"
	"path"

	"github.com/BaSui01/stategraph/workflow"
	"github.com/BaSui01/stategraph/workflow/dsl"
)

// Catalog names every node and router of the example flows for DSL documents.
// Nodes that need a collaborator missing from deps are left out, so a
// document using them fails validation instead of at run time.
func Catalog(deps Deps) *dsl.MapCatalog {
	c := dsl.NewMapCatalog().
		RegisterNode("input_processor", InputProcessor).
		RegisterNode("data_transformer", DataTransformer(deps.Transformer, deps.logger())).
		RegisterNode("output_generator", OutputGenerator).
		RegisterNode("simple_processor", SimpleProcessor).
		RegisterNode("priority_processor", PriorityProcessor).
		RegisterNode("standard_processor", StandardProcessor).
		RegisterNode("triage", Triage).
		RegisterNode("message_input", MessageInput).
		RegisterNode("message_output", MessageOutput).
		RegisterRouter("word_count", WordCountRouter).
		RegisterRouter("priority", PriorityRouter).
		RegisterRouter("pending_calls", PendingCallsRouter(FieldPendingCalls))

	if deps.Tools != nil {
		c.RegisterNode("tool_processor", ToolProcessor(deps.Tools))
		c.RegisterNode("tool_executor", ToolNode(deps.Tools, FieldPendingCalls, FieldCallResults, FieldMessages))
	}
	if deps.Model != nil {
		c.RegisterNode("agent", Agent(deps.Model, deps.registry(), deps.logger()))
	}
	return c
}

//go:embed graphs/*.yaml
var documents embed.FS

// Document returns the bundled YAML definition of the named flow.
func Document(name string) ([]byte, error) {
	data, err := documents.ReadFile(path.Join("graphs", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("no bundled document for flow %q", name)
	}
	return data, nil
}

// ParseDocument compiles the bundled YAML definition of the named flow.
func ParseDocument(name string, deps Deps) (*workflow.CompiledGraph, error) {
	data, err := Document(name)
	if err != nil {
		return nil, err
	}
	return dsl.NewParser(Catalog(deps), deps.logger()).Parse(data)
}
