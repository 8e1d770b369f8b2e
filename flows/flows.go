package flows

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/llm"
	"github.com/BaSui01/stategraph/tools"
	"github.com/BaSui01/stategraph/workflow"
)

// Flow names
const (
	FlowBasic       = "basic"
	FlowTools       = "tools"
	FlowConditional = "conditional"
	FlowPriority    = "priority"
	FlowAgent       = "agent"
)

// Deps are the collaborators injected into flow nodes.
type Deps struct {
	// Model drives the agent node. Required by the agent flow.
	Model llm.ChatModel
	// Transformer, when set, rewrites text in data_transformer.
	Transformer llm.ChatModel
	// Tools executes tool calls for the tools and agent flows.
	Tools  *tools.Executor
	Logger *zap.Logger
}

// DefaultDeps wires the offline rule model and the builtin tools.
func DefaultDeps(logger *zap.Logger) (Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := tools.NewRegistry(tools.WithRegistryLogger(logger))
	if err := tools.RegisterBuiltins(reg); err != nil {
		return Deps{}, err
	}
	return Deps{
		Model:  llm.NewRuleModel(llm.WithRuleLogger(logger)),
		Tools:  tools.NewExecutor(reg, tools.WithExecutorLogger(logger)),
		Logger: logger,
	}, nil
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) registry() *tools.Registry {
	if d.Tools == nil {
		return nil
	}
	return d.Tools.Registry()
}

var builders = map[string]func(Deps) (*workflow.CompiledGraph, error){
	FlowBasic:       Basic,
	FlowTools:       ToolsFlow,
	FlowConditional: Conditional,
	FlowPriority:    Priority,
	FlowAgent:       AgentFlow,
}

// Names returns the available flow names in sorted order.
func Names() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build compiles the named flow.
func Build(name string, deps Deps) (*workflow.CompiledGraph, error) {
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q (available: %v)", name, Names())
	}
	return b(deps)
}

func newBuilder(name string, deps Deps) *workflow.GraphBuilder {
	return workflow.NewGraphBuilder(name, Schema()).WithLogger(deps.logger())
}

// Basic: input_processor → data_transformer → output_generator → END
func Basic(deps Deps) (*workflow.CompiledGraph, error) {
	return newBuilder(FlowBasic, deps).
		AddNode("input_processor", InputProcessor).
		AddNode("data_transformer", DataTransformer(deps.Transformer, deps.logger())).
		AddNode("output_generator", OutputGenerator).
		AddEdge("input_processor", "data_transformer").
		AddEdge("data_transformer", "output_generator").
		AddEdge("output_generator", workflow.Terminal).
		SetEntry("input_processor").
		Compile()
}

// ToolsFlow: input_processor → tool_processor → output_generator → END
func ToolsFlow(deps Deps) (*workflow.CompiledGraph, error) {
	if deps.Tools == nil {
		return nil, fmt.Errorf("flow %s requires a tool executor", FlowTools)
	}
	return newBuilder(FlowTools, deps).
		AddNode("input_processor", InputProcessor).
		AddNode("tool_processor", ToolProcessor(deps.Tools)).
		AddNode("output_generator", OutputGenerator).
		AddEdge("input_processor", "tool_processor").
		AddEdge("tool_processor", "output_generator").
		AddEdge("output_generator", workflow.Terminal).
		SetEntry("input_processor").
		Compile()
}

// Conditional routes long texts through data_transformer and short ones
// through simple_processor before output_generator.
func Conditional(deps Deps) (*workflow.CompiledGraph, error) {
	return newBuilder(FlowConditional, deps).
		AddNode("input_processor", InputProcessor).
		AddNode("data_transformer", DataTransformer(deps.Transformer, deps.logger())).
		AddNode("simple_processor", SimpleProcessor).
		AddNode("output_generator", OutputGenerator).
		AddConditionalEdges("input_processor", WordCountRouter, map[string]string{
			RouteLong:  "data_transformer",
			RouteShort: "simple_processor",
		}).
		AddEdge("data_transformer", "output_generator").
		AddEdge("simple_processor", "output_generator").
		AddEdge("output_generator", workflow.Terminal).
		SetEntry("input_processor").
		Compile()
}

// Priority routes on keywords to one of three processors, each ending the run.
func Priority(deps Deps) (*workflow.CompiledGraph, error) {
	return newBuilder(FlowPriority, deps).
		AddNode("router", Triage).
		AddNode("priority_processor", PriorityProcessor).
		AddNode("simple_processor", SimpleProcessor).
		AddNode("standard_processor", StandardProcessor).
		AddConditionalEdges("router", PriorityRouter, map[string]string{
			RoutePriority: "priority_processor",
			RouteSimple:   "simple_processor",
			RouteStandard: "standard_processor",
		}).
		AddEdge("priority_processor", workflow.Terminal).
		AddEdge("simple_processor", workflow.Terminal).
		AddEdge("standard_processor", workflow.Terminal).
		SetEntry("router").
		Compile()
}

// AgentFlow is the tool loop:
//
//	input_processor → agent ─(pending calls)→ tools → agent
//	                        └─(none)→ output → END
func AgentFlow(deps Deps) (*workflow.CompiledGraph, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("flow %s requires a chat model", FlowAgent)
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("flow %s requires a tool executor", FlowAgent)
	}
	return newBuilder(FlowAgent, deps).
		AddNode("input_processor", MessageInput).
		AddNode("agent", Agent(deps.Model, deps.registry(), deps.logger())).
		AddNode("tools", ToolNode(deps.Tools, FieldPendingCalls, FieldCallResults, FieldMessages)).
		AddNode("output", MessageOutput).
		AddEdge("input_processor", "agent").
		AddConditionalEdges("agent", PendingCallsRouter(FieldPendingCalls), map[string]string{
			RouteTools: "tools",
			RouteEnd:   "output",
		}).
		AddEdge("tools", "agent").
		AddEdge("output", workflow.Terminal).
		SetEntry("input_processor").
		Compile()
}
