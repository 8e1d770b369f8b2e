package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/flows"
	"github.com/BaSui01/stategraph/workflow"
	"github.com/BaSui01/stategraph/workflow/dsl"
)

type exportOptions struct {
	format string
	output string
	file   string
}

func newExportCmd(_ *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <flow>",
		Short: "Export a flow's graph structure",
		Long: `Export a bundled flow, or a YAML graph document, to Mermaid, JSON or YAML.

Examples:
  stategraph export agent
  stategraph export conditional --format json
  stategraph export any --graph graph.yaml --format mermaid --output graph.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "mermaid", "Output format: mermaid, json, yaml")
	cmd.Flags().StringVar(&opts.output, "output", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&opts.file, "graph", "", "YAML graph document to export instead of the built-in flow")
	return cmd
}

func runExport(cmd *cobra.Command, opts *exportOptions, name string) error {
	// 导出只需要图结构，使用离线依赖
	deps, err := flows.DefaultDeps(zap.NewNop())
	if err != nil {
		return err
	}

	var g *workflow.CompiledGraph
	if opts.file != "" {
		g, err = dsl.NewParser(flows.Catalog(deps), nil).ParseFile(opts.file)
	} else {
		g, err = flows.Build(name, deps)
	}
	if err != nil {
		return err
	}

	var output string
	switch opts.format {
	case "mermaid":
		output = g.ToMermaid()
	case "json":
		output, err = g.Definition().ToJSON()
	case "yaml":
		output, err = g.Definition().ToYAML()
	default:
		return fmt.Errorf("unsupported format: %s (use 'mermaid', 'json' or 'yaml')", opts.format)
	}
	if err != nil {
		return fmt.Errorf("failed to generate %s: %w", opts.format, err)
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, []byte(output), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Graph exported to %s\n", opts.output)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}
