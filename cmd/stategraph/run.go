package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/flows"
	"github.com/BaSui01/stategraph/types"
	"github.com/BaSui01/stategraph/workflow"
)

type runOptions struct {
	inputs  []string
	budget  int
	file    string
	fromDoc bool
	format  string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <flow>",
		Short: "Run a flow once per input",
		Long: fmt.Sprintf(`Run one of the bundled flows (%s).

Repeating --input runs the inputs as a batch, engine.batch_concurrency at a time.
--graph runs a YAML graph document against the bundled node catalog instead.

Examples:
  stategraph run basic --input "hello world"
  stategraph run agent --input "What is 15 multiplied by 8?" --format json
  stategraph run conditional --input "short" --input "a much longer text ..."`,
			strings.Join(flows.Names(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Input text (repeatable)")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "Step budget (default: engine.step_budget)")
	cmd.Flags().StringVar(&opts.file, "graph", "", "YAML graph document to run instead of the built-in flow")
	cmd.Flags().BoolVar(&opts.fromDoc, "dsl", false, "Build the flow from its bundled YAML document")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")
	return cmd
}

func runFlow(cmd *cobra.Command, root *rootOptions, opts *runOptions, name string) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unsupported format: %s (use 'text' or 'json')", opts.format)
	}
	if len(opts.inputs) == 0 {
		return fmt.Errorf("at least one --input is required")
	}

	cfg, err := root.load()
	if err != nil {
		return err
	}
	if opts.budget > 0 {
		cfg.Engine.StepBudget = opts.budget
	}
	// 输出写到 stdout，日志改走 stderr
	if len(cfg.Log.OutputPaths) == 1 && cfg.Log.OutputPaths[0] == "stdout" {
		cfg.Log.OutputPaths = []string{"stderr"}
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}()

	g, err := a.graph(name, opts.file, opts.fromDoc)
	if err != nil {
		return err
	}

	ctx, cancel := a.runContext(ctx)
	defer cancel()

	inputs := make([]workflow.Partial, len(opts.inputs))
	for i, in := range opts.inputs {
		inputs[i] = flows.Input(in)
	}

	var (
		results []*workflow.ExecutionResult
		runErr  error
	)
	if len(inputs) == 1 {
		var res *workflow.ExecutionResult
		res, runErr = a.executor.Run(ctx, g, inputs[0])
		results = []*workflow.ExecutionResult{res}
	} else {
		results, runErr = a.executor.RunBatch(ctx, g, inputs, cfg.Engine.BatchConcurrency)
	}

	out := cmd.OutOrStdout()
	views := make([]runView, 0, len(results))
	for _, res := range results {
		if res != nil {
			views = append(views, newRunView(res))
		}
	}
	if opts.format == "json" {
		if err := writeJSON(out, views); err != nil {
			return err
		}
	} else {
		writeText(out, views)
	}
	return runErr
}

// runView is the printable outcome of one run.
type runView struct {
	RunID      string         `json:"run_id"`
	Graph      string         `json:"graph"`
	Status     string         `json:"status"`
	Reason     string         `json:"reason"`
	Steps      int            `json:"steps"`
	Visited    []string       `json:"visited"`
	Output     string         `json:"output"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	State      map[string]any `json:"state"`
}

func newRunView(res *workflow.ExecutionResult) runView {
	v := runView{
		RunID:      res.RunID,
		Graph:      res.Graph,
		Status:     string(res.Status),
		Reason:     string(res.Reason),
		Steps:      res.Steps,
		Visited:    res.Visited,
		Output:     res.State.String(flows.FieldOutput),
		DurationMS: res.Duration.Milliseconds(),
		State:      res.State.Values(),
	}
	if v.Output == "" {
		v.Output = res.State.String(flows.FieldProcessed)
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
		v.ErrorCode = string(types.GetErrorCode(res.Err))
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeText(w io.Writer, views []runView) {
	for i, v := range views {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, v.Output)
		fmt.Fprintf(w, "-- %s: %s after %d steps (%s) in %s\n",
			v.Graph, v.Reason, v.Steps, strings.Join(v.Visited, " → "),
			(time.Duration(v.DurationMS) * time.Millisecond).String())
		if v.Error != "" {
			fmt.Fprintf(w, "-- error: %s\n", v.Error)
		}
	}
}
