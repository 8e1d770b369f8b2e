package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/BaSui01/stategraph/types"
)

// Builtin tool names
const (
	MultiplyTool       = "multiply"
	MathCalculatorTool = "math_calculator"
	TextAnalyzerTool   = "text_analyzer"
)

// RegisterBuiltins registers multiply, math_calculator and text_analyzer.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		name string
		fn   ToolFunc
		desc string
		args *types.JSONSchema
	}{
		{
			name: MultiplyTool,
			fn:   multiply,
			desc: "Multiply two numbers together and return the product.",
			args: types.NewObjectSchema().
				AddProperty("a", types.NewNumberSchema().WithDescription("The first number")).
				AddProperty("b", types.NewNumberSchema().WithDescription("The second number")).
				AddRequired("a", "b"),
		},
		{
			name: MathCalculatorTool,
			fn:   mathCalculator,
			desc: "Evaluate an arithmetic expression such as \"sqrt(16) + 2 ** 3\".",
			args: types.NewObjectSchema().
				AddProperty("expression", types.NewStringSchema().WithDescription("The expression to evaluate")).
				AddRequired("expression"),
		},
		{
			name: TextAnalyzerTool,
			fn:   textAnalyzer,
			desc: "Count words, characters, sentences and paragraphs of a text and estimate its reading time.",
			args: types.NewObjectSchema().
				AddProperty("text", types.NewStringSchema().WithDescription("The text to analyze")).
				AddRequired("text"),
		},
	}

	for _, b := range builtins {
		if err := r.Register(b.name, b.fn, Metadata{Schema: types.NewToolSchema(b.name, b.desc, b.args)}); err != nil {
			return err
		}
	}
	return nil
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func multiply(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args struct {
		A *float64 `json:"a"`
		B *float64 `json:"b"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.A == nil || args.B == nil {
		return nil, fmt.Errorf("multiply requires numeric arguments a and b")
	}
	product := *args.A * *args.B
	if math.IsInf(product, 0) {
		return nil, &MathError{Msg: "result overflows"}
	}
	return json.Marshal(FormatNumber(product))
}

// CalculationResult is the math_calculator output.
type CalculationResult struct {
	Result             any    `json:"result"`
	OriginalExpression string `json:"original_expression"`
	ResultType         string `json:"result_type"`
	Success            bool   `json:"success"`
}

func mathCalculator(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	v, err := Calculate(args.Expression)
	if err != nil {
		return nil, err
	}
	res := CalculationResult{
		Result:             FormatNumber(v),
		OriginalExpression: args.Expression,
		ResultType:         "float",
		Success:            true,
	}
	if _, ok := res.Result.(int64); ok {
		res.ResultType = "int"
	}
	return json.Marshal(res)
}

func textAnalyzer(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	a, err := AnalyzeText(args.Text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}
