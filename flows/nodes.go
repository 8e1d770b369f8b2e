package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/llm"
	"github.com/BaSui01/stategraph/tools"
	"github.com/BaSui01/stategraph/types"
	"github.com/BaSui01/stategraph/workflow"
)

// InputProcessor trims and upper-cases the input.
func InputProcessor(_ context.Context, s workflow.State) (workflow.Partial, error) {
	return workflow.Partial{
		FieldProcessed: "Processing: " + strings.ToUpper(strings.TrimSpace(s.String(FieldInput))),
		FieldStep:      "input_processed",
	}, nil
}

// DataTransformer rewrites the processed text with model. A nil model, or a
// failing one, falls back to a fixed transformation so the flow stays usable
// offline.
func DataTransformer(model llm.ChatModel, logger *zap.Logger) workflow.NodeFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, s workflow.State) (workflow.Partial, error) {
		processed := s.String(FieldProcessed)
		transformed := fallbackTransform(processed)

		if model != nil {
			resp, err := model.Chat(ctx, &llm.ChatRequest{Messages: []types.Message{
				types.NewUserMessage("Transform this text into a creative format: " + processed),
			}})
			switch {
			case err != nil:
				logger.Warn("llm transform failed, using fallback", zap.Error(err))
			case strings.TrimSpace(resp.Message.Content) != "":
				transformed = resp.Message.Content
			}
		}
		return workflow.Partial{FieldTransformed: transformed, FieldStep: "data_transformed"}, nil
	}
}

func fallbackTransform(processed string) string {
	return "✨ TRANSFORMED: " + strings.Replace(processed, "Processing:", "ENHANCED:", 1) + " ✨"
}

// OutputGenerator formats the final output.
func OutputGenerator(_ context.Context, s workflow.State) (workflow.Partial, error) {
	out := strings.Join([]string{
		"📋 STATEGRAPH WORKFLOW RESULT",
		"═══════════════════════════",
		"Original Input: " + s.String(FieldInput),
		"Final Output: " + s.String(FieldTransformed),
		"═══════════════════════════",
		"✅ Processing completed successfully!",
	}, "\n")
	return workflow.Partial{FieldOutput: out, FieldStep: "output_generated"}, nil
}

// toolReport is stored as JSON in tool_results.
type toolReport struct {
	TextAnalysis *tools.TextAnalysis `json:"text_analysis"`
	Calculations struct {
		AverageCharsPerWord any    `json:"average_chars_per_word"`
		ReadingEfficiency   string `json:"reading_efficiency"`
	} `json:"calculations"`
}

// ToolProcessor analyzes the processed text with text_analyzer, computes the
// average characters per word with math_calculator, and writes an enhanced
// text plus a JSON report.
func ToolProcessor(exec *tools.Executor) workflow.NodeFunc {
	return func(ctx context.Context, s workflow.State) (workflow.Partial, error) {
		processed := s.String(FieldProcessed)

		results := exec.Execute(ctx, []types.ToolCall{toolCall(tools.TextAnalyzerTool, map[string]any{"text": processed})})
		if results[0].IsError() {
			return nil, fmt.Errorf("%s: %s", tools.TextAnalyzerTool, results[0].Error)
		}
		var analysis tools.TextAnalysis
		if err := json.Unmarshal(results[0].Result, &analysis); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", tools.TextAnalyzerTool, err)
		}

		var report toolReport
		report.TextAnalysis = &analysis
		var avg float64
		if analysis.WordCount > 0 {
			expr := fmt.Sprintf("%d / %d", analysis.CharacterCount, analysis.WordCount)
			calc := exec.Execute(ctx, []types.ToolCall{toolCall(tools.MathCalculatorTool, map[string]any{"expression": expr})})[0]
			if calc.IsError() {
				return nil, fmt.Errorf("%s: %s", tools.MathCalculatorTool, calc.Error)
			}
			var cr struct {
				Result float64 `json:"result"`
			}
			if err := json.Unmarshal(calc.Result, &cr); err != nil {
				return nil, fmt.Errorf("decode %s result: %w", tools.MathCalculatorTool, err)
			}
			avg = cr.Result
		}
		report.Calculations.AverageCharsPerWord = tools.FormatNumber(avg)
		report.Calculations.ReadingEfficiency = "normal"
		if avg < 5 {
			report.Calculations.ReadingEfficiency = "high"
		}

		raw, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode tool report: %w", err)
		}

		longest := analysis.LongestWord
		if longest == "" {
			longest = "N/A"
		}
		enhanced := strings.Join([]string{
			"🔧 TOOL-ENHANCED ANALYSIS:",
			processed,
			"",
			"📊 Analysis Results:",
			fmt.Sprintf("- Words: %d", analysis.WordCount),
			fmt.Sprintf("- Characters: %d", analysis.CharacterCount),
			fmt.Sprintf("- Sentences: %d", analysis.SentenceCount),
			fmt.Sprintf("- Reading Time: %.1f minutes", analysis.ReadingTimeMinutes),
			fmt.Sprintf("- Avg Chars/Word: %v", tools.FormatNumber(avg)),
			"- Longest Word: " + longest,
			"",
			"🎯 " + analysis.Summary,
		}, "\n")

		return workflow.Partial{
			FieldTransformed: enhanced,
			FieldToolReport:  string(raw),
			FieldStep:        "tool_processed",
		}, nil
	}
}

func toolCall(name string, args map[string]any) types.ToolCall {
	raw, _ := json.Marshal(args)
	return types.ToolCall{ID: "call_" + uuid.NewString(), Name: name, Arguments: raw}
}

// SimpleProcessor handles short or "simple" inputs with minimal processing.
func SimpleProcessor(_ context.Context, s workflow.State) (workflow.Partial, error) {
	text := "📝 SIMPLE: " + s.String(FieldInput)
	return workflow.Partial{FieldProcessed: text, FieldTransformed: text, FieldStep: "simple_processed"}, nil
}

// PriorityProcessor handles urgent inputs.
func PriorityProcessor(_ context.Context, s workflow.State) (workflow.Partial, error) {
	return workflow.Partial{FieldProcessed: "🚨 PRIORITY: " + s.String(FieldInput), FieldStep: "priority_processed"}, nil
}

// StandardProcessor handles everything else.
func StandardProcessor(_ context.Context, s workflow.State) (workflow.Partial, error) {
	return workflow.Partial{FieldProcessed: "⚙️ STANDARD: " + s.String(FieldInput), FieldStep: "standard_processed"}, nil
}

// Triage is the priority flow's entry node; the decision itself is made by
// PriorityRouter on its outgoing edge.
func Triage(context.Context, workflow.State) (workflow.Partial, error) {
	return workflow.Partial{FieldStep: "triaged"}, nil
}

// Route labels
const (
	RouteLong     = "long"
	RouteShort    = "short"
	RoutePriority = "priority"
	RouteSimple   = "simple"
	RouteStandard = "standard"
)

// WordCountThreshold 超过该字数的文本走完整转换
const WordCountThreshold = 10

// WordCountRouter routes on the word count of processed_text.
func WordCountRouter(_ context.Context, s workflow.State) (string, error) {
	if len(strings.Fields(s.String(FieldProcessed))) > WordCountThreshold {
		return RouteLong, nil
	}
	return RouteShort, nil
}

// PriorityRouter routes on the keywords "urgent" and "simple", in that order.
func PriorityRouter(_ context.Context, s workflow.State) (string, error) {
	text := strings.ToLower(s.String(FieldInput))
	switch {
	case strings.Contains(text, "urgent"):
		return RoutePriority, nil
	case strings.Contains(text, "simple"):
		return RouteSimple, nil
	default:
		return RouteStandard, nil
	}
}
