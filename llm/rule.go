package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/types"
)

// MultiplyToolName is the tool RuleModel asks for on multiplication requests.
const MultiplyToolName = "multiply"

var (
	number = `(-?\d+(?:\.\d+)?)`
	// "15 * 8", "15 x 8", "15 times 8", "15 multiplied by 8"
	infixProduct = regexp.MustCompile(`(?i)` + number + `\s*(?:\*|×|x|times|multiplied\s+by)\s*` + number)
	// "multiply 3 and 4", "product of 3 and 4"
	prefixProduct = regexp.MustCompile(`(?i)(?:multiply|product\s+of)\s+` + number + `\s+(?:and|by|with|times)\s+` + number)
)

// RuleModel is an offline deterministic model. It answers a multiplication
// request with a multiply tool call when that tool is offered, turns tool
// results into a final answer, and replies directly to anything else.
type RuleModel struct {
	counter types.TokenCounter
	newID   func() string
	logger  *zap.Logger
}

// RuleOption RuleModel 选项
type RuleOption func(*RuleModel)

// WithTokenCounter sets the counter used to fill ChatResponse.Usage.
func WithTokenCounter(c types.TokenCounter) RuleOption {
	return func(m *RuleModel) {
		if c != nil {
			m.counter = c
		}
	}
}

// WithCallIDGenerator overrides how tool call IDs are generated.
func WithCallIDGenerator(fn func() string) RuleOption {
	return func(m *RuleModel) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithRuleLogger 设置日志
func WithRuleLogger(logger *zap.Logger) RuleOption {
	return func(m *RuleModel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewRuleModel 创建离线规则模型
func NewRuleModel(opts ...RuleOption) *RuleModel {
	m := &RuleModel{
		counter: types.NewEstimateTokenizer(),
		newID:   func() string { return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24] },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "rule_model"))
	return m
}

// Name implements ChatModel.
func (m *RuleModel) Name() string { return "rule" }

// Chat implements ChatModel.
func (m *RuleModel) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil || len(req.Messages) == 0 {
		return nil, &Error{Code: ErrInvalidRequest, Message: "messages must not be empty", Provider: m.Name()}
	}

	var msg types.Message
	if results := trailingToolResults(req.Messages); len(results) > 0 {
		msg = types.NewAssistantMessage(answerFromResults(results))
	} else if a, b, ok := parseProduct(lastUserText(req.Messages)); ok && req.HasTool(MultiplyToolName) {
		args, err := json.Marshal(map[string]float64{"a": a, "b": b})
		if err != nil {
			return nil, fmt.Errorf("marshal multiply arguments: %w", err)
		}
		msg = types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{{
			ID:        m.newID(),
			Name:      MultiplyToolName,
			Arguments: args,
		}})
		m.logger.Debug("multiplication request, calling tool", zap.Float64("a", a), zap.Float64("b", b))
	} else {
		msg = types.NewAssistantMessage(directReply(lastUserText(req.Messages)))
	}

	finish := FinishStop
	if msg.HasToolCalls() {
		finish = FinishToolCalls
	}
	prompt := m.counter.CountMessagesTokens(req.Messages)
	completion := m.counter.CountMessagesTokens([]types.Message{msg})
	return &ChatResponse{
		Provider:     m.Name(),
		Model:        req.Model,
		Message:      msg,
		FinishReason: finish,
		Usage: types.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// parseProduct extracts the two factors of a multiplication request.
func parseProduct(text string) (float64, float64, bool) {
	for _, re := range []*regexp.Regexp{prefixProduct, infixProduct} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA == nil && errB == nil {
			return a, b, true
		}
	}
	return 0, 0, false
}

func lastUserText(msgs []types.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// trailingToolResults returns the tool messages after the last assistant turn.
func trailingToolResults(msgs []types.Message) []types.Message {
	i := len(msgs)
	for i > 0 && msgs[i-1].Role == types.RoleTool {
		i--
	}
	return msgs[i:]
}

func answerFromResults(results []types.Message) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if msg, failed := strings.CutPrefix(r.Content, "Error: "); failed {
			return "I could not complete the calculation: " + msg
		}
		parts = append(parts, r.Content)
	}
	return fmt.Sprintf("The result is %s.", strings.Join(parts, ", "))
}

func directReply(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "How can I help you?"
	}
	return fmt.Sprintf("I can only multiply numbers while offline. You said: %s", text)
}
