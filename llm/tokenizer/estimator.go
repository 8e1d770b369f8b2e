package tokenizer

import (
	"github.com/BaSui01/stategraph/types"
)

// EstimatorTokenizer is a character-count-based estimator. Han characters
// count as about 1.5 per token and everything else as 4 per token. It never
// fails.
type EstimatorTokenizer struct {
	model     string
	maxTokens int
	est       *types.EstimateTokenizer
}

// NewEstimatorTokenizer creates a generic estimator.
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &EstimatorTokenizer{
		model:     model,
		maxTokens: maxTokens,
		est:       types.NewEstimateTokenizer(),
	}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	return e.est.CountTokens(text), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []types.Message) (int, error) {
	// 对话结束开销 3 token
	return e.est.CountMessagesTokens(messages) + 3, nil
}

func (e *EstimatorTokenizer) MaxTokens() int {
	return e.maxTokens
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}
