package tokenizer

import (
	"strings"

	"github.com/BaSui01/stategraph/types"
)

// Tokenizer 统一的 token 计数接口
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数，包括每条消息的角色和分隔开销
	CountMessages(messages []types.Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度
	MaxTokens() int

	// Name 返回分词器名称
	Name() string
}

// ForModel returns a tiktoken tokenizer for OpenAI-family models and the
// estimator for everything else.
func ForModel(model string) Tokenizer {
	if info, ok := lookupEncoding(model); ok {
		return newTiktoken(model, info)
	}
	return NewEstimatorTokenizer(model, 0)
}

// lookupEncoding matches model exactly, then by the longest known prefix so
// "gpt-4o-mini-2024" resolves to gpt-4o-mini rather than gpt-4.
func lookupEncoding(model string) (encodingInfo, bool) {
	if info, ok := modelEncodings[model]; ok {
		return info, true
	}
	var (
		best    encodingInfo
		bestLen int
	)
	for prefix, info := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = info, len(prefix)
		}
	}
	return best, bestLen > 0
}
