package tokenizer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/types"
)

// Counter adapts a Tokenizer to types.TokenCounter. When the primary
// tokenizer fails (for example the tiktoken data cannot be loaded) it warns
// once and keeps counting with the estimator.
type Counter struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger
	warnOnce sync.Once
}

var _ types.TokenCounter = (*Counter)(nil)

// NewCounter 为模型创建 token 计数器
func NewCounter(model string, logger *zap.Logger) *Counter {
	return newCounter(ForModel(model), NewEstimatorTokenizer(model, 0), logger)
}

func newCounter(primary, fallback Tokenizer, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "token_counter")),
	}
}

// Name returns the name of the tokenizer currently in use.
func (c *Counter) Name() string {
	return c.primary.Name()
}

// CountTokens implements types.TokenCounter.
func (c *Counter) CountTokens(text string) int {
	n, err := c.primary.CountTokens(text)
	if err != nil {
		c.degrade(err)
		n, _ = c.fallback.CountTokens(text)
	}
	return n
}

// CountMessagesTokens implements types.TokenCounter.
func (c *Counter) CountMessagesTokens(msgs []types.Message) int {
	n, err := c.primary.CountMessages(msgs)
	if err != nil {
		c.degrade(err)
		n, _ = c.fallback.CountMessages(msgs)
	}
	return n
}

func (c *Counter) degrade(err error) {
	c.warnOnce.Do(func() {
		c.logger.Warn("tokenizer unavailable, falling back to estimator",
			zap.String("tokenizer", c.primary.Name()),
			zap.Error(err),
		)
	})
}
