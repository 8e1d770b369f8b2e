package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/llm"
	"github.com/BaSui01/stategraph/llm/openaicompat"
	"github.com/BaSui01/stategraph/llm/tokenizer"
)

// Provider names accepted in config.LLMConfig.Provider.
const (
	ProviderRule   = "rule"
	ProviderOpenAI = "openai"
)

// New creates the ChatModel selected by cfg.Provider. An empty provider
// means the offline rule model.
func New(cfg config.LLMConfig, logger *zap.Logger) (llm.ChatModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "", ProviderRule:
		return llm.NewRuleModel(
			llm.WithTokenCounter(tokenizer.NewCounter(cfg.Model, logger)),
			llm.WithRuleLogger(logger),
		), nil
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm.base_url is required for the %s provider", cfg.Provider)
		}
		return openaicompat.New(openaicompat.ConfigFrom(cfg), logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
