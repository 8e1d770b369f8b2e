package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/llm"
)

// Config holds the configuration for an OpenAI-compatible endpoint.
type Config struct {
	// ProviderName identifies the provider in errors, logs and metrics.
	ProviderName string
	APIKey       string
	// BaseURL includes the API version, e.g. "https://api.openai.com/v1".
	BaseURL string
	// Model is used when a request does not name one.
	Model string
	// Timeout is the HTTP client timeout. Defaults to 60s.
	Timeout time.Duration
	// MaxRetries bounds retries of retryable failures (429, 5xx, network).
	MaxRetries int
	// Temperature and MaxTokens apply when the request leaves them zero.
	Temperature float32
	MaxTokens   int
	// EndpointPath defaults to "/chat/completions".
	EndpointPath string
}

// ConfigFrom builds a Config from the application's LLM section.
func ConfigFrom(cfg config.LLMConfig) Config {
	return Config{
		ProviderName: cfg.Provider,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		Temperature:  float32(cfg.Temperature),
		MaxTokens:    cfg.MaxTokens,
	}
}

// Client is an llm.ChatModel backed by an OpenAI-compatible HTTP API.
type Client struct {
	cfg     Config
	http    *http.Client
	backoff time.Duration
	logger  *zap.Logger
}

var _ llm.ChatModel = (*Client)(nil)

// New creates a client. A nil logger is replaced with a no-op logger.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		backoff: 500 * time.Millisecond,
		logger:  logger.With(zap.String("component", "openaicompat"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name implements llm.ChatModel.
func (c *Client) Name() string { return c.cfg.ProviderName }

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.EndpointPath
}

// Chat implements llm.ChatModel. Retryable failures are retried with
// exponential backoff up to MaxRetries times.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := wireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		ToolChoice:  req.ToolChoice,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.Model == "" {
		body.Model = c.cfg.Model
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.cfg.MaxTokens
	}
	if body.Temperature == 0 {
		body.Temperature = c.cfg.Temperature
	}
	if len(body.Tools) == 0 {
		body.ToolChoice = ""
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			c.logger.Debug("retrying chat request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := c.do(ctx, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, payload []byte) (*llm.ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		code := llm.ErrUpstreamError
		if errors.Is(err, context.DeadlineExceeded) {
			code = llm.ErrUpstreamTimeout
		}
		return nil, &llm.Error{
			Code: code, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: c.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), c.Name())
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: fmt.Sprintf("decode response: %v", err),
			HTTPStatus: http.StatusBadGateway, Provider: c.Name(),
		}
	}
	return toChatResponse(wr, c.Name())
}
