package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// RequestRecorder receives one observation per chat request.
type RequestRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

type instrumented struct {
	next     ChatModel
	recorder RequestRecorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Instrument wraps model so every Chat call is traced, logged and recorded.
// recorder and tracer may be nil.
func Instrument(model ChatModel, recorder RequestRecorder, tracer trace.Tracer, logger *zap.Logger) ChatModel {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{
		next:     model,
		recorder: recorder,
		tracer:   tracer,
		logger:   logger.With(zap.String("component", "llm"), zap.String("provider", model.Name())),
	}
}

func (m *instrumented) Name() string { return m.next.Name() }

func (m *instrumented) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ctx, span := m.tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("llm.provider", m.next.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	))
	defer span.End()

	start := time.Now()
	resp, err := m.next.Chat(ctx, req)
	duration := time.Since(start)

	status := "success"
	var prompt, completion int
	model := req.Model
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("chat request failed",
			zap.String("model", model),
			zap.String("error_code", string(CodeOf(err))),
			zap.Error(err),
		)
	} else {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		if resp.Model != "" {
			model = resp.Model
		}
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", prompt),
			attribute.Int("llm.usage.completion_tokens", completion),
			attribute.Int("llm.tool_calls", len(resp.Message.ToolCalls)),
		)
		m.logger.Debug("chat request completed",
			zap.String("model", model),
			zap.String("finish_reason", resp.FinishReason),
			zap.Duration("duration", duration),
		)
	}

	if m.recorder != nil {
		m.recorder.RecordLLMRequest(m.next.Name(), model, status, duration, prompt, completion)
	}
	return resp, err
}
