package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/stategraph/types"
)

// CallObserver is told about every finished call (metrics hook).
type CallObserver func(name string, success bool, duration time.Duration)

// Executor runs tool calls against a Registry.
type Executor struct {
	registry       *Registry
	maxConcurrency int
	timeout        time.Duration
	observer       CallObserver
	logger         *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxConcurrency bounds parallel calls. n <= 0 means unbounded.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(e *Executor) { e.maxConcurrency = n }
}

// WithTimeout caps every call, on top of the per-tool timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithCallObserver registers a hook called after every call.
func WithCallObserver(o CallObserver) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor 创建工具执行器
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "tool_executor"))
	return e
}

// Registry returns the registry the executor resolves tools from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs calls in parallel. results[i] belongs to calls[i]; a failing
// call never affects the others.
func (e *Executor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ExecuteOne runs a single call.
func (e *Executor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}
	fail := func(msg string, fields ...zap.Field) types.ToolResult {
		result.Error = msg
		result.Duration = time.Since(start)
		e.logger.Warn("tool call failed", append(fields, zap.String("name", call.Name), zap.String("error", msg))...)
		e.observe(call.Name, false, result.Duration)
		return result
	}

	// 1. 查找工具
	ent, err := e.registry.lookup(call.Name)
	if err != nil {
		return fail(fmt.Sprintf("tool not found: %s", call.Name))
	}

	// 2. 按参数 schema 校验
	if err := ent.params.Validate(call.Arguments); err != nil {
		return fail(fmt.Sprintf("invalid arguments: %v", err))
	}

	timeout := ent.meta.Timeout
	if e.timeout > 0 && e.timeout < timeout {
		timeout = e.timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 3. 速率限制：在超时内等待令牌
	if ent.limiter != nil {
		if err := ent.limiter.Wait(execCtx); err != nil {
			return fail(fmt.Sprintf("rate limit exceeded: %v", err))
		}
	}

	// 4. 执行（带超时控制），带缓冲的 channel 保证 goroutine 能退出
	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		res, err := ent.fn(execCtx, call.Arguments)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return fail(out.err.Error())
		}
		result.Result = out.res
		result.Duration = time.Since(start)
		e.logger.Debug("tool executed", zap.String("name", call.Name), zap.Duration("duration", result.Duration))
		e.observe(call.Name, true, result.Duration)
		return result

	case <-execCtx.Done():
		if ctx.Err() != nil {
			return fail(fmt.Sprintf("cancelled: %v", ctx.Err()))
		}
		return fail(fmt.Sprintf("execution timeout after %s", timeout), zap.Duration("timeout", timeout))
	}
}

func (e *Executor) observe(name string, ok bool, d time.Duration) {
	if e.observer != nil {
		e.observer(name, ok, d)
	}
}
