package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/flows"
	"github.com/BaSui01/stategraph/internal/metrics"
	"github.com/BaSui01/stategraph/internal/telemetry"
	"github.com/BaSui01/stategraph/llm"
	llmfactory "github.com/BaSui01/stategraph/llm/factory"
	"github.com/BaSui01/stategraph/tools"
	"github.com/BaSui01/stategraph/workflow"
	"github.com/BaSui01/stategraph/workflow/dsl"
	"github.com/BaSui01/stategraph/workflow/persistence"
)

const instrumentationName = "github.com/BaSui01/stategraph"

// app holds the collaborators wired from one configuration.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers
	tracer    trace.Tracer
	history   persistence.Store

	deps     flows.Deps
	executor *workflow.Executor
}

// newApp wires telemetry, metrics, history, the chat model and the tool
// executor from cfg. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	// 1. OpenTelemetry
	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.otel = providers
	a.tracer = providers.Tracer(instrumentationName)

	// 2. 指标
	var recorders []workflow.MetricsRecorder
	if cfg.Metrics.Enabled {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.collector = metrics.NewCollectorWith(cfg.Metrics.Namespace, a.registry, logger)
		recorders = append(recorders, a.collector)
	}
	if providers.Enabled() {
		rec, err := telemetry.NewRecorder(providers.Meter(instrumentationName))
		if err != nil {
			logger.Warn("failed to create otel metrics recorder", zap.Error(err))
		} else {
			recorders = append(recorders, rec)
		}
	}

	// 3. 运行历史
	a.history, err = persistence.NewHistoryStore(ctx, cfg, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("history store: %w", err)
	}

	// 4. LLM 与工具
	model, err := llmfactory.New(cfg.LLM, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	var llmRecorder llm.RequestRecorder
	if a.collector != nil {
		llmRecorder = a.collector
	}
	model = llm.Instrument(model, llmRecorder, a.tracer, logger)

	toolExec, err := a.newToolExecutor()
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.deps = flows.Deps{Model: model, Tools: toolExec, Logger: logger}
	if cfg.LLM.Provider == llmfactory.ProviderOpenAI {
		a.deps.Transformer = model
	}

	// 5. 执行器
	opts := []workflow.ExecutorOption{
		workflow.WithStepBudget(cfg.Engine.StepBudget),
		workflow.WithLogger(logger),
		workflow.WithTracer(a.tracer),
	}
	if len(recorders) > 0 {
		opts = append(opts, workflow.WithMetrics(telemetry.Tee(recorders...)))
	}
	if a.history != nil {
		opts = append(opts, workflow.WithHistoryStore(a.history))
	}
	a.executor = workflow.NewExecutor(opts...)

	logger.Info("stategraph initialized",
		zap.String("llm_provider", model.Name()),
		zap.String("history_backend", cfg.History.Backend),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("telemetry", providers.Enabled()),
	)
	return a, nil
}

func (a *app) newToolExecutor() (*tools.Executor, error) {
	regOpts := []tools.RegistryOption{tools.WithRegistryLogger(a.logger)}
	if a.cfg.Tools.RateLimitRPS > 0 {
		regOpts = append(regOpts, tools.WithDefaultRateLimit(&tools.RateLimit{
			RPS:   a.cfg.Tools.RateLimitRPS,
			Burst: a.cfg.Tools.RateLimitBurst,
		}))
	}
	reg := tools.NewRegistry(regOpts...)
	if err := tools.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}

	execOpts := []tools.ExecutorOption{
		tools.WithExecutorLogger(a.logger),
		tools.WithTimeout(a.cfg.Tools.Timeout),
		tools.WithMaxConcurrency(a.cfg.Tools.MaxConcurrency),
	}
	if a.collector != nil {
		execOpts = append(execOpts, tools.WithCallObserver(a.collector.RecordToolCall))
	}
	return tools.NewExecutor(reg, execOpts...), nil
}

// graph resolves the graph to run: a YAML file when file is set, the bundled
// document when fromDoc is set, and the flow built in code otherwise.
func (a *app) graph(name, file string, fromDoc bool) (*workflow.CompiledGraph, error) {
	switch {
	case file != "":
		return dsl.NewParser(flows.Catalog(a.deps), a.logger).ParseFile(file)
	case fromDoc:
		return flows.ParseDocument(name, a.deps)
	default:
		return flows.Build(name, a.deps)
	}
}

// runContext applies engine.run_timeout to ctx.
func (a *app) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Engine.RunTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Engine.RunTimeout)
	}
	return context.WithCancel(ctx)
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
