package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/flows"
	"github.com/BaSui01/stategraph/internal/server"
	"github.com/BaSui01/stategraph/workflow"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Serve the bundled flows over HTTP.

Endpoints:
  GET  /health            liveness
  GET  /version           build information
  GET  /metrics           Prometheus metrics
  GET  /v1/flows          available flows
  POST /v1/runs/{flow}    run a flow: {"input": "..."} or {"inputs": ["...", "..."]}
  GET  /v1/runs/{id}      stored run history (requires a history backend)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.HTTPPort = port
			}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			logger.Info("starting stategraph",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("shutdown error", zap.Error(err))
				}
			}()

			m := server.NewManager(a.handler(), server.ConfigFrom(cfg.Server), logger)
			err = m.Run(ctx)
			logger.Info("stategraph stopped")
			return err
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Override server.http_port")
	return cmd
}

// handler builds the HTTP API with its middleware chain.
func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /version", handleVersion)
	mux.HandleFunc("GET /v1/flows", handleFlows)
	mux.HandleFunc("POST /v1/runs/{flow}", a.handleRun)
	mux.HandleFunc("GET /v1/runs/{id}", a.handleHistory)
	if a.collector != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	middlewares := []Middleware{
		Recovery(a.logger),
		RequestID(),
		RequestLogger(a.logger),
		OTelTracing(a.tracer),
	}
	if a.collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(a.collector))
	}
	return Chain(mux, middlewares...)
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if p, ok := a.history.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "history": err.Error()})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, status)
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func handleFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"flows": flows.Names()})
}

// runRequest is the body of POST /v1/runs/{flow}.
type runRequest struct {
	Input  string   `json:"input"`
	Inputs []string `json:"inputs"`
	// DSL builds the flow from its bundled YAML document.
	DSL bool `json:"dsl"`
}

func (a *app) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	texts := req.Inputs
	if len(texts) == 0 {
		texts = []string{req.Input}
	}

	g, err := a.graph(r.PathValue("flow"), "", req.DSL)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	ctx, cancel := a.runContext(r.Context())
	defer cancel()

	inputs := make([]workflow.Partial, len(texts))
	for i, text := range texts {
		inputs[i] = flows.Input(text)
	}
	results, _ := a.executor.RunBatch(ctx, g, inputs, a.cfg.Engine.BatchConcurrency)

	views := make([]runView, len(results))
	status := http.StatusOK
	for i, res := range results {
		views[i] = newRunView(res)
		if !res.Succeeded() {
			status = http.StatusUnprocessableEntity
		}
	}
	if len(req.Inputs) == 0 {
		writeJSONResponse(w, status, views[0])
		return
	}
	writeJSONResponse(w, status, map[string]any{"runs": views})
}

func (a *app) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeJSONError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	h, err := a.history.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, workflow.ErrHistoryNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case err != nil:
		a.logger.Error("history lookup failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "history lookup failed")
	default:
		writeJSONResponse(w, http.StatusOK, h)
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, map[string]string{"error": message})
}
