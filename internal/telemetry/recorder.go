package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/stategraph/workflow"
)

// Recorder forwards executor measurements to OTel instruments.
type Recorder struct {
	nodeCalls    metric.Int64Counter
	nodeDuration metric.Float64Histogram
	routes       metric.Int64Counter
	runs         metric.Int64Counter
	runDuration  metric.Float64Histogram
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error
	if r.nodeCalls, err = meter.Int64Counter("stategraph.node.executions",
		metric.WithDescription("Node invocations")); err != nil {
		return nil, err
	}
	if r.nodeDuration, err = meter.Float64Histogram("stategraph.node.duration",
		metric.WithDescription("Node invocation duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.routes, err = meter.Int64Counter("stategraph.route.decisions",
		metric.WithDescription("Routing decisions")); err != nil {
		return nil, err
	}
	if r.runs, err = meter.Int64Counter("stategraph.runs",
		metric.WithDescription("Finished runs")); err != nil {
		return nil, err
	}
	if r.runDuration, err = meter.Float64Histogram("stategraph.run.duration",
		metric.WithDescription("Run duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordNodeExecution implements workflow.MetricsRecorder.
func (r *Recorder) RecordNodeExecution(graph, node, status string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("graph", graph),
		attribute.String("node", node),
		attribute.String("status", status),
	)
	r.nodeCalls.Add(ctx, 1, attrs)
	r.nodeDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRoute implements workflow.MetricsRecorder.
func (r *Recorder) RecordRoute(graph, source, target string) {
	r.routes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("graph", graph),
		attribute.String("source", source),
		attribute.String("target", target),
	))
}

// RecordRun implements workflow.MetricsRecorder.
func (r *Recorder) RecordRun(graph, status, reason string, steps int, duration time.Duration) {
	ctx := context.Background()
	r.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph", graph),
		attribute.String("status", status),
		attribute.String("reason", reason),
		attribute.Int("steps", steps),
	))
	r.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("graph", graph)))
}

// Tee fans measurements out to every non-nil recorder.
func Tee(recorders ...workflow.MetricsRecorder) workflow.MetricsRecorder {
	out := make(tee, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type tee []workflow.MetricsRecorder

func (t tee) RecordNodeExecution(graph, node, status string, duration time.Duration) {
	for _, r := range t {
		r.RecordNodeExecution(graph, node, status, duration)
	}
}

func (t tee) RecordRoute(graph, source, target string) {
	for _, r := range t {
		r.RecordRoute(graph, source, target)
	}
}

func (t tee) RecordRun(graph, status, reason string, steps int, duration time.Duration) {
	for _, r := range t {
		r.RecordRun(graph, status, reason, steps, duration)
	}
}
