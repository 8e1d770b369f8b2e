package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/BaSui01/stategraph/workflow"
)

type countingRecorder struct{ nodes, routes, runs int }

func (c *countingRecorder) RecordNodeExecution(string, string, string, time.Duration) { c.nodes++ }
func (c *countingRecorder) RecordRoute(string, string, string)                         { c.routes++ }
func (c *countingRecorder) RecordRun(string, string, string, int, time.Duration)       { c.runs++ }

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestRecorder_ExportsExecutorMeasurements(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec, err := NewRecorder(mp.Meter("test"))
	require.NoError(t, err)

	counting := &countingRecorder{}
	g, err := workflow.NewGraphBuilder("pair", workflow.MustSchema(workflow.Field{Name: "n"})).
		AddNode("A", func(context.Context, workflow.State) (workflow.Partial, error) {
			return workflow.Partial{"n": 1}, nil
		}).
		AddNode("B", func(context.Context, workflow.State) (workflow.Partial, error) {
			return workflow.Partial{"n": 2}, nil
		}).
		AddEdge("A", "B").
		AddEdge("B", workflow.Terminal).
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	_, err = workflow.NewExecutor(workflow.WithMetrics(Tee(rec, counting, nil))).
		Run(context.Background(), g, nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "stategraph.node.executions"))
	assert.Equal(t, int64(2), sumOf(t, rm, "stategraph.route.decisions"))
	assert.Equal(t, int64(1), sumOf(t, rm, "stategraph.runs"))

	assert.Equal(t, &countingRecorder{nodes: 2, routes: 2, runs: 1}, counting)
}
