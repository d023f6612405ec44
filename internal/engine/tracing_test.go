package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/seantiz/compute/internal/engine"
)

func TestRunEmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	c := newController(t, workers(2), engine.WithTracer(tp.Tracer("test")))
	_, err := c.Run(context.Background(), strings.NewReader("increment 0\nfail no\nincrement 1\n"))
	require.NoError(t, err)

	var runSpans, taskSpans int
	var runTrace string
	traces := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		switch s.Name {
		case "controller.run":
			runSpans++
			runTrace = s.SpanContext.TraceID().String()
		case "task.execute":
			taskSpans++
			traces[s.SpanContext.TraceID().String()] = true
		}
	}
	assert.Equal(t, 1, runSpans)
	assert.Equal(t, 3, taskSpans)
	assert.Equal(t, map[string]bool{runTrace: true}, traces, "task spans belong to the run trace")
}
