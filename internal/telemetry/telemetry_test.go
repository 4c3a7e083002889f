package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	ctx, span := StartFilesSpan(ctx, SpanFilesStore, "project1", "g-1")
	defer span.End()
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
	assert.NotPanics(t, func() { RecordError(ctx, errors.New("boom")) })
}

func TestSpansCarryDomainAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	setTracer(provider.Tracer(instrumentationName), true)
	t.Cleanup(func() { _, _ = Init(context.Background(), DefaultConfig()) })

	ctx, span := StartBatchSpan(context.Background(), "reference", "project1", 50)
	assert.Len(t, TraceID(ctx), 32)
	assert.Len(t, SpanID(ctx), 16)
	RecordError(ctx, errors.New("tape offline"))
	RecordError(ctx, nil)
	span.End()

	_, span = StartBackendSpan(context.Background(), SpanBackendRetrieve, "tape", Checksum("abc"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	batch := ended[0]
	assert.Equal(t, SpanBatchDispatch, batch.Name())
	assert.Contains(t, batch.Attributes(), Kind("reference"))
	assert.Contains(t, batch.Attributes(), Tenant("project1"))
	assert.Contains(t, batch.Attributes(), BatchSize(50))
	assert.Equal(t, "tape offline", batch.Status().Description)
	assert.Len(t, batch.Events(), 1)

	backend := ended[1]
	assert.Equal(t, SpanBackendRetrieve, backend.Name())
	assert.Contains(t, backend.Attributes(), Storage("tape"))
	assert.Contains(t, backend.Attributes(), Checksum("abc"))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1.5).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", "inuse_space"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileInuseSpace}, types)

	_, err = parseProfileTypes([]string{"heap"})
	assert.ErrorContains(t, err, `"heap"`)
}

func TestInitProfilingDisabled(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, stop())
	assert.False(t, IsProfilingEnabled())
}
