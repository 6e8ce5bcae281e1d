package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sqlrestore/internal/config"
	"sqlrestore/internal/logger"
)

// Tests here replace the global tracer provider; do not run them in parallel.

func TestNewTracerProvider_Disabled(t *testing.T) {
	shutdown, err := NewTracerProvider(context.Background(), &config.TelemetryConfig{}, "dev", logger.NewNullLogger())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = NewTracerProvider(context.Background(), nil, "dev", logger.NewNullLogger())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewTracerProvider_InvalidConfig(t *testing.T) {
	cfg := &config.TelemetryConfig{
		Enabled:      true,
		ServiceName:  "sqlrestore",
		Timeout:      5 * time.Second,
		SamplingRate: 1.0,
	}
	shutdown, err := NewTracerProvider(context.Background(), cfg, "dev", logger.NewNullLogger())
	require.Error(t, err)
	assert.Nil(t, shutdown)
	assert.Contains(t, err.Error(), "tracing-endpoint")
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := &config.TelemetryConfig{
		Enabled:      true,
		Endpoint:     "http://127.0.0.1:4318",
		ServiceName:  "sqlrestore",
		Environment:  "test",
		Insecure:     true,
		Timeout:      time.Second,
		SamplingRate: 1.0,
	}
	shutdown, err := NewTracerProvider(context.Background(), cfg, "dev", logger.NewNullLogger())
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestStartAndEndSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	_, span := StartSpan(context.Background(), "restore.point", attribute.Int("point", 2))
	EndSpan(span, errors.New("Msg 4305"))

	_, planSpan := StartSpan(context.Background(), "restore.plan")
	EndSpan(planSpan, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "restore.point", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("point", 2))
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(0.5).Description(), "ParentBased")
}
