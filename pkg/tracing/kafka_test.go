package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"otprelay/internal/config"
)

func TestInjectExtractTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: "origin", Value: []byte("broadcast")}})
	require.Len(t, headers, 2)

	extracted := ExtractTraceContext(context.Background(), headers)
	assert.Equal(t, TraceID(ctx), TraceID(extracted))
	assert.NotEmpty(t, TraceID(ctx))
}

func TestTraceID_Empty(t *testing.T) {
	assert.Equal(t, "", TraceID(context.Background()))
}

func TestStartConsumerSpan_ContinuesProducerTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	producerCtx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	msg := kafka.Message{Topic: "inbound_sms", Partition: 2, Offset: 41, Headers: InjectTraceContext(producerCtx, nil)}
	ctx, consumer := StartConsumerSpan(context.Background(), msg)
	defer consumer.End()

	assert.Equal(t, TraceID(producerCtx), TraceID(ctx))
}

func TestSampler_DefaultsToAlwaysOn(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(config.SamplerConfig{Type: "bogus"}).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), Sampler(config.SamplerConfig{Type: "always_off"}).Description())
}
