package telemetry

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func Test_KafkaHeaderCarrier(t *testing.T) {
	assert := assert.New(t)

	carrier := NewKafkaHeaderCarrier(kafka.Header{Key: "frame", Value: []byte("ENGINE")})
	assert.Equal("ENGINE", carrier.Get("frame"))
	assert.Empty(carrier.Get("missing"))

	carrier.Set("frame", "BRAKES")
	assert.Equal("BRAKES", carrier.Get("frame"))
	assert.Len(carrier.Headers(), 1)

	carrier.Set("signal", "speed")
	assert.ElementsMatch([]string{"frame", "signal"}, carrier.Keys())
}

func Test_KafkaHeaderCarrier_Propagation(t *testing.T) {
	assert := assert.New(t)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	prop := propagation.TraceContext{}

	carrier := NewKafkaHeaderCarrier()
	prop.Inject(ctx, carrier)
	assert.NotEmpty(carrier.Get("traceparent"))

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), NewKafkaHeaderCarrier(carrier.Headers()...)))
	assert.Equal(traceID, extracted.TraceID())
	assert.Equal(spanID, extracted.SpanID())
}
