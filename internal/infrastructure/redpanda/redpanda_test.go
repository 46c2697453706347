package redpanda

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/drfirst/go-summaryview/internal/audit"
)

func TestAccessEventCodec(t *testing.T) {
	ev := &audit.AccessEvent{
		ID:         "ev-1",
		PatientID:  "pat-1",
		Outcome:    "http_error",
		StatusCode: 404,
		Channel:    audit.ChannelWeb,
		At:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := EncodeAccessEvent(ev)
	require.NoError(t, err)

	got, err := DecodeAccessEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	_, err = DecodeAccessEvent([]byte("{"))
	assert.Error(t, err)
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	record := &kgo.Record{Topic: TopicAuditTrail}
	injectTraceHeaders(ctx, record)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		recordCarrier{record: record}.Get("traceparent"))

	restored := trace.SpanContextFromContext(extractTraceContext(context.Background(), record))
	assert.Equal(t, traceID, restored.TraceID())
	assert.True(t, restored.IsRemote())
}

func TestDefaultTopicConfigs(t *testing.T) {
	topics := DefaultTopicConfigs()
	require.Len(t, topics, 1)
	assert.Equal(t, TopicAuditTrail, topics[0].Name)
	assert.Equal(t, "2592000000", *topics[0].Configs["retention.ms"])
}
