package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupOTel(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled tracing", func(t *testing.T) {
		tracer, shutdown, err := SetupOTel(ctx, TracingConfig{Enabled: false})
		require.NoError(t, err)
		require.NotNil(t, tracer)
		require.NotNil(t, shutdown)

		_, span := tracer.Start(ctx, "test")
		span.End()
		assert.False(t, span.SpanContext().IsValid(), "no-op tracer should produce invalid span contexts")
		assert.NoError(t, shutdown(ctx))
	})

	t.Run("enabled tracing with unreachable collector", func(t *testing.T) {
		cfg := DefaultTracingConfig()
		cfg.Enabled = true
		cfg.ZipkinURL = "http://invalid-url:9411/api/v2/spans"

		tracer, shutdown, err := SetupOTel(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, tracer)

		_, span := tracer.Start(ctx, "test")
		span.End()
		assert.True(t, span.SpanContext().IsValid())

		shutdownCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_ = shutdown(shutdownCtx)
	})
}

func TestBridge_TracePropagatesFromPublishToProcess(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	bridge := NewWatermillBridgeWithTracer(tp.Tracer("test"))
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, "chat.message.received", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{
		Topic:    "chat.message.received",
		Payload:  []byte(`{"hello":"world"}`),
		Metadata: map[string]string{"stream_id": "s1"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "chat.message.received", msg.Topic)
		assert.Equal(t, "s1", msg.Get("stream_id"))
		assert.JSONEq(t, `{"hello":"world"}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	require.Eventually(t, func() bool {
		return len(recorder.Ended()) == 2
	}, time.Second, 10*time.Millisecond)

	spans := recorder.Ended()
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	publish, ok := byName["pubsub.publish.chat.message.received"]
	require.True(t, ok)
	process, ok := byName["pubsub.process.chat.message.received"]
	require.True(t, ok)
	assert.Equal(t, publish.SpanContext().TraceID(), process.SpanContext().TraceID(), "process span should join the publish trace")
}
