package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// metaKeyTopic carries our topic through watermill metadata.
	metaKeyTopic = "topic"

	defaultOutputBuffer = 256
)

// WatermillBridge implements Publisher and Subscriber on top of watermill's
// in-memory GoChannel, with an OpenTelemetry span around every publish and
// every handled message.
type WatermillBridge struct {
	channel    *gochannel.GoChannel
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	logger     *slog.Logger
}

// BridgeOption configures a WatermillBridge.
type BridgeOption func(*WatermillBridge)

// WithTracer enables spans for publish and process operations.
func WithTracer(t trace.Tracer) BridgeOption {
	return func(b *WatermillBridge) {
		b.tracer = t
	}
}

// WithLogger sets the logger used by the bridge and by watermill itself.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *WatermillBridge) {
		b.logger = l
	}
}

// NewWatermillBridge creates an in-memory bus.
func NewWatermillBridge(opts ...BridgeOption) *WatermillBridge {
	b := &WatermillBridge{
		tracer:     noop.NewTracerProvider().Tracer(tracerName),
		propagator: propagation.TraceContext{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "pubsub")
	b.channel = gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: defaultOutputBuffer},
		NewSlogAdapter(b.logger),
	)
	return b
}

// NewWatermillBridgeWithTracer is shorthand for NewWatermillBridge(WithTracer(t)).
func NewWatermillBridgeWithTracer(t trace.Tracer) *WatermillBridge {
	return NewWatermillBridge(WithTracer(t))
}

func toWatermill(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	return wmMsg
}

func fromWatermill(wmMsg *message.Message) Message {
	metadata := make(map[string]string, len(wmMsg.Metadata))
	for k, v := range wmMsg.Metadata {
		if k == metaKeyTopic {
			continue
		}
		metadata[k] = v
	}
	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

func spanAttributes(op, topic string, wmMsg *message.Message) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("messaging.system", "watermill"),
		attribute.String("messaging.operation", op),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.message_id", wmMsg.UUID),
		attribute.Int("messaging.message_payload_size_bytes", len(wmMsg.Payload)),
	)
}

// Publish implements Publisher. The span context travels in the message metadata.
func (b *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	wmMsg := toWatermill(msg)

	spanCtx, span := b.tracer.Start(ctx, "pubsub.publish."+msg.Topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		spanAttributes("publish", msg.Topic, wmMsg),
	)
	defer span.End()

	b.propagator.Inject(spanCtx, propagation.MapCarrier(wmMsg.Metadata))
	if err := b.channel.Publish(msg.Topic, wmMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe implements Subscriber. Messages are handled sequentially in one goroutine per subscription.
func (b *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.channel.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		for wmMsg := range messages {
			b.process(ctx, topic, wmMsg, handler)
		}
		b.logger.Debug("Subscription message loop ended", "topic", topic)
	}()
	return nil
}

func (b *WatermillBridge) process(ctx context.Context, topic string, wmMsg *message.Message, handler Handler) {
	parent := b.propagator.Extract(ctx, propagation.MapCarrier(wmMsg.Metadata))
	spanCtx, span := b.tracer.Start(parent, "pubsub.process."+topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		spanAttributes("process", topic, wmMsg),
	)
	defer span.End()

	if err := handler(spanCtx, fromWatermill(wmMsg)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
	}
	// GoChannel redelivers nacked messages forever, and handler errors here are not transient.
	wmMsg.Ack()
}

// Close shuts the bus down and ends every subscription loop.
func (b *WatermillBridge) Close() error {
	return b.channel.Close()
}

// slogAdapter routes watermill's internal logging through slog.
type slogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps l as a watermill.LoggerAdapter.
func NewSlogAdapter(l *slog.Logger) watermill.LoggerAdapter {
	return &slogAdapter{logger: l}
}

func fieldArgs(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (a *slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(msg, append(fieldArgs(fields), "error", err)...)
}

func (a *slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, fieldArgs(fields)...)
}

func (a *slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, fieldArgs(fields)...)
}

// Trace logs four levels below debug, so it only shows with a custom handler level.
func (a *slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Log(context.Background(), slog.LevelDebug-4, msg, fieldArgs(fields)...)
}

func (a *slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &slogAdapter{logger: a.logger.With(fieldArgs(fields)...)}
}
