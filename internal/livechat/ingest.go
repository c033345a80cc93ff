package livechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/liverelay/internal/pubsub"
)

// Bus topics raised by the host when a chat message is received or sent.
const (
	TopicMessageReceived = "chat.message.received"
	TopicMessageSent     = "chat.message.sent"
)

// Metadata keys understood by the Ingestor.
const (
	MetaStreamID    = "stream_id"
	MetaSenderType  = "sender_type"
	MetaPayloadKind = "payload_kind"
)

// Payload kinds selecting the Source variant a bus payload decodes into.
const (
	PayloadKindRecord   = "record"
	PayloadKindEnvelope = "envelope"
	PayloadKindOpaque   = "opaque"
)

// Host event names accepted by HostEvent.
const (
	EventReceived = "received"
	EventSent     = "sent"
)

// ErrUnknownEvent is returned for host events other than "received" and "sent".
var ErrUnknownEvent = errors.New("unknown host event")

// EventRoute derives direction and sender type from the bus topic. Received
// messages always come from a user; sent messages default to the bot unless
// the host says otherwise (for example "webui" for manual sends).
func EventRoute(topic, senderType string) (Direction, string) {
	switch topic {
	case TopicMessageReceived:
		return DirectionIncoming, "user"
	case TopicMessageSent:
		if senderType == "" {
			senderType = "bot"
		}
		return DirectionOutgoing, senderType
	default:
		return DirectionUnknown, "unknown"
	}
}

// DecodeSource turns a bus payload into a Source. Payloads that do not decode
// as the declared kind fall back to Opaque so nothing is ever dropped.
func DecodeSource(kind string, payload []byte) Source {
	switch kind {
	case PayloadKindRecord:
		var rec TypedRecord
		if err := json.Unmarshal(payload, &rec); err == nil {
			return rec
		}
	case PayloadKindEnvelope:
		var env Envelope
		if err := json.Unmarshal(payload, &env); err == nil {
			return env
		}
	}
	return Opaque{Value: string(payload)}
}

// Ingestor feeds host chat events from the bus into the Broadcaster.
type Ingestor struct {
	broadcaster *Broadcaster
	subscriber  pubsub.Subscriber
	topics      []string
	logger      *slog.Logger
}

// NewIngestor creates an Ingestor listening on the received and sent topics.
func NewIngestor(b *Broadcaster, sub pubsub.Subscriber, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		broadcaster: b,
		subscriber:  sub,
		topics:      []string{TopicMessageReceived, TopicMessageSent},
		logger:      logger.With("component", "ingestor"),
	}
}

// Start subscribes to the host topics. Consumption runs until ctx is canceled.
func (in *Ingestor) Start(ctx context.Context) error {
	for _, topic := range in.topics {
		if err := in.subscriber.Subscribe(ctx, topic, in.Handle); err != nil {
			return fmt.Errorf("ingestor: %w", err)
		}
	}
	in.logger.Info("Ingestor started", "topics", in.topics)
	return nil
}

// Handle broadcasts one host event. It never fails; broadcasting is fire-and-forget.
func (in *Ingestor) Handle(ctx context.Context, msg pubsub.Message) error {
	direction, senderType := EventRoute(msg.Topic, msg.Get(MetaSenderType))
	src := DecodeSource(msg.Get(MetaPayloadKind), msg.Payload)
	streamID := msg.Get(MetaStreamID)

	wire := in.broadcaster.Broadcast(ctx, src, streamID, direction, senderType)
	in.logger.Debug("Message broadcast",
		"stream_id", wire.StreamID,
		"direction", direction,
		"sender_type", senderType,
	)
	return nil
}

// HostEvent is the JSON body used to inject a host event through the HTTP API.
type HostEvent struct {
	Event       string          `json:"event" validate:"required,oneof=received sent"`
	StreamID    string          `json:"stream_id" validate:"max=256"`
	SenderType  string          `json:"sender_type" validate:"max=64"`
	PayloadKind string          `json:"payload_kind" validate:"omitempty,oneof=record envelope opaque"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
}

// Message converts the event into a bus message. An opaque payload given as a
// JSON string is unquoted so the relayed content reads naturally.
func (e HostEvent) Message() (pubsub.Message, error) {
	var topic string
	switch e.Event {
	case EventReceived:
		topic = TopicMessageReceived
	case EventSent:
		topic = TopicMessageSent
	default:
		return pubsub.Message{}, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Event)
	}

	payload := []byte(e.Payload)
	if e.PayloadKind == "" || e.PayloadKind == PayloadKindOpaque {
		var s string
		if err := json.Unmarshal(e.Payload, &s); err == nil {
			payload = []byte(s)
		}
	}

	metadata := map[string]string{MetaPayloadKind: e.PayloadKind}
	if e.StreamID != "" {
		metadata[MetaStreamID] = e.StreamID
	}
	if e.SenderType != "" {
		metadata[MetaSenderType] = e.SenderType
	}
	return pubsub.Message{Topic: topic, Payload: payload, Metadata: metadata}, nil
}
