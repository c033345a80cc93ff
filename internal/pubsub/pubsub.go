package pubsub

import (
	"context"
)

// Message is an event travelling over the in-process bus. Host chat events use
// it to reach the relay without depending on the relay's types.
type Message struct {
	// Topic identifies the event kind (e.g., "chat.message.received").
	Topic string
	// Payload is the raw event body, usually JSON.
	Payload []byte
	// Metadata carries routing hints such as stream_id and sender_type.
	Metadata map[string]string
}

// Get returns a metadata value or "".
func (m Message) Get(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// Handler processes one received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages onto the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe starts consuming topic in the background and returns immediately.
	// Consumption stops when ctx is canceled or the subscriber is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
