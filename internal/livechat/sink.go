package livechat

import "context"

// MessageSink receives broadcast messages. Deliver should honour ctx: the
// Broadcaster stops waiting once the delivery deadline passes.
//
// Sinks are used as map keys, so implementations must be comparable;
// pointer receivers are the usual choice.
type MessageSink interface {
	Deliver(ctx context.Context, msg WireMessage) error
}

// Evictable is implemented by sinks that want to know when the Broadcaster
// drops them for failing too many consecutive deliveries.
type Evictable interface {
	Evict(reason error)
}

// FuncSink adapts a plain function to MessageSink.
type FuncSink struct {
	fn func(ctx context.Context, msg WireMessage) error
}

// SinkFunc wraps fn. Each call returns a distinct sink, so keep the returned
// value around to unsubscribe later.
func SinkFunc(fn func(ctx context.Context, msg WireMessage) error) *FuncSink {
	return &FuncSink{fn: fn}
}

// Deliver calls the wrapped function.
func (s *FuncSink) Deliver(ctx context.Context, msg WireMessage) error {
	return s.fn(ctx, msg)
}
