package livechat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultDeliveryTimeout bounds a single delivery to a single sink.
	DefaultDeliveryTimeout = 5 * time.Second

	// DefaultMaxFailures is how many consecutive failed deliveries a sink may
	// accumulate before it is evicted from every scope.
	DefaultMaxFailures = 3
)

// ErrSinkEvicted is passed to Evictable sinks when they are dropped.
var ErrSinkEvicted = errors.New("sink evicted after repeated delivery failures")

type sinkSet map[MessageSink]struct{}

// Broadcaster fans normalized messages out to subscribed sinks and keeps a
// bounded replay buffer. Construct one per process and share it.
type Broadcaster struct {
	mu       sync.Mutex
	global   sinkSet
	streams  map[string]sinkSet
	buffer   *RingBuffer
	failures map[MessageSink]int

	capacity        int
	deliveryTimeout time.Duration
	maxFailures     int
	logger          *slog.Logger

	broadcasts atomic.Uint64
	failed     atomic.Uint64
	evictions  atomic.Uint64
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithCapacity sets the replay buffer capacity.
func WithCapacity(n int) Option {
	return func(b *Broadcaster) {
		b.capacity = n
	}
}

// WithDeliveryTimeout bounds each delivery. Zero disables the bound.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.deliveryTimeout = d
	}
}

// WithMaxFailures sets the consecutive failure count that triggers eviction.
// Zero disables eviction.
func WithMaxFailures(n int) Option {
	return func(b *Broadcaster) {
		b.maxFailures = n
	}
}

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = l
	}
}

// NewBroadcaster creates a ready-to-use Broadcaster.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		global:          make(sinkSet),
		streams:         make(map[string]sinkSet),
		failures:        make(map[MessageSink]int),
		capacity:        DefaultBufferCapacity,
		deliveryTimeout: DefaultDeliveryTimeout,
		maxFailures:     DefaultMaxFailures,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.buffer = NewRingBuffer(b.capacity)
	b.logger = b.logger.With("component", "broadcaster")
	return b
}

// Subscribe registers sink for one stream, or for every message when streamID is empty.
// Subscribing twice to the same scope is a no-op.
func (b *Broadcaster) Subscribe(sink MessageSink, streamID string) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(sink, streamID)
	b.logger.Debug("Sink subscribed", "stream_id", streamID)
}

// SubscribeWithReplay subscribes sink and returns the replay for its scope in
// one step, so every message lands either in the replay or in a later Deliver,
// never both and never neither.
func (b *Broadcaster) SubscribeWithReplay(sink MessageSink, streamID string, limit int) []WireMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	var replay []WireMessage
	if streamID == "" {
		replay = b.buffer.Recent(limit)
	} else {
		replay = b.buffer.RecentForStream(streamID, limit)
	}
	if sink == nil {
		return replay
	}

	b.addLocked(sink, streamID)
	b.logger.Debug("Sink subscribed with replay", "stream_id", streamID, "replay", len(replay))
	return replay
}

// Unsubscribe removes sink from exactly one scope. Removing an absent registration is a no-op.
func (b *Broadcaster) Unsubscribe(sink MessageSink, streamID string) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(sink, streamID)
	if !b.subscribedLocked(sink) {
		delete(b.failures, sink)
	}
	b.logger.Debug("Sink unsubscribed", "stream_id", streamID)
}

// UnsubscribeAll removes sink from every scope it holds.
func (b *Broadcaster) UnsubscribeAll(sink MessageSink) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeAllLocked(sink)
}

func (b *Broadcaster) addLocked(sink MessageSink, streamID string) {
	if streamID == "" {
		b.global[sink] = struct{}{}
		return
	}
	set, ok := b.streams[streamID]
	if !ok {
		set = make(sinkSet)
		b.streams[streamID] = set
	}
	set[sink] = struct{}{}
}

func (b *Broadcaster) removeLocked(sink MessageSink, streamID string) {
	if streamID == "" {
		delete(b.global, sink)
		return
	}
	set, ok := b.streams[streamID]
	if !ok {
		return
	}
	delete(set, sink)
	if len(set) == 0 {
		delete(b.streams, streamID)
	}
}

func (b *Broadcaster) removeAllLocked(sink MessageSink) {
	delete(b.global, sink)
	for streamID, set := range b.streams {
		delete(set, sink)
		if len(set) == 0 {
			delete(b.streams, streamID)
		}
	}
	delete(b.failures, sink)
}

func (b *Broadcaster) subscribedLocked(sink MessageSink) bool {
	if _, ok := b.global[sink]; ok {
		return true
	}
	for _, set := range b.streams {
		if _, ok := set[sink]; ok {
			return true
		}
	}
	return false
}

// Broadcast normalizes src, appends it to the replay buffer and delivers it to
// every global subscriber and every subscriber of streamID. Deliveries run
// concurrently outside the lock; Broadcast returns once each has finished or
// timed out. Sink failures are logged and never reach the caller.
func (b *Broadcaster) Broadcast(ctx context.Context, src Source, streamID string, direction Direction, senderType string) WireMessage {
	msg := Normalize(src, streamID, direction, senderType)
	b.broadcasts.Add(1)

	b.mu.Lock()
	b.buffer.Append(msg)
	targets := make([]MessageSink, 0, len(b.global))
	seen := make(sinkSet, len(b.global))
	for sink := range b.global {
		seen[sink] = struct{}{}
		targets = append(targets, sink)
	}
	if streamID != "" {
		for sink := range b.streams[streamID] {
			if _, dup := seen[sink]; dup {
				continue
			}
			targets = append(targets, sink)
		}
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		return msg
	}

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, sink := range targets {
		go func(sink MessageSink) {
			defer wg.Done()
			b.deliver(ctx, sink, msg)
		}(sink)
	}
	wg.Wait()
	return msg
}

// deliver runs one delivery under the configured deadline and records the outcome.
func (b *Broadcaster) deliver(ctx context.Context, sink MessageSink, msg WireMessage) {
	dctx := ctx
	if b.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, b.deliveryTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- safeDeliver(dctx, sink, msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-dctx.Done():
		err = fmt.Errorf("delivery abandoned: %w", dctx.Err())
	}
	b.record(sink, msg, err)
}

func safeDeliver(ctx context.Context, sink MessageSink, msg WireMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Deliver(ctx, msg)
}

func (b *Broadcaster) record(sink MessageSink, msg WireMessage, err error) {
	if err == nil {
		b.mu.Lock()
		delete(b.failures, sink)
		b.mu.Unlock()
		return
	}

	b.failed.Add(1)
	b.logger.Debug("Message delivery failed", "stream_id", msg.StreamID, "message_id", msg.MessageID, "error", err)

	evict := false
	b.mu.Lock()
	if b.subscribedLocked(sink) {
		b.failures[sink]++
		if b.maxFailures > 0 && b.failures[sink] >= b.maxFailures {
			b.removeAllLocked(sink)
			evict = true
		}
	}
	b.mu.Unlock()

	if !evict {
		return
	}
	b.evictions.Add(1)
	b.logger.Warn("Evicting sink after repeated delivery failures", "max_failures", b.maxFailures, "last_error", err)
	if e, ok := sink.(Evictable); ok {
		e.Evict(fmt.Errorf("%w: %w", ErrSinkEvicted, err))
	}
}

// RecentMessages returns up to limit buffered messages, oldest first.
func (b *Broadcaster) RecentMessages(limit int) []WireMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Recent(limit)
}

// RecentMessagesForStream returns up to limit buffered messages of one stream, oldest first.
func (b *Broadcaster) RecentMessagesForStream(streamID string, limit int) []WireMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.RecentForStream(streamID, limit)
}

// Clear empties the replay buffer. Subscriptions are untouched.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer.Clear()
	b.logger.Info("Replay buffer cleared")
}

// Stats is a point-in-time view of the Broadcaster.
type Stats struct {
	GlobalSubscribers int            `json:"global_subscribers"`
	StreamSubscribers map[string]int `json:"stream_subscribers"`
	BufferLen         int            `json:"buffer_len"`
	BufferCap         int            `json:"buffer_cap"`
	Broadcasts        uint64         `json:"broadcasts"`
	FailedDeliveries  uint64         `json:"failed_deliveries"`
	Evictions         uint64         `json:"evictions"`
}

// Stats reports subscriber counts, buffer occupancy and delivery totals.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	streams := make(map[string]int, len(b.streams))
	for id, set := range b.streams {
		streams[id] = len(set)
	}
	return Stats{
		GlobalSubscribers: len(b.global),
		StreamSubscribers: streams,
		BufferLen:         b.buffer.Len(),
		BufferCap:         b.buffer.Cap(),
		Broadcasts:        b.broadcasts.Load(),
		FailedDeliveries:  b.failed.Load(),
		Evictions:         b.evictions.Load(),
	}
}
