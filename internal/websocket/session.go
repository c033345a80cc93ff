package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/nfrund/liverelay/internal/livechat"
)

const (
	writeTimeout = 10 * time.Second

	// Unrecognised frames are ignored, so the limit only guards memory.
	maxInboundFrame = 64 << 10
)

// ErrSessionClosed is returned by Deliver once the session has shut down.
var ErrSessionClosed = errors.New("session closed")

// Session is one authenticated WebSocket connection. It is the MessageSink the
// Broadcaster delivers to; a single write pump owns all writes to the socket.
type Session struct {
	id          string
	conn        *websocket.Conn
	broadcaster *livechat.Broadcaster
	logger      *slog.Logger

	// send is the FIFO queue drained by the write pump.
	send chan []byte
	// ready is closed once the replay has been queued. Live deliveries wait on it.
	ready chan struct{}
	done  chan struct{}

	closeOnce   sync.Once
	closeCode   websocket.StatusCode
	closeReason string
}

func newSession(conn *websocket.Conn, b *livechat.Broadcaster, queueSize int, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		conn:        conn,
		broadcaster: b,
		logger:      logger.With("session_id", id),
		send:        make(chan []byte, queueSize),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Deliver implements livechat.MessageSink. It only enqueues; a full queue that
// stays full past ctx's deadline counts as a failed delivery.
func (s *Session) Deliver(ctx context.Context, msg livechat.WireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	select {
	case <-s.ready:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.enqueue(ctx, data)
}

// Evict implements livechat.Evictable.
func (s *Session) Evict(reason error) {
	s.logger.Warn("Closing slow WebSocket consumer", "reason", reason)
	s.close(websocket.StatusPolicyViolation, "slow consumer")
}

func (s *Session) enqueue(ctx context.Context, data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	// A delivery that already timed out must not reach the queue.
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close records the close status and stops the write pump, which closes the socket.
// Only the first call has any effect.
func (s *Session) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		close(s.done)
	})
}

// replay queues the buffered history, then opens the session to live deliveries.
func (s *Session) replay(ctx context.Context, msgs []livechat.WireMessage) {
	defer close(s.ready)
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Error("Failed to encode replay message", "error", err)
			continue
		}
		if err := s.enqueue(ctx, data); err != nil {
			return
		}
	}
	if len(msgs) > 0 {
		s.logger.Debug("Replay queued", "count", len(msgs))
	}
}

// writePump drains the send queue to the socket until the session closes.
func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case data := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Debug("WebSocket write failed", "error", err)
				s.close(websocket.StatusInternalError, "write failed")
			}
		case <-s.done:
			s.conn.Close(s.closeCode, s.closeReason)
			return
		case <-ctx.Done():
			s.close(websocket.StatusGoingAway, "server shutting down")
			s.conn.Close(s.closeCode, s.closeReason)
			return
		}
	}
}

// readLoop handles control frames until the connection fails or closes.
func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxInboundFrame)
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.logger.Info("WebSocket closed by client")
			default:
				select {
				case <-s.done:
				default:
					s.logger.Debug("WebSocket read ended", "error", err)
				}
			}
			s.close(websocket.StatusNormalClosure, "")
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.handle(ctx, ParseCommand(data))
	}
}

func (s *Session) handle(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandPing:
		_ = s.enqueue(ctx, pongFrame)
	case CommandSubscribe:
		s.broadcaster.Subscribe(s, cmd.StreamID)
		s.logger.Debug("Session subscribed to stream", "stream_id", cmd.StreamID)
		_ = s.enqueue(ctx, ackFrame(cmd.Kind, cmd.StreamID))
	case CommandUnsubscribe:
		s.broadcaster.Unsubscribe(s, cmd.StreamID)
		s.logger.Debug("Session unsubscribed from stream", "stream_id", cmd.StreamID)
		_ = s.enqueue(ctx, ackFrame(cmd.Kind, cmd.StreamID))
	default:
		s.logger.Debug("Ignoring unrecognised control frame")
	}
}
