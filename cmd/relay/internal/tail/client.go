package tail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nfrund/liverelay/internal/livechat"
)

// Close codes the relay uses to reject a connection.
const (
	closeMissingToken = 4001
	closeInvalidToken = 4003
)

var (
	ErrMissingToken = errors.New("relay rejected the connection: missing token")
	ErrInvalidToken = errors.New("relay rejected the connection: invalid token")
)

// closeGrace is how long Run waits for the relay to answer a close frame.
const closeGrace = 2 * time.Second

// Options configures a tail connection.
type Options struct {
	URL          string
	Token        string
	StreamID     string
	PingInterval time.Duration
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// endpoint adds the token and stream filter to the relay URL.
func endpoint(opts Options) (string, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}

	q := u.Query()
	if opts.Token != "" {
		q.Set("token", opts.Token)
	}
	if opts.StreamID != "" {
		q.Set("stream_id", opts.StreamID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects to the relay and formats every message until ctx is done or
// the relay closes the connection.
func Run(ctx context.Context, opts Options, f Formatter) error {
	target, err := endpoint(opts)
	if err != nil {
		return err
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go keepalive(ctx, conn, opts.PingInterval, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, closeMissingToken):
				return ErrMissingToken
			case websocket.IsCloseError(err, closeInvalidToken):
				return ErrInvalidToken
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil
			case ctx.Err() != nil:
				return nil
			}
			return fmt.Errorf("read from relay: %w", err)
		}
		if err := handleFrame(data, f); err != nil {
			return err
		}
	}
}

// keepalive is the only writer on conn. It pings on every tick and sends a
// close frame once ctx is done.
func keepalive(ctx context.Context, conn *websocket.Conn, every time.Duration, done <-chan struct{}) {
	var tick <-chan time.Time
	if every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-tick:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeGrace))
			_ = conn.SetReadDeadline(time.Now().Add(closeGrace))
			return
		}
	}
}

// handleFrame formats relayed messages and skips pongs and acks.
func handleFrame(data []byte, f Formatter) error {
	if string(data) == "pong" {
		return nil
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type != "message" {
		return nil
	}
	var msg livechat.WireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	return f.Format(msg)
}
