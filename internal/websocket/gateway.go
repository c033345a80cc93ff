package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/liverelay/internal/livechat"
)

// Close codes sent when a connection fails authentication.
const (
	CloseMissingToken websocket.StatusCode = 4001
	CloseInvalidToken websocket.StatusCode = 4003
)

const (
	DefaultReplayLimit = 50
	DefaultSendQueue   = 256
)

// KeyChecker reports whether a token is an accepted API key.
type KeyChecker interface {
	Contains(token string) bool
}

// GatewayConfig holds the tunables of a Gateway.
type GatewayConfig struct {
	// ReplayLimit is how many buffered messages a new session receives.
	// Zero disables replay; only a negative value selects DefaultReplayLimit,
	// so the zero GatewayConfig replays nothing.
	ReplayLimit int
	// SendQueue is the per-session queue length. Values below 1 mean DefaultSendQueue.
	SendQueue int
	// AllowedOrigins are host patterns checked against the Origin header.
	// When empty, origin verification is skipped.
	AllowedOrigins []string
}

// Gateway upgrades HTTP requests to relay sessions.
type Gateway struct {
	broadcaster *livechat.Broadcaster
	keys        KeyChecker
	cfg         GatewayConfig
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewGateway creates a Gateway delivering from b and authenticating against keys.
func NewGateway(b *livechat.Broadcaster, keys KeyChecker, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.ReplayLimit < 0 {
		cfg.ReplayLimit = DefaultReplayLimit
	}
	if cfg.SendQueue < 1 {
		cfg.SendQueue = DefaultSendQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		broadcaster: b,
		keys:        keys,
		cfg:         cfg,
		logger:      logger.With("component", "gateway"),
		sessions:    make(map[*Session]struct{}),
	}
}

// Handler serves one WebSocket connection for its whole lifetime.
func (g *Gateway) Handler(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns:     g.cfg.AllowedOrigins,
		InsecureSkipVerify: len(g.cfg.AllowedOrigins) == 0,
	})
	if err != nil {
		// Accept has already written an error response.
		g.logger.Warn("Failed to upgrade connection to WebSocket", "remote_ip", c.RealIP(), "error", err)
		return nil
	}

	token := c.QueryParam("token")
	if token == "" {
		g.logger.Info("Rejecting WebSocket without token", "remote_ip", c.RealIP())
		conn.Close(CloseMissingToken, "missing token")
		return nil
	}
	if g.keys == nil || !g.keys.Contains(token) {
		g.logger.Info("Rejecting WebSocket with invalid token", "remote_ip", c.RealIP())
		conn.Close(CloseInvalidToken, "invalid token")
		return nil
	}

	streamID := c.QueryParam("stream_id")
	s := newSession(conn, g.broadcaster, g.cfg.SendQueue, g.logger)
	g.serve(c.Request().Context(), s, streamID)
	return nil
}

func (g *Gateway) serve(parent context.Context, s *Session, streamID string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.writePump(ctx)
	}()

	s.replay(ctx, g.broadcaster.SubscribeWithReplay(s, streamID, g.cfg.ReplayLimit))
	g.track(s)
	defer g.untrack(s)
	s.logger.Info("WebSocket session started", "stream_id", streamID)

	s.readLoop(ctx)

	g.broadcaster.UnsubscribeAll(s)
	s.close(websocket.StatusNormalClosure, "")
	<-pumpDone
	s.logger.Info("WebSocket session ended")
}

func (g *Gateway) track(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s] = struct{}{}
}

func (g *Gateway) untrack(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, s)
}

// ActiveSessions returns the number of authenticated connections.
func (g *Gateway) ActiveSessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Shutdown closes every session with StatusGoingAway. Hijacked connections are
// not covered by the HTTP server's own shutdown.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close(websocket.StatusGoingAway, "server shutting down")
	}
	if len(sessions) > 0 {
		g.logger.Info("Closed WebSocket sessions for shutdown", "count", len(sessions))
	}
}
