package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/liverelay/internal/livechat"
	"github.com/nfrund/liverelay/internal/middleware"
	"github.com/nfrund/liverelay/internal/pubsub"
)

// SessionCounter reports the number of live WebSocket sessions.
type SessionCounter interface {
	ActiveSessions() int
}

// LiveHandler serves the polling and administrative surface of the relay.
type LiveHandler struct {
	broadcaster *livechat.Broadcaster
	publisher   pubsub.Publisher
	sessions    SessionCounter
}

// NewLiveHandler creates a new LiveHandler. sessions may be nil.
func NewLiveHandler(b *livechat.Broadcaster, publisher pubsub.Publisher, sessions SessionCounter) *LiveHandler {
	return &LiveHandler{
		broadcaster: b,
		publisher:   publisher,
		sessions:    sessions,
	}
}

// bindRecent reads the limit and stream id. A non-empty problem is a client error.
func bindRecent(c echo.Context) (req RecentMessagesRequest, problem string) {
	if err := c.Bind(&req); err != nil {
		return req, "limit must be an integer"
	}
	if err := c.Validate(&req); err != nil {
		return req, fmt.Sprintf("limit must be between 1 and %d", maxMessageLimit)
	}
	return req, ""
}

// RecentMessages returns the newest buffered messages across all streams.
func (h *LiveHandler) RecentMessages(c echo.Context) error {
	req, problem := bindRecent(c)
	if problem != "" {
		return c.JSON(http.StatusBadRequest, errorResponse(problem))
	}
	msgs := h.broadcaster.RecentMessages(req.limit())
	return c.JSON(http.StatusOK, MessagesResponse{Success: true, Messages: msgs, Count: len(msgs)})
}

// StreamMessages returns the newest buffered messages of one stream.
func (h *LiveHandler) StreamMessages(c echo.Context) error {
	req, problem := bindRecent(c)
	if problem != "" {
		return c.JSON(http.StatusBadRequest, errorResponse(problem))
	}
	if req.StreamID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("stream_id is required"))
	}
	msgs := h.broadcaster.RecentMessagesForStream(req.StreamID, req.limit())
	return c.JSON(http.StatusOK, MessagesResponse{Success: true, StreamID: req.StreamID, Messages: msgs, Count: len(msgs)})
}

// ClearMessages empties the replay buffer.
func (h *LiveHandler) ClearMessages(c echo.Context) error {
	h.broadcaster.Clear()
	middleware.FromContext(c.Request().Context()).Info("Replay buffer cleared via API")
	return c.JSON(http.StatusOK, StatusResponse{Success: true, Message: "buffer cleared"})
}

// Stats reports subscriber counts, buffer occupancy and delivery totals.
func (h *LiveHandler) Stats(c echo.Context) error {
	resp := StatsResponse{Success: true, Stats: h.broadcaster.Stats()}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.ActiveSessions()
	}
	return c.JSON(http.StatusOK, resp)
}

// PublishEvent injects a host chat event onto the bus, where the Ingestor
// picks it up exactly like an event raised by the host itself.
func (h *LiveHandler) PublishEvent(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	var ev livechat.HostEvent
	if err := c.Bind(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("invalid JSON body"))
	}
	if err := c.Validate(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	}

	msg, err := ev.Message()
	if errors.Is(err, livechat.ErrUnknownEvent) {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	}
	if err != nil {
		return err
	}

	if err := h.publisher.Publish(ctx, msg); err != nil {
		logger.Error("Failed to publish host event", "topic", msg.Topic, "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event bus unavailable")
	}
	logger.Debug("Host event published", "topic", msg.Topic, "stream_id", ev.StreamID)
	return c.JSON(http.StatusAccepted, StatusResponse{Success: true})
}

// Health reports liveness. It is not behind the API key.
func (h *LiveHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}
