package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/liverelay/internal/handlers"
	"github.com/nfrund/liverelay/internal/livechat"
	"github.com/nfrund/liverelay/internal/pubsub"
)

// recordingPublisher stores published messages for inspection.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixedSessions int

func (n fixedSessions) ActiveSessions() int { return int(n) }

func setup(t *testing.T) (*echo.Echo, *livechat.Broadcaster, *recordingPublisher) {
	t.Helper()
	b := livechat.NewBroadcaster()
	pub := &recordingPublisher{}
	h := handlers.NewLiveHandler(b, pub, fixedSessions(2))

	e := echo.New()
	e.Validator = handlers.NewValidator()
	e.GET("/api/live/messages", h.RecentMessages)
	e.GET("/api/live/messages/:stream_id", h.StreamMessages)
	e.DELETE("/api/live/messages", h.ClearMessages)
	e.GET("/api/live/stats", h.Stats)
	e.POST("/api/live/events", h.PublishEvent)
	e.GET("/health", h.Health)
	return e, b, pub
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func seed(b *livechat.Broadcaster, n int, stream string) {
	for i := 0; i < n; i++ {
		b.Broadcast(context.Background(), livechat.Opaque{Value: stream}, stream, livechat.DirectionIncoming, "user")
	}
}

func TestLiveHandler_RecentMessages(t *testing.T) {
	e, b, _ := setup(t)
	seed(b, 120, "a")

	t.Run("default limit", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/api/live/messages", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp handlers.MessagesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 100, resp.Count)
		assert.Len(t, resp.Messages, 100)
	})

	t.Run("explicit limit", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/api/live/messages?limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp handlers.MessagesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 5, resp.Count)
	})

	for _, bad := range []string{"0x", "-1", "501"} {
		t.Run("rejects limit "+bad, func(t *testing.T) {
			rec := do(e, http.MethodGet, "/api/live/messages?limit="+bad, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
}

func TestLiveHandler_StreamMessages(t *testing.T) {
	e, b, _ := setup(t)
	seed(b, 3, "a")
	seed(b, 2, "b")

	rec := do(e, http.MethodGet, "/api/live/messages/b?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b", resp.StreamID)
	assert.Equal(t, 2, resp.Count)
	for _, m := range resp.Messages {
		assert.Equal(t, "b", m.StreamID)
	}

	rec = do(e, http.MethodGet, "/api/live/messages/none", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)
}

func TestLiveHandler_ClearAndStats(t *testing.T) {
	e, b, _ := setup(t)
	seed(b, 4, "a")
	b.Subscribe(livechat.SinkFunc(func(context.Context, livechat.WireMessage) error { return nil }), "a")

	rec := do(e, http.MethodDelete, "/api/live/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, b.RecentMessages(10))

	rec = do(e, http.MethodGet, "/api/live/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.ActiveSessions)
	assert.Equal(t, 0, resp.Stats.BufferLen)
	assert.Equal(t, uint64(4), resp.Stats.Broadcasts)
	assert.Equal(t, map[string]int{"a": 1}, resp.Stats.StreamSubscribers)
}

func TestLiveHandler_PublishEvent(t *testing.T) {
	t.Run("publishes a valid event", func(t *testing.T) {
		e, _, pub := setup(t)
		rec := do(e, http.MethodPost, "/api/live/events",
			`{"event":"sent","stream_id":"room","sender_type":"webui","payload":"hello"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		require.Len(t, pub.messages, 1)
		msg := pub.messages[0]
		assert.Equal(t, livechat.TopicMessageSent, msg.Topic)
		assert.Equal(t, "hello", string(msg.Payload))
		assert.Equal(t, "room", msg.Get(livechat.MetaStreamID))
		assert.Equal(t, "webui", msg.Get(livechat.MetaSenderType))
	})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"event":`},
		{"unknown event", `{"event":"edited","payload":"x"}`},
		{"missing payload", `{"event":"received"}`},
		{"bad payload kind", `{"event":"received","payload_kind":"xml","payload":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, pub := setup(t)
			rec := do(e, http.MethodPost, "/api/live/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, pub.messages)
		})
	}

	t.Run("bus failure", func(t *testing.T) {
		e, _, pub := setup(t)
		pub.err = errors.New("closed")
		rec := do(e, http.MethodPost, "/api/live/events", `{"event":"received","payload":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestLiveHandler_Health(t *testing.T) {
	e, _, _ := setup(t)
	rec := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
