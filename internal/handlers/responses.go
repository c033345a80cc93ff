package handlers

import (
	"github.com/nfrund/liverelay/internal/livechat"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func errorResponse(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}

// MessagesResponse lists buffered messages, oldest first.
type MessagesResponse struct {
	Success  bool                   `json:"success"`
	StreamID string                 `json:"stream_id,omitempty"`
	Messages []livechat.WireMessage `json:"messages"`
	Count    int                    `json:"count"`
}

// StatsResponse reports broadcaster and gateway state.
type StatsResponse struct {
	Success        bool           `json:"success"`
	Stats          livechat.Stats `json:"stats"`
	ActiveSessions int            `json:"active_sessions"`
}

// StatusResponse acknowledges an operation without returning data.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
