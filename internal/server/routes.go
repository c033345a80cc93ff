package server

import (
	"github.com/nfrund/liverelay/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/health", s.liveHandler.Health)

	// The gateway checks its own token so it can answer with close codes.
	s.E.GET("/realtime", s.gateway.Handler)

	api := s.E.Group("/api/live",
		middleware.RateLimiter(s.Cfg.RateLimit),
		middleware.APIKey(s.keys),
	)
	api.GET("/messages", s.liveHandler.RecentMessages)
	api.GET("/messages/:stream_id", s.liveHandler.StreamMessages)
	api.DELETE("/messages", s.liveHandler.ClearMessages)
	api.GET("/stats", s.liveHandler.Stats)
	api.POST("/events", s.liveHandler.PublishEvent)
}
