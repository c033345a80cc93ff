package server

import (
	"context"
	"fmt"
)

// Shutdown closes every WebSocket session with a going-away status, then stops
// the HTTP server. Hijacked connections are not tracked by echo, so the
// gateway has to be closed first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.gateway.Shutdown()
	if err := s.E.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
