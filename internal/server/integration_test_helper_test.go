package server_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nfrund/liverelay/internal/app"
	"github.com/nfrund/liverelay/internal/config"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "integration-key"

// setupIntegrationTest builds the full application through the composition
// root and serves it from an httptest server. It returns the app, the test
// server and a cleanup function to be deferred.
func setupIntegrationTest(t *testing.T) (*app.App, *httptest.Server, func()) {
	t.Helper()

	cfg := &config.Config{
		Addr:                "127.0.0.1:0",
		APIKeys:             []string{testAPIKey},
		BufferCapacity:      100,
		ReplayLimit:         10,
		DeliveryTimeout:     time.Second,
		MaxDeliveryFailures: 3,
		SendQueue:           64,
		RateLimit:           1000,
		LogFormat:           "text",
		LogLevel:            "debug",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := app.New(cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	testServer := httptest.NewServer(a.Server.E)

	cleanup := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		// 1. Close WebSocket sessions; hijacked connections outlive the test server.
		a.Gateway.Shutdown()
		// 2. Stop the ingestor's subscriptions and the test server.
		cancel()
		testServer.Close()
		// 3. Close the bus.
		_ = a.Close(shutdownCtx)
	}

	return a, testServer, cleanup
}

// wsURL turns the test server's http URL into a /realtime URL with query.
func wsURL(testServer *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/realtime"
	if query != "" {
		u += "?" + query
	}
	return u
}

// waitForSessions blocks until the gateway has n authenticated sessions.
func waitForSessions(t *testing.T, a *app.App, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.Gateway.ActiveSessions() == n
	}, 2*time.Second, 10*time.Millisecond)
}

// TestSetupIntegrationTest verifies that the entire setup and teardown
// process works without errors.
func TestSetupIntegrationTest(t *testing.T) {
	a, testServer, cleanup := setupIntegrationTest(t)
	defer cleanup()

	require.NotNil(t, a)
	require.NotNil(t, testServer)
	require.NotEmpty(t, testServer.URL)
}
