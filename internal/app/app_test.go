package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/liverelay/internal/config"
	"github.com/nfrund/liverelay/internal/livechat"
)

func testConfig() *config.Config {
	return &config.Config{
		Addr:                "127.0.0.1:0",
		APIKeys:             []string{"secret"},
		BufferCapacity:      10,
		ReplayLimit:         5,
		DeliveryTimeout:     time.Second,
		MaxDeliveryFailures: 3,
		SendQueue:           16,
		RateLimit:           100,
		LogFormat:           "text",
		LogLevel:            "debug",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_ResolvesServices(t *testing.T) {
	a, err := New(testConfig(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.NotNil(t, a.Bus)
	assert.NotNil(t, a.Gateway)
	assert.NotNil(t, a.Ingestor)
	assert.NotNil(t, a.Server)
	assert.Equal(t, 10, a.Broadcaster.Stats().BufferCap)
	assert.True(t, a.Keys.Contains("secret"))
	assert.False(t, a.Keys.Contains("other"))
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil, quietLogger())
	assert.Error(t, err)
}

func TestNew_KeysFileFromFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/relay/keys", []byte("# relay keys\nfrom-file\n"), 0o600))

	cfg := testConfig()
	cfg.APIKeysFile = "/etc/relay/keys"

	a, err := New(cfg, quietLogger(), WithFs(fs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.True(t, a.Keys.Contains("from-file"))
	assert.True(t, a.Keys.Contains("secret"))
}

func TestNew_MissingKeysFile(t *testing.T) {
	cfg := testConfig()
	cfg.APIKeysFile = "/does/not/exist"

	_, err := New(cfg, quietLogger(), WithFs(afero.NewMemMapFs()))
	assert.Error(t, err)
}

func TestStart_IngestsBusEvents(t *testing.T) {
	a, err := New(testConfig(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, a.Start(ctx))

	msg, err := livechat.HostEvent{
		Event:    livechat.EventSent,
		StreamID: "s1",
		Payload:  []byte(`"hello from the bot"`),
	}.Message()
	require.NoError(t, err)
	require.NoError(t, a.Bus.Publish(ctx, msg))

	require.Eventually(t, func() bool {
		return len(a.Broadcaster.RecentMessagesForStream("s1", 10)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := a.Broadcaster.RecentMessagesForStream("s1", 10)[0]
	assert.Equal(t, livechat.DirectionOutgoing, got.Direction)
	assert.Equal(t, "bot", got.SenderType)
	assert.True(t, got.IsBot)
	assert.Equal(t, "hello from the bot", got.Content)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := New(testConfig(), quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
