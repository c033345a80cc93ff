package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/nfrund/liverelay/internal/auth"
	"github.com/nfrund/liverelay/internal/config"
	"github.com/nfrund/liverelay/internal/livechat"
	"github.com/nfrund/liverelay/internal/pubsub"
	"github.com/nfrund/liverelay/internal/server"
	"github.com/nfrund/liverelay/internal/websocket"
)

func provideTracing(i do.Injector) (*tracing, error) {
	cfg := do.MustInvoke[*config.Config](i)
	tracer, shutdown, err := pubsub.SetupOTel(context.Background(), pubsub.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		ZipkinURL:   cfg.Tracing.ZipkinURL,
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	return &tracing{tracer: tracer, shutdown: shutdown}, nil
}

func provideBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	t, err := do.Invoke[*tracing](i)
	if err != nil {
		return nil, err
	}
	logger := do.MustInvoke[*slog.Logger](i)
	return pubsub.NewWatermillBridge(
		pubsub.WithTracer(t.tracer),
		pubsub.WithLogger(logger),
	), nil
}

func provideBroadcaster(i do.Injector) (*livechat.Broadcaster, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	return livechat.NewBroadcaster(
		livechat.WithCapacity(cfg.BufferCapacity),
		livechat.WithDeliveryTimeout(cfg.DeliveryTimeout),
		livechat.WithMaxFailures(cfg.MaxDeliveryFailures),
		livechat.WithLogger(logger),
	), nil
}

func provideKeyStore(i do.Injector) (*auth.KeyStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	fs := do.MustInvoke[afero.Fs](i)
	keys, err := auth.NewKeyStore(fs, cfg.APIKeys, cfg.APIKeysFile)
	if err != nil {
		return nil, fmt.Errorf("load api keys: %w", err)
	}
	return keys, nil
}

func provideGateway(i do.Injector) (*websocket.Gateway, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	b, err := do.Invoke[*livechat.Broadcaster](i)
	if err != nil {
		return nil, err
	}
	keys, err := do.Invoke[*auth.KeyStore](i)
	if err != nil {
		return nil, err
	}
	return websocket.NewGateway(b, keys, websocket.GatewayConfig{
		ReplayLimit:    cfg.ReplayLimit,
		SendQueue:      cfg.SendQueue,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger), nil
}

func provideIngestor(i do.Injector) (*livechat.Ingestor, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	b, err := do.Invoke[*livechat.Broadcaster](i)
	if err != nil {
		return nil, err
	}
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	return livechat.NewIngestor(b, bus, logger), nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	b, err := do.Invoke[*livechat.Broadcaster](i)
	if err != nil {
		return nil, err
	}
	gw, err := do.Invoke[*websocket.Gateway](i)
	if err != nil {
		return nil, err
	}
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	keys, err := do.Invoke[*auth.KeyStore](i)
	if err != nil {
		return nil, err
	}
	return server.New(server.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Broadcaster: b,
		Gateway:     gw,
		Publisher:   bus,
		Keys:        keys,
	})
}
