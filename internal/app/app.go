// Package app is the composition root. It wires the relay's services into a
// samber/do container and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/liverelay/internal/auth"
	"github.com/nfrund/liverelay/internal/config"
	"github.com/nfrund/liverelay/internal/livechat"
	"github.com/nfrund/liverelay/internal/pubsub"
	"github.com/nfrund/liverelay/internal/server"
	"github.com/nfrund/liverelay/internal/websocket"
)

// Version is reported in tracing resources and by `relay version`.
var Version = "dev"

// tracing bundles the bus tracer with the func that flushes it.
type tracing struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// App holds the resolved services of one relay process.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Bus         *pubsub.WatermillBridge
	Broadcaster *livechat.Broadcaster
	Keys        *auth.KeyStore
	Gateway     *websocket.Gateway
	Ingestor    *livechat.Ingestor
	Server      *server.Server

	tracing *tracing
}

type options struct {
	fs afero.Fs
}

// Option customises how New builds the container.
type Option func(*options)

// WithFs replaces the filesystem the key store reads from.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// New registers every provider and resolves the service graph.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, logger)
	do.ProvideValue(i, o.fs)
	do.Provide(i, provideTracing)
	do.Provide(i, provideBus)
	do.Provide(i, provideBroadcaster)
	do.Provide(i, provideKeyStore)
	do.Provide(i, provideGateway)
	do.Provide(i, provideIngestor)
	do.Provide(i, provideServer)

	srv, err := do.Invoke[*server.Server](i)
	if err != nil {
		return nil, fmt.Errorf("resolve services: %w", err)
	}
	srv.RegisterRoutes()

	return &App{
		Config:      cfg,
		Logger:      logger,
		Bus:         do.MustInvoke[*pubsub.WatermillBridge](i),
		Broadcaster: do.MustInvoke[*livechat.Broadcaster](i),
		Keys:        do.MustInvoke[*auth.KeyStore](i),
		Gateway:     do.MustInvoke[*websocket.Gateway](i),
		Ingestor:    do.MustInvoke[*livechat.Ingestor](i),
		Server:      srv,
		tracing:     do.MustInvoke[*tracing](i),
	}, nil
}

// Start subscribes the ingestor to the bus and, when a keys file is
// configured, begins watching it. It does not block.
func (a *App) Start(ctx context.Context) error {
	if err := a.Ingestor.Start(ctx); err != nil {
		return fmt.Errorf("start ingestor: %w", err)
	}
	if a.Config.APIKeysFile != "" {
		if err := a.Keys.Watch(ctx); err != nil {
			return fmt.Errorf("watch keys file: %w", err)
		}
	}
	if a.Keys.Len() == 0 {
		a.Logger.Warn("No API keys configured; every client will be rejected")
	}
	return nil
}

// Run starts the background services and serves HTTP on the configured
// address until ctx is cancelled. Everything is closed before it returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := a.Start(ctx)
	if err == nil {
		err = a.Server.Start(ctx, a.Config.Addr)
	}
	if cerr := a.Close(context.Background()); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the bus and flushes pending spans. The HTTP server is shut
// down by Run; callers that only used Start should shut it down themselves.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	if err := a.tracing.shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	return errors.Join(errs...)
}
