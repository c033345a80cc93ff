package server

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/liverelay/internal/config"
	"github.com/nfrund/liverelay/internal/handlers"
	"github.com/nfrund/liverelay/internal/livechat"
	"github.com/nfrund/liverelay/internal/middleware"
	"github.com/nfrund/liverelay/internal/pubsub"
	"github.com/nfrund/liverelay/internal/websocket"
)

// Dependencies holds everything the HTTP server needs. All fields except Echo
// and Logger are required.
type Dependencies struct {
	Config      *config.Config
	Echo        *echo.Echo
	Logger      *slog.Logger
	Broadcaster *livechat.Broadcaster
	Gateway     *websocket.Gateway
	Publisher   pubsub.Publisher
	Keys        middleware.KeyChecker
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E      *echo.Echo
	Cfg    *config.Config
	logger *slog.Logger

	gateway     *websocket.Gateway
	liveHandler *handlers.LiveHandler
	keys        middleware.KeyChecker
}

// New creates a new Server instance with its middleware chain configured.
// Routes are registered separately by RegisterRoutes.
func New(deps Dependencies) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("server: config is required")
	case deps.Broadcaster == nil:
		return nil, errors.New("server: broadcaster is required")
	case deps.Gateway == nil:
		return nil, errors.New("server: gateway is required")
	case deps.Publisher == nil:
		return nil, errors.New("server: publisher is required")
	case deps.Keys == nil:
		return nil, errors.New("server: key checker is required")
	}

	e := deps.Echo
	if e == nil {
		e = echo.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())
	setupErrorHandling(e)

	return &Server{
		E:           e,
		Cfg:         deps.Config,
		logger:      logger.With("component", "server"),
		gateway:     deps.Gateway,
		liveHandler: handlers.NewLiveHandler(deps.Broadcaster, deps.Publisher, deps.Gateway),
		keys:        deps.Keys,
	}, nil
}
