// Package httpinterface exposes the REST api and the WebSocket endpoint of
// the daemon on a single HTTP listener.
package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/registry"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
	interfaces "github.com/tdex-network/tdex-pricestream/internal/interfaces"
	"golang.org/x/sync/singleflight"
)

const shutdownTimeout = 5 * time.Second

// FeedStatus reports whether the upstream feed of a symbol is live.
type FeedStatus interface {
	IsActive(symbol domain.Symbol) bool
}

type ServiceOpts struct {
	Port int

	PriceSource      ports.PriceSource
	Registry         *registry.Registry
	Feeds            FeedStatus
	WebSocketHandler http.Handler
	// Gatherer is optional, /metrics is not served without it.
	Gatherer prometheus.Gatherer
}

func (o ServiceOpts) validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("invalid listening port %d", o.Port)
	}
	if o.PriceSource == nil {
		return fmt.Errorf("missing price source")
	}
	if o.Registry == nil {
		return fmt.Errorf("missing subscriber registry")
	}
	if o.Feeds == nil {
		return fmt.Errorf("missing feed status")
	}
	if o.WebSocketHandler == nil {
		return fmt.Errorf("missing websocket handler")
	}
	return nil
}

func (o ServiceOpts) address() string {
	return fmt.Sprintf(":%d", o.Port)
}

type service struct {
	opts      ServiceOpts
	echo      *echo.Echo
	prices    singleflight.Group
	startTime time.Time
}

func NewService(opts ServiceOpts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.WithError(err).WithField("path", c.Path()).Error(
				"recovered from panic while serving request",
			)
			return err
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(log.Fields{
				"method": v.Method,
				"uri":    v.URI,
				"status": v.Status,
			}).Debug("served request")
			return nil
		},
	}))

	svc := &service{
		opts:      opts,
		echo:      e,
		startTime: time.Now(),
	}
	svc.registerRoutes()

	return svc, nil
}

// Start binds the listening port and serves requests in background.
func (s *service) Start() error {
	lis, err := net.Listen("tcp", s.opts.address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.address(), err)
	}
	s.echo.Listener = lis

	go func() {
		if err := s.echo.Start(""); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()

	log.Infof("http interface is listening on %s", lis.Addr())
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("error while shutting down http interface")
		return
	}
	log.Info("stopped http interface")
}

func (s *service) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/instruments", s.handleListInstruments)
	s.echo.GET("/price/:symbol", s.handleGetPrice)
	s.echo.GET("/subscriptions", s.handleListSubscriptions)
	s.echo.GET("/ws", echo.WrapHandler(s.opts.WebSocketHandler))

	if s.opts.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}),
		))
	}
}
