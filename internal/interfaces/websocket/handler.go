// Package wsinterface serves price streams to clients over WebSocket.
package wsinterface

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/registry"
	"github.com/tdex-network/tdex-pricestream/internal/metrics"
)

// Handler upgrades incoming requests and runs a Session for each of them.
type Handler struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	cfg      Config
	upgrader websocket.Upgrader
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func NewHandler(
	reg *registry.Registry, cfg Config, opts ...Option,
) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{
		registry: reg,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP blocks for the whole life of the client session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied to the client.
		log.WithError(err).Debug("failed to upgrade client connection")
		return
	}

	c := newConn(ws, h.cfg)
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	newSession(c, h.registry, h.metrics).Run()
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	origins := make(map[string]struct{})
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "" {
			continue
		}
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		origins[o] = struct{}{}
	}
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non browser clients don't send any origin.
		if origin == "" {
			return true
		}
		_, ok := origins[strings.ToLower(origin)]
		return ok
	}
}
