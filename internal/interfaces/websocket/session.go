package wsinterface

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/registry"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/metrics"
)

const (
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
)

type sessionState int32

const (
	sessionConnecting sessionState = iota
	sessionOpen
	sessionClosed
)

func (s sessionState) String() string {
	switch s {
	case sessionOpen:
		return "open"
	case sessionClosed:
		return "closed"
	default:
		return "connecting"
	}
}

// request is the only inbound frame accepted from clients.
type request struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// Session serves one client connection: it translates its subscribe and
// unsubscribe requests into registry mutations and makes sure that every
// subscription held by the connection is released when it goes away.
type Session struct {
	conn     *conn
	registry *registry.Registry
	metrics  *metrics.Metrics
	state    atomic.Int32
	logger   *log.Entry
}

func newSession(
	c *conn, reg *registry.Registry, m *metrics.Metrics,
) *Session {
	return &Session{
		conn:     c,
		registry: reg,
		metrics:  m,
		logger:   log.WithField("conn", c.ID()),
	}
}

// Run reads client frames until the connection is closed, then cleans up.
// It never panics.
func (s *Session) Run() {
	defer s.close()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SessionPanicked()
			s.logger.WithField("panic", fmt.Sprint(r)).Error(
				"recovered from panic in client session",
			)
		}
	}()

	s.conn.ws.SetReadLimit(s.conn.cfg.MaxMessageSize)
	//nolint
	s.conn.ws.SetReadDeadline(time.Now().Add(s.conn.cfg.PongTimeout))
	s.conn.ws.SetPongHandler(func(string) error {
		return s.conn.ws.SetReadDeadline(time.Now().Add(s.conn.cfg.PongTimeout))
	})

	s.state.Store(int32(sessionOpen))
	s.logger.Debug("client session open")

	for {
		msgType, payload, err := s.conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) && !s.conn.IsClosed() {
				s.logger.WithError(err).Debug("client connection lost")
			}
			return
		}

		if msgType != websocket.TextMessage {
			s.metrics.InvalidFrame()
			s.logger.Debug("ignoring non-text frame")
			continue
		}

		s.handleFrame(payload)
	}
}

func (s *Session) handleFrame(payload []byte) {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.metrics.InvalidFrame()
		s.logger.WithError(err).Debug("ignoring malformed frame")
		return
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	symbols := domain.NormalizeSymbols(req.Params)

	switch method {
	case MethodSubscribe:
		for _, symbol := range symbols {
			s.registry.Add(symbol, s.conn)
		}
		s.logger.WithField("symbols", symbols).Debug("subscribed")
	case MethodUnsubscribe:
		for _, symbol := range symbols {
			s.registry.Remove(symbol, s.conn)
		}
		s.logger.WithField("symbols", symbols).Debug("unsubscribed")
	default:
		s.metrics.InvalidFrame()
		s.logger.WithField("method", req.Method).Debug("ignoring unknown method")
	}
}

// close releases every subscription of the connection. It runs once, no
// matter the state the session was in when its read loop returned.
func (s *Session) close() {
	prev := sessionState(s.state.Swap(int32(sessionClosed)))
	if prev == sessionClosed {
		return
	}

	emptied := s.registry.RemoveConnectionEverywhere(s.conn)
	//nolint
	s.conn.Close()

	s.logger.WithFields(log.Fields{
		"emptied_symbols": emptied,
		"prev_state":      prev.String(),
	}).Debug("client session closed")
}
