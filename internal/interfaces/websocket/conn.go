package wsinterface

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
)

const (
	DefaultSendBufferSize = 256
	DefaultWriteTimeout   = 5 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultMaxMessageSize = 4096
)

// Config tunes the server side of client connections.
type Config struct {
	// SendBufferSize is the number of outbound messages a connection can
	// buffer before being considered a slow consumer.
	SendBufferSize int
	WriteTimeout   time.Duration
	// PongTimeout is the max time between two pongs from the client. Pings
	// are sent at 9/10 of this interval.
	PongTimeout    time.Duration
	MaxMessageSize int64
	// AllowedOrigins restricts the Origin header of upgrade requests. Empty
	// or containing "*" allows any origin.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = DefaultSendBufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}

func (c Config) pingPeriod() time.Duration {
	return c.PongTimeout * 9 / 10
}

// conn adapts a gorilla websocket connection to ports.Conn. All writes go
// through a single write pump goroutine fed by a bounded channel.
type conn struct {
	id  string
	ws  *websocket.Conn
	cfg Config

	send      chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, cfg Config) *conn {
	c := &conn{
		id:   uuid.New().String(),
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBufferSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *conn) ID() string {
	return c.id
}

// Send never blocks. The send channel is never closed, so it's safe to call
// concurrently with Close.
func (c *conn) Send(msg []byte) error {
	if c.closed.Load() {
		return ports.ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ports.ErrSlowConsumer
	}
}

func (c *conn) IsClosed() bool {
	return c.closed.Load()
}

// Close marks the connection as closed and returns immediately. The close
// handshake and the release of the socket are left to the write pump, so
// that callers never wait on a peer that stopped reading.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		//nolint
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			// Best effort, the peer may be already gone.
			//nolint
			c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				deadline,
			)
			return
		case msg := <-c.send:
			//nolint
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).WithField("conn", c.id).Debug(
					"failed to write message, closing connection",
				)
				c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(
				websocket.PingMessage, nil, deadline,
			); err != nil {
				log.WithError(err).WithField("conn", c.id).Debug(
					"failed to ping client, closing connection",
				)
				c.Close()
				return
			}
		}
	}
}
