package ports

import "errors"

var (
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when a connection can't accept a message
	// because its outbound buffer is full.
	ErrSlowConsumer = errors.New("connection send buffer is full")
)

// Conn is the server side of a client duplex connection.
type Conn interface {
	// ID uniquely identifies the connection.
	ID() string
	// Send enqueues the message for delivery without blocking. It fails with
	// ErrConnectionClosed or ErrSlowConsumer.
	Send(msg []byte) error
	// IsClosed reports whether the connection is known to be closed.
	IsClosed() bool
	// Close closes the connection. It is idempotent.
	Close() error
}
