// Package broadcaster fans price updates out to the subscribers of a symbol.
package broadcaster

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/registry"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
	"github.com/tdex-network/tdex-pricestream/internal/metrics"
)

// Broadcaster implements ports.Publisher on top of the subscriber registry.
// A connection that can't take a message is dropped from every symbol and
// closed, without affecting delivery to the others.
type Broadcaster struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
}

type Option func(*Broadcaster)

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) {
		b.metrics = m
	}
}

func New(reg *registry.Registry, opts ...Option) *Broadcaster {
	b := &Broadcaster{registry: reg}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers update to a snapshot of the current subscribers of symbol.
func (b *Broadcaster) Publish(symbol domain.Symbol, update domain.PriceUpdate) {
	conns := b.registry.Snapshot(symbol)
	if len(conns) == 0 {
		return
	}

	msg, err := json.Marshal(update)
	if err != nil {
		log.WithError(err).WithField("symbol", symbol).Warn(
			"failed to serialize price update",
		)
		return
	}

	for _, conn := range conns {
		if conn.IsClosed() {
			b.prune(conn, ports.ErrConnectionClosed)
			continue
		}
		if err := conn.Send(msg); err != nil {
			b.prune(conn, err)
			continue
		}
		b.metrics.MessageDelivered()
	}
}

func (b *Broadcaster) prune(conn ports.Conn, reason error) {
	symbols := b.registry.RemoveConnectionEverywhere(conn)
	if err := conn.Close(); err != nil {
		log.WithError(err).WithField("conn", conn.ID()).Debug(
			"error while closing pruned connection",
		)
	}
	b.metrics.ConnectionPruned()

	log.WithError(reason).WithFields(log.Fields{
		"conn":            conn.ID(),
		"emptied_symbols": symbols,
	}).Debug("connection pruned")
}
