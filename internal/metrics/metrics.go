// Package metrics exposes the prometheus collectors of the daemon.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "pricestream"

// Metrics holds the collectors updated by the core components. A nil *Metrics
// is valid and simply records nothing, so that components can be used
// without instrumentation in tests.
type Metrics struct {
	ActiveConnections   prometheus.Gauge
	SubscribedSymbols   prometheus.Gauge
	ActiveFeeds         prometheus.Gauge
	FeedStartFailures   prometheus.Counter
	FeedUpstreamClosed  prometheus.Counter
	MessagesDelivered   prometheus.Counter
	ConnectionsPruned   prometheus.Counter
	SessionPanics       prometheus.Counter
	InvalidClientFrames prometheus.Counter
}

// New creates and registers all collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open client connections.",
		}),
		SubscribedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subscribed_symbols",
			Help:      "Number of symbols with at least one subscriber.",
		}),
		ActiveFeeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feeder",
			Name:      "active_feeds",
			Help:      "Number of live upstream feeds.",
		}),
		FeedStartFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feeder",
			Name:      "start_failures_total",
			Help:      "Total number of upstream feeds that failed to start.",
		}),
		FeedUpstreamClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feeder",
			Name:      "upstream_closed_total",
			Help:      "Total number of upstream feeds closed by the source.",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "messages_delivered_total",
			Help:      "Total number of price updates handed to client connections.",
		}),
		ConnectionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "connections_pruned_total",
			Help:      "Total number of connections dropped because delivery failed.",
		}),
		SessionPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "session_panics_total",
			Help:      "Total number of recovered panics in client sessions.",
		}),
		InvalidClientFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "invalid_frames_total",
			Help:      "Total number of ignored client frames.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.SubscribedSymbols,
		m.ActiveFeeds,
		m.FeedStartFailures,
		m.FeedUpstreamClosed,
		m.MessagesDelivered,
		m.ConnectionsPruned,
		m.SessionPanics,
		m.InvalidClientFrames,
	)
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

func (m *Metrics) SymbolSubscribed() {
	if m != nil {
		m.SubscribedSymbols.Inc()
	}
}

func (m *Metrics) SymbolUnsubscribed() {
	if m != nil {
		m.SubscribedSymbols.Dec()
	}
}

func (m *Metrics) FeedStarted() {
	if m != nil {
		m.ActiveFeeds.Inc()
	}
}

func (m *Metrics) FeedStopped() {
	if m != nil {
		m.ActiveFeeds.Dec()
	}
}

func (m *Metrics) FeedStartFailed() {
	if m != nil {
		m.FeedStartFailures.Inc()
	}
}

func (m *Metrics) FeedClosedByUpstream() {
	if m != nil {
		m.FeedUpstreamClosed.Inc()
	}
}

func (m *Metrics) MessageDelivered() {
	if m != nil {
		m.MessagesDelivered.Inc()
	}
}

func (m *Metrics) ConnectionPruned() {
	if m != nil {
		m.ConnectionsPruned.Inc()
	}
}

func (m *Metrics) SessionPanicked() {
	if m != nil {
		m.SessionPanics.Inc()
	}
}

func (m *Metrics) InvalidFrame() {
	if m != nil {
		m.InvalidClientFrames.Inc()
	}
}
