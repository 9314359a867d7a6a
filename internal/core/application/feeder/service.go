// Package feeder owns the upstream price subscriptions: exactly one live feed
// per symbol with at least one subscriber.
package feeder

import (
	"context"
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
	"github.com/tdex-network/tdex-pricestream/internal/metrics"
)

// Manager starts and stops upstream feeds on subscriber transitions and
// forwards every received update to the publisher.
//
// EnsureStarted and EnsureStopped never block on the price source, therefore
// they can be safely invoked by the registry while a symbol is locked. The
// source is driven by one goroutine per feed record; a new record for a
// symbol waits for the previous one to be completely stopped before opening
// a new upstream subscription.
type Manager struct {
	source    ports.PriceSource
	publisher ports.Publisher
	metrics   *metrics.Metrics

	lock       sync.Mutex
	feeds      map[domain.Symbol]*feed
	stopping   map[domain.Symbol]*feed
	generation uint64
	closed     bool

	wg sync.WaitGroup
}

type Option func(*Manager)

// WithMetrics makes the manager record its activity on the given collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

func NewManager(
	source ports.PriceSource, publisher ports.Publisher, opts ...Option,
) *Manager {
	m := &Manager{
		source:    source,
		publisher: publisher,
		feeds:     make(map[domain.Symbol]*feed),
		stopping:  make(map[domain.Symbol]*feed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FirstSubscriber implements ports.TransitionListener.
func (m *Manager) FirstSubscriber(symbol domain.Symbol) {
	m.metrics.SymbolSubscribed()
	m.EnsureStarted(symbol)
}

// LastSubscriberRemoved implements ports.TransitionListener.
func (m *Manager) LastSubscriberRemoved(symbol domain.Symbol) {
	m.metrics.SymbolUnsubscribed()
	m.EnsureStopped(symbol)
}

// EnsureStarted makes sure an upstream feed for symbol is live or about to
// be. It's a no-op if one already is.
func (m *Manager) EnsureStarted(symbol domain.Symbol) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.closed {
		return
	}
	if _, ok := m.feeds[symbol]; ok {
		return
	}

	m.generation++
	f := newFeed(symbol, m.generation)
	prev := m.stopping[symbol]
	m.feeds[symbol] = f

	m.wg.Add(1)
	go m.serve(f, prev)
}

// EnsureStopped cancels the upstream feed for symbol, if any. The feed is
// released asynchronously.
func (m *Manager) EnsureStopped(symbol domain.Symbol) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.stopLocked(symbol)
}

// IsActive returns whether symbol has a live feed record, either already
// streaming or in the process of being started.
func (m *Manager) IsActive(symbol domain.Symbol) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, ok := m.feeds[symbol]
	return ok
}

// State returns the current lifecycle state of the feed for symbol.
func (m *Manager) State(symbol domain.Symbol) FeedState {
	m.lock.Lock()
	defer m.lock.Unlock()

	if f, ok := m.feeds[symbol]; ok {
		if f.started {
			return FeedActive
		}
		return FeedStarting
	}
	if _, ok := m.stopping[symbol]; ok {
		return FeedStopping
	}
	return FeedInactive
}

// ActiveFeeds returns the symbols with a live feed record, sorted.
func (m *Manager) ActiveFeeds() []domain.Symbol {
	m.lock.Lock()
	symbols := make([]domain.Symbol, 0, len(m.feeds))
	for symbol := range m.feeds {
		symbols = append(symbols, symbol)
	}
	m.lock.Unlock()

	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols
}

// Close stops all feeds and waits for them to be released, or for ctx to be
// done. Once closed, the manager won't start new feeds.
func (m *Manager) Close(ctx context.Context) error {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return ErrManagerClosed
	}
	m.closed = true
	for symbol := range m.feeds {
		m.stopLocked(symbol)
	}
	m.lock.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("all upstream feeds released")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) stopLocked(symbol domain.Symbol) {
	f, ok := m.feeds[symbol]
	if !ok {
		return
	}

	delete(m.feeds, symbol)
	m.stopping[symbol] = f
	f.cancel()
}

// serve runs for the whole life of a feed record.
func (m *Manager) serve(f *feed, prev *feed) {
	defer m.wg.Done()
	defer m.release(f)

	logger := log.WithFields(log.Fields{
		"symbol": f.symbol,
		"feed":   f.generation,
	})

	// Records of the same symbol are chained: this one can't touch the
	// source before the previous one has released it.
	if prev != nil {
		<-prev.done
	}
	if f.ctx.Err() != nil {
		logger.Debug("feed canceled before starting")
		return
	}

	updates, err := m.source.StartLiveFeed(f.ctx, f.symbol)
	if err != nil {
		if errors.Is(err, context.Canceled) || f.ctx.Err() != nil {
			logger.Debug("feed canceled while starting")
			return
		}
		m.metrics.FeedStartFailed()
		logger.WithError(err).Warn("failed to start upstream feed")
		return
	}

	if !m.markStarted(f) {
		m.stopSource(f, logger)
		return
	}
	m.metrics.FeedStarted()
	defer m.metrics.FeedStopped()
	logger.Debug("upstream feed started")

	for {
		select {
		case <-f.ctx.Done():
			m.stopSource(f, logger)
			logger.Debug("upstream feed stopped")
			return
		case update, ok := <-updates:
			if !ok {
				if f.ctx.Err() != nil {
					m.stopSource(f, logger)
					return
				}
				m.metrics.FeedClosedByUpstream()
				logger.Warn("upstream feed closed by source")
				m.stopSource(f, logger)
				return
			}
			m.publisher.Publish(f.symbol, update)
		}
	}
}

func (m *Manager) markStarted(f *feed) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if f.ctx.Err() != nil {
		return false
	}
	f.started = true
	return true
}

func (m *Manager) stopSource(f *feed, logger *log.Entry) {
	if err := m.source.StopLiveFeed(f.symbol); err != nil {
		logger.WithError(err).Warn("failed to stop upstream feed")
	}
}

// release clears any reference to the record and signals its successor.
func (m *Manager) release(f *feed) {
	m.lock.Lock()
	if cur, ok := m.feeds[f.symbol]; ok && cur == f {
		delete(m.feeds, f.symbol)
	}
	if cur, ok := m.stopping[f.symbol]; ok && cur == f {
		delete(m.stopping, f.symbol)
	}
	m.lock.Unlock()

	f.cancel()
	close(f.done)
}
