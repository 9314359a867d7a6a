// Package krakensource implements a ports.PriceSource backed by the kraken
// public REST and websocket APIs.
package krakensource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
	"github.com/tdex-network/tdex-pricestream/pkg/circuitbreaker"
)

const (
	DefaultRestURL        = "https://api.kraken.com"
	DefaultWebSocketURL   = "wss://ws.kraken.com"
	DefaultRequestTimeout = 15 * time.Second
	DefaultRateLimit      = 1
)

var (
	// ErrFeedAlreadyStarted is returned when starting a live feed for a symbol
	// that has one already.
	ErrFeedAlreadyStarted = errors.New("live feed already started")
)

type Config struct {
	RestURL        string
	WebSocketURL   string
	RequestTimeout time.Duration
	// RateLimit is the max number of REST requests per second.
	RateLimit int
}

func (c Config) withDefaults() Config {
	if c.RestURL == "" {
		c.RestURL = DefaultRestURL
	}
	if c.WebSocketURL == "" {
		c.WebSocketURL = DefaultWebSocketURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	return c
}

type service struct {
	cfg  Config
	rest *restClient

	instrumentsMtx sync.RWMutex
	instruments    map[domain.Symbol]domain.Instrument

	feedsMtx sync.Mutex
	feeds    map[domain.Symbol]*liveFeed
}

func NewService(cfg Config) ports.PriceSource {
	cfg = cfg.withDefaults()
	return &service{
		cfg: cfg,
		rest: newRestClient(
			strings.TrimSuffix(cfg.RestURL, "/"), cfg.RequestTimeout,
			cfg.RateLimit, circuitbreaker.NewCircuitBreaker("kraken"),
		),
		feeds: make(map[domain.Symbol]*liveFeed),
	}
}

func (s *service) ListInstruments(
	ctx context.Context,
) ([]domain.Instrument, error) {
	pairs, err := s.rest.getAssetPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrInstrumentsUnavailable, err)
	}

	bySymbol := make(map[domain.Symbol]domain.Instrument)
	for _, pair := range pairs {
		// Dark pool pairs have no public ticker.
		if pair.Wsname == "" || strings.HasSuffix(pair.Altname, ".d") {
			continue
		}
		symbol := domain.NormalizeSymbol(pair.Altname)
		if symbol.IsEmpty() {
			continue
		}
		bySymbol[symbol] = domain.Instrument{
			Symbol:       symbol,
			Name:         pair.Wsname,
			SourceTicker: pair.Wsname,
		}
	}
	s.setInstruments(bySymbol)

	instruments := make([]domain.Instrument, 0, len(bySymbol))
	for _, i := range bySymbol {
		instruments = append(instruments, i)
	}
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Symbol < instruments[j].Symbol
	})
	return instruments, nil
}

func (s *service) GetLatestPrice(
	ctx context.Context, symbol domain.Symbol,
) (*domain.PriceUpdate, error) {
	ticker, err := s.rest.getTicker(ctx, symbol.String())
	if err != nil {
		return nil, err
	}
	if ticker == nil || ticker.lastPrice() == "" {
		return nil, ports.ErrPriceNotFound
	}

	update, err := domain.NewPriceUpdateFromString(
		symbol, ticker.lastPrice(), time.Now(),
	)
	if err != nil {
		return nil, err
	}
	return &update, nil
}

func (s *service) StartLiveFeed(
	ctx context.Context, symbol domain.Symbol,
) (<-chan domain.PriceUpdate, error) {
	pair, err := s.pairFor(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.hasFeed(symbol) {
		return nil, ErrFeedAlreadyStarted
	}

	// Dialing is done without holding the lock.
	feed := newLiveFeed(ctx, symbol, pair, s.cfg.WebSocketURL)
	if err := feed.open(); err != nil {
		feed.cancel()
		return nil, fmt.Errorf("failed to open live feed for %s: %w", symbol, err)
	}

	s.feedsMtx.Lock()
	if _, ok := s.feeds[symbol]; ok {
		s.feedsMtx.Unlock()
		feed.cancel()
		feed.closeConn()
		return nil, ErrFeedAlreadyStarted
	}
	s.feeds[symbol] = feed
	s.feedsMtx.Unlock()

	go func() {
		feed.run()

		s.feedsMtx.Lock()
		defer s.feedsMtx.Unlock()
		if cur, ok := s.feeds[symbol]; ok && cur == feed {
			delete(s.feeds, symbol)
		}
	}()

	log.WithFields(log.Fields{
		"symbol": symbol,
		"pair":   pair,
	}).Debug("kraken ticker subscription opened")
	return feed.out, nil
}

func (s *service) StopLiveFeed(symbol domain.Symbol) error {
	s.feedsMtx.Lock()
	feed, ok := s.feeds[symbol]
	delete(s.feeds, symbol)
	s.feedsMtx.Unlock()

	if !ok {
		return nil
	}

	feed.stop()
	return nil
}

func (s *service) hasFeed(symbol domain.Symbol) bool {
	s.feedsMtx.Lock()
	defer s.feedsMtx.Unlock()

	_, ok := s.feeds[symbol]
	return ok
}

// pairFor returns the websocket name of the pair for the given symbol, by
// loading the instruments if not done yet.
func (s *service) pairFor(
	ctx context.Context, symbol domain.Symbol,
) (string, error) {
	if instrument, ok := s.getInstrument(symbol); ok {
		return instrument.Ticker(), nil
	}
	if _, err := s.ListInstruments(ctx); err != nil {
		return "", err
	}
	if instrument, ok := s.getInstrument(symbol); ok {
		return instrument.Ticker(), nil
	}
	return "", ports.ErrUnknownSymbol
}

func (s *service) setInstruments(
	instruments map[domain.Symbol]domain.Instrument,
) {
	s.instrumentsMtx.Lock()
	defer s.instrumentsMtx.Unlock()

	s.instruments = instruments
}

func (s *service) getInstrument(
	symbol domain.Symbol,
) (domain.Instrument, bool) {
	s.instrumentsMtx.RLock()
	defer s.instrumentsMtx.RUnlock()

	instrument, ok := s.instruments[symbol]
	return instrument, ok
}
