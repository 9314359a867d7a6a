// Package simulatedsource implements a ports.PriceSource producing random
// walk prices for a fixed set of instruments. It's meant for local runs and
// tests, no network access is required.
package simulatedsource

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
)

const (
	DefaultInterval = time.Second

	feedBufferSize = 16
	// max relative change of a price between two ticks.
	maxStep   = 0.001
	precision = 5
)

var (
	ErrFeedAlreadyStarted = errors.New("live feed already started")

	DefaultInstruments = []string{"EURUSD", "GBPUSD", "USDJPY", "XBTUSD"}

	initialPrices = map[domain.Symbol]decimal.Decimal{
		"EURUSD": decimal.RequireFromString("1.08420"),
		"GBPUSD": decimal.RequireFromString("1.26710"),
		"USDJPY": decimal.RequireFromString("149.830"),
		"XBTUSD": decimal.RequireFromString("64123.4"),
	}
	defaultInitialPrice = decimal.NewFromInt(100)
)

type Config struct {
	Instruments []string
	Interval    time.Duration
	// Seed makes the generated prices reproducible. Zero means random.
	Seed int64
}

type service struct {
	interval    time.Duration
	instruments map[domain.Symbol]domain.Instrument

	lock   sync.Mutex
	rand   *rand.Rand
	prices map[domain.Symbol]decimal.Decimal
	feeds  map[domain.Symbol]*feed
}

type feed struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(cfg Config) ports.PriceSource {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	names := cfg.Instruments
	if len(names) <= 0 {
		names = DefaultInstruments
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	instruments := make(map[domain.Symbol]domain.Instrument)
	prices := make(map[domain.Symbol]decimal.Decimal)
	for _, symbol := range domain.NormalizeSymbols(names) {
		instruments[symbol] = domain.Instrument{
			Symbol: symbol,
			Name:   "Simulated " + symbol.String(),
		}
		price, ok := initialPrices[symbol]
		if !ok {
			price = defaultInitialPrice
		}
		prices[symbol] = price
	}

	return &service{
		interval:    interval,
		instruments: instruments,
		rand:        rand.New(rand.NewSource(seed)),
		prices:      prices,
		feeds:       make(map[domain.Symbol]*feed),
	}
}

func (s *service) ListInstruments(
	context.Context,
) ([]domain.Instrument, error) {
	instruments := make([]domain.Instrument, 0, len(s.instruments))
	for _, i := range s.instruments {
		instruments = append(instruments, i)
	}
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Symbol < instruments[j].Symbol
	})
	return instruments, nil
}

func (s *service) GetLatestPrice(
	_ context.Context, symbol domain.Symbol,
) (*domain.PriceUpdate, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		return nil, ports.ErrPriceNotFound
	}
	update := domain.NewPriceUpdate(symbol, price, time.Now())
	return &update, nil
}

func (s *service) StartLiveFeed(
	ctx context.Context, symbol domain.Symbol,
) (<-chan domain.PriceUpdate, error) {
	if _, ok := s.instruments[symbol]; !ok {
		return nil, ports.ErrUnknownSymbol
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.feeds[symbol]; ok {
		return nil, ErrFeedAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &feed{cancel: cancel, done: make(chan struct{})}
	s.feeds[symbol] = f

	out := make(chan domain.PriceUpdate, feedBufferSize)
	go s.run(ctx, symbol, f, out)

	log.WithField("symbol", symbol).Debug("simulated feed started")
	return out, nil
}

func (s *service) StopLiveFeed(symbol domain.Symbol) error {
	s.lock.Lock()
	f, ok := s.feeds[symbol]
	delete(s.feeds, symbol)
	s.lock.Unlock()

	if !ok {
		return nil
	}

	f.cancel()
	<-f.done
	return nil
}

func (s *service) run(
	ctx context.Context, symbol domain.Symbol, f *feed,
	out chan<- domain.PriceUpdate,
) {
	defer close(f.done)
	defer close(out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.lock.Lock()
			if cur, ok := s.feeds[symbol]; ok && cur == f {
				delete(s.feeds, symbol)
			}
			s.lock.Unlock()
			return
		case now := <-ticker.C:
			update := domain.NewPriceUpdate(symbol, s.nextPrice(symbol), now)
			select {
			case out <- update:
			case <-ctx.Done():
			}
		}
	}
}

// nextPrice moves the price of symbol by a random step and returns it.
func (s *service) nextPrice(symbol domain.Symbol) decimal.Decimal {
	s.lock.Lock()
	defer s.lock.Unlock()

	step := (s.rand.Float64()*2 - 1) * maxStep
	price := s.prices[symbol]
	next := price.Mul(decimal.NewFromFloat(1 + step)).Round(precision)
	if !next.IsPositive() {
		next = price
	}
	s.prices[symbol] = next
	return next
}
