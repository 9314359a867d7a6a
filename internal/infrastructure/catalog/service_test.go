package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
	"github.com/tdex-network/tdex-pricestream/internal/infrastructure/catalog"
	catalogstore "github.com/tdex-network/tdex-pricestream/internal/infrastructure/catalog/store/badger"
)

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	store, err := catalogstore.NewInstrumentStore("", nil)
	require.NoError(t, err)
	defer store.Close()

	source := &mockSource{
		instruments: []domain.Instrument{
			{Symbol: "EURUSD", Name: "EUR/USD", SourceTicker: "EUR/USD"},
			{Symbol: "XBTUSD", Name: "XBT/USD", SourceTicker: "XBT/USD"},
		},
	}
	svc := catalog.NewService(source, store)

	// Upstream is down and nothing is cached yet.
	source.err = errors.New("upstream down")
	_, err = svc.ListInstruments(ctx)
	require.ErrorIs(t, err, ports.ErrInstrumentsUnavailable)

	source.err = nil
	instruments, err := svc.ListInstruments(ctx)
	require.NoError(t, err)
	require.Len(t, instruments, 2)

	// Upstream is down again, cached catalog is served.
	source.err = errors.New("upstream down")
	instruments, err = svc.ListInstruments(ctx)
	require.NoError(t, err)
	require.Equal(t, source.instruments, instruments)

	// Other calls go straight to the source.
	_, err = svc.GetLatestPrice(ctx, "EURUSD")
	require.ErrorIs(t, err, ports.ErrPriceNotFound)
	require.Equal(t, 1, source.priceCalls)
}

type mockSource struct {
	instruments []domain.Instrument
	err         error
	priceCalls  int
}

func (s *mockSource) ListInstruments(
	context.Context,
) ([]domain.Instrument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.instruments, nil
}

func (s *mockSource) GetLatestPrice(
	context.Context, domain.Symbol,
) (*domain.PriceUpdate, error) {
	s.priceCalls++
	return nil, ports.ErrPriceNotFound
}

func (s *mockSource) StartLiveFeed(
	context.Context, domain.Symbol,
) (<-chan domain.PriceUpdate, error) {
	return nil, ports.ErrUnknownSymbol
}

func (s *mockSource) StopLiveFeed(domain.Symbol) error {
	return nil
}
