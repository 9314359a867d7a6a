package ports

import (
	"context"
	"errors"

	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
)

var (
	// ErrPriceNotFound is returned by a PriceSource when no price is known for
	// the requested symbol.
	ErrPriceNotFound = errors.New("price not found")
	// ErrUnknownSymbol is returned by a PriceSource when the requested symbol
	// is not part of its catalog.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrInstrumentsUnavailable is returned when the list of instruments can't
	// be retrieved.
	ErrInstrumentsUnavailable = errors.New("instruments unavailable")
)

// PriceSource is the upstream provider of prices.
type PriceSource interface {
	// ListInstruments returns the catalog of instruments supported by the
	// source.
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
	// GetLatestPrice returns the latest known price for the given symbol, or
	// ErrPriceNotFound.
	GetLatestPrice(
		ctx context.Context, symbol domain.Symbol,
	) (*domain.PriceUpdate, error)
	// StartLiveFeed opens a live subscription for the given symbol. Updates are
	// pushed on the returned channel until either the context is canceled or
	// StopLiveFeed is called, after which the channel is closed.
	StartLiveFeed(
		ctx context.Context, symbol domain.Symbol,
	) (<-chan domain.PriceUpdate, error)
	// StopLiveFeed stops a previously started live subscription. It is
	// idempotent.
	StopLiveFeed(symbol domain.Symbol) error
}
