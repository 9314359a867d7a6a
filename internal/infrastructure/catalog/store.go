package catalog

import (
	"context"
	"time"

	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
)

// InstrumentInfo is the persisted form of an instrument of the catalog.
type InstrumentInfo struct {
	Symbol       string
	Name         string
	SourceTicker string
	UpdatedAt    int64
}

func NewInstrumentInfo(i domain.Instrument, updatedAt time.Time) InstrumentInfo {
	return InstrumentInfo{
		Symbol:       i.Symbol.String(),
		Name:         i.Name,
		SourceTicker: i.SourceTicker,
		UpdatedAt:    updatedAt.Unix(),
	}
}

func (i InstrumentInfo) ToDomain() domain.Instrument {
	return domain.Instrument{
		Symbol:       domain.Symbol(i.Symbol),
		Name:         i.Name,
		SourceTicker: i.SourceTicker,
	}
}

type InstrumentStore interface {
	// ReplaceInstruments atomically replaces the whole catalog.
	ReplaceInstruments(ctx context.Context, instruments []InstrumentInfo) error
	// GetInstruments returns the stored catalog sorted by symbol.
	GetInstruments(ctx context.Context) ([]InstrumentInfo, error)
	Close()
}
