// Package catalog decorates a ports.PriceSource with a persistent copy of its
// instruments, served whenever the upstream can't list them.
package catalog

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
)

type service struct {
	ports.PriceSource
	store InstrumentStore
}

func NewService(source ports.PriceSource, store InstrumentStore) ports.PriceSource {
	return &service{source, store}
}

func (s *service) ListInstruments(
	ctx context.Context,
) ([]domain.Instrument, error) {
	instruments, err := s.PriceSource.ListInstruments(ctx)
	if err == nil {
		s.persist(ctx, instruments)
		return instruments, nil
	}

	log.WithError(err).Warn(
		"failed to list instruments from source, falling back to cached catalog",
	)

	infos, storeErr := s.store.GetInstruments(ctx)
	if storeErr != nil {
		log.WithError(storeErr).Warn("failed to read cached catalog")
	}
	if len(infos) <= 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrInstrumentsUnavailable, err)
	}

	cached := make([]domain.Instrument, 0, len(infos))
	for _, info := range infos {
		cached = append(cached, info.ToDomain())
	}
	return cached, nil
}

func (s *service) persist(ctx context.Context, instruments []domain.Instrument) {
	if len(instruments) <= 0 {
		return
	}

	now := time.Now()
	infos := make([]InstrumentInfo, 0, len(instruments))
	for _, i := range instruments {
		infos = append(infos, NewInstrumentInfo(i, now))
	}
	if err := s.store.ReplaceInstruments(ctx, infos); err != nil {
		log.WithError(err).Warn("failed to cache instrument catalog")
	}
}
