package feeder

import (
	"context"

	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
)

// FeedState is the lifecycle state of the upstream feed of a symbol.
type FeedState int

const (
	FeedInactive FeedState = iota
	FeedStarting
	FeedActive
	FeedStopping
)

func (s FeedState) String() string {
	switch s {
	case FeedStarting:
		return "starting"
	case FeedActive:
		return "active"
	case FeedStopping:
		return "stopping"
	default:
		return "inactive"
	}
}

// feed is the record of one upstream subscription. A record is never reused:
// restarting a symbol always creates a new one with a higher generation.
type feed struct {
	symbol     domain.Symbol
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	// done is closed once the goroutine serving the record has returned and
	// the upstream subscription, if any, has been released.
	done    chan struct{}
	started bool
}

func newFeed(symbol domain.Symbol, generation uint64) *feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &feed{
		symbol:     symbol,
		generation: generation,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}
