package ports

import "github.com/tdex-network/tdex-pricestream/internal/core/domain"

// TransitionListener is notified whenever the subscriber set of a symbol
// becomes non-empty or empty. Methods are called while the symbol is locked
// by the registry, therefore implementations must not block nor call back
// into the registry.
type TransitionListener interface {
	FirstSubscriber(symbol domain.Symbol)
	LastSubscriberRemoved(symbol domain.Symbol)
}

// Publisher delivers a price update to all subscribers of its symbol.
type Publisher interface {
	Publish(symbol domain.Symbol, update domain.PriceUpdate)
}
