// Package registry keeps track of which connections are subscribed to which
// symbols.
//
// Symbols are spread over a fixed number of shards, each guarded by its own
// mutex, so that traffic on a symbol never contends with traffic on symbols
// living in other shards. Every mutation reports whether it caused the
// subscriber set of a symbol to become non-empty (first subscriber) or empty
// (last subscriber removed), and the optional TransitionListener is notified
// of such transitions before the shard lock is released.
package registry

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
)

const (
	// DefaultShards is used when a non positive number of shards is given.
	DefaultShards = 64
)

type subscribers map[string]ports.Conn

type shard struct {
	mu       sync.Mutex
	bySymbol map[domain.Symbol]subscribers
}

type Registry struct {
	shards []*shard

	listenerMtx sync.RWMutex
	listener    ports.TransitionListener
}

func New(numOfShards int) *Registry {
	if numOfShards <= 0 {
		numOfShards = DefaultShards
	}

	shards := make([]*shard, 0, numOfShards)
	for i := 0; i < numOfShards; i++ {
		shards = append(shards, &shard{
			bySymbol: make(map[domain.Symbol]subscribers),
		})
	}
	return &Registry{shards: shards}
}

// SetListener installs the listener notified of first/last subscriber
// transitions. It's meant to be called once, before the registry is used.
func (r *Registry) SetListener(listener ports.TransitionListener) {
	r.listenerMtx.Lock()
	defer r.listenerMtx.Unlock()

	r.listener = listener
}

// Add subscribes conn to symbol and returns whether conn is the first
// subscriber. Adding an already subscribed connection is a no-op.
func (r *Registry) Add(symbol domain.Symbol, conn ports.Conn) (wasFirst bool) {
	s := r.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.bySymbol[symbol]
	if !ok {
		subs = make(subscribers)
		s.bySymbol[symbol] = subs
	}
	if _, ok := subs[conn.ID()]; ok {
		return false
	}

	subs[conn.ID()] = conn
	wasFirst = len(subs) == 1
	if wasFirst {
		r.notifyFirst(symbol)
	}
	return wasFirst
}

// Remove unsubscribes conn from symbol and returns whether conn was the last
// subscriber. Removing a connection that is not subscribed is a no-op.
func (r *Registry) Remove(symbol domain.Symbol, conn ports.Conn) (wasLast bool) {
	s := r.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	return r.removeLocked(s, symbol, conn.ID())
}

// Snapshot returns a copy of the subscribers of symbol, sorted by connection
// id. The returned slice is safe to use while the registry keeps changing.
func (r *Registry) Snapshot(symbol domain.Symbol) []ports.Conn {
	s := r.shardFor(symbol)
	s.mu.Lock()
	subs := s.bySymbol[symbol]
	conns := make([]ports.Conn, 0, len(subs))
	for _, conn := range subs {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ID() < conns[j].ID()
	})
	return conns
}

// RemoveConnectionEverywhere unsubscribes conn from every symbol and returns
// the symbols left without subscribers. Shards are locked one at a time.
func (r *Registry) RemoveConnectionEverywhere(conn ports.Conn) []domain.Symbol {
	connID := conn.ID()
	emptied := make([]domain.Symbol, 0)

	for _, s := range r.shards {
		s.mu.Lock()
		for symbol, subs := range s.bySymbol {
			if _, ok := subs[connID]; !ok {
				continue
			}
			if r.removeLocked(s, symbol, connID) {
				emptied = append(emptied, symbol)
			}
		}
		s.mu.Unlock()
	}

	sort.Slice(emptied, func(i, j int) bool { return emptied[i] < emptied[j] })
	return emptied
}

// Count returns the number of subscribers of symbol.
func (r *Registry) Count(symbol domain.Symbol) int {
	s := r.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.bySymbol[symbol])
}

// Symbols returns all symbols with at least one subscriber, sorted.
func (r *Registry) Symbols() []domain.Symbol {
	symbols := make([]domain.Symbol, 0)
	for _, s := range r.shards {
		s.mu.Lock()
		for symbol := range s.bySymbol {
			symbols = append(symbols, symbol)
		}
		s.mu.Unlock()
	}

	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols
}

// removeLocked must be called with the shard lock held.
func (r *Registry) removeLocked(
	s *shard, symbol domain.Symbol, connID string,
) bool {
	subs, ok := s.bySymbol[symbol]
	if !ok {
		return false
	}
	if _, ok := subs[connID]; !ok {
		return false
	}

	delete(subs, connID)
	if len(subs) > 0 {
		return false
	}

	delete(s.bySymbol, symbol)
	r.notifyLast(symbol)
	return true
}

func (r *Registry) shardFor(symbol domain.Symbol) *shard {
	i := xxhash.Sum64String(string(symbol)) % uint64(len(r.shards))
	return r.shards[i]
}

func (r *Registry) getListener() ports.TransitionListener {
	r.listenerMtx.RLock()
	defer r.listenerMtx.RUnlock()

	return r.listener
}

func (r *Registry) notifyFirst(symbol domain.Symbol) {
	if l := r.getListener(); l != nil {
		l.FirstSubscriber(symbol)
	}
}

func (r *Registry) notifyLast(symbol domain.Symbol) {
	if l := r.getListener(); l != nil {
		l.LastSubscriberRemoved(symbol)
	}
}
