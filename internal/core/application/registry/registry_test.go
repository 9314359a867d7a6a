package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/registry"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
)

const (
	eurusd = domain.Symbol("EURUSD")
	gbpusd = domain.Symbol("GBPUSD")
)

func TestRegistry(t *testing.T) {
	t.Run("AddIsIdempotent", testAddIsIdempotent())
	t.Run("RemoveNotSubscribed", testRemoveNotSubscribed())
	t.Run("FirstAndLastTransitions", testFirstAndLastTransitions())
	t.Run("Snapshot", testSnapshot())
	t.Run("RemoveConnectionEverywhere", testRemoveConnectionEverywhere())
	t.Run("Symbols", testSymbols())
}

func TestRegistryConcurrentTransitions(t *testing.T) {
	reg := registry.New(8)
	listener := newStrictListener()
	reg.SetListener(listener)

	numOfConns, rounds := 32, 200
	symbols := []domain.Symbol{eurusd, gbpusd}

	wg := &sync.WaitGroup{}
	for i := 0; i < numOfConns; i++ {
		wg.Add(1)
		go func(conn ports.Conn) {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				symbol := symbols[j%len(symbols)]
				reg.Add(symbol, conn)
				if j%3 == 0 {
					reg.RemoveConnectionEverywhere(conn)
					continue
				}
				reg.Remove(symbol, conn)
			}
		}(newMockConn(fmt.Sprintf("conn-%02d", i)))
	}
	wg.Wait()

	require.Empty(t, listener.violations())
	for _, symbol := range symbols {
		require.Zero(t, reg.Count(symbol))
		firsts, lasts := listener.counts(symbol)
		require.Greater(t, firsts, 0)
		require.Equal(t, firsts, lasts)
		require.False(t, listener.isActive(symbol))
	}
}

func testAddIsIdempotent() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(0)
		c1 := newMockConn("c1")

		require.True(t, reg.Add(eurusd, c1))
		require.False(t, reg.Add(eurusd, c1))
		require.Equal(t, 1, reg.Count(eurusd))
		require.Len(t, reg.Snapshot(eurusd), 1)
	}
}

func testRemoveNotSubscribed() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(0)
		c1, c2 := newMockConn("c1"), newMockConn("c2")

		require.False(t, reg.Remove(eurusd, c1))

		reg.Add(eurusd, c1)
		require.False(t, reg.Remove(eurusd, c2))
		require.Equal(t, 1, reg.Count(eurusd))
	}
}

func testFirstAndLastTransitions() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(4)
		listener := newStrictListener()
		reg.SetListener(listener)
		c1, c2 := newMockConn("c1"), newMockConn("c2")

		require.True(t, reg.Add(eurusd, c1))
		require.False(t, reg.Add(eurusd, c2))
		require.False(t, reg.Remove(eurusd, c1))
		require.True(t, reg.Remove(eurusd, c2))

		firsts, lasts := listener.counts(eurusd)
		require.Equal(t, 1, firsts)
		require.Equal(t, 1, lasts)
		require.Empty(t, listener.violations())
	}
}

func testSnapshot() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(4)
		c1, c2, c3 := newMockConn("c1"), newMockConn("c2"), newMockConn("c3")

		reg.Add(eurusd, c2)
		reg.Add(eurusd, c1)
		reg.Add(gbpusd, c3)

		snapshot := reg.Snapshot(eurusd)
		require.Len(t, snapshot, 2)
		require.Equal(t, "c1", snapshot[0].ID())
		require.Equal(t, "c2", snapshot[1].ID())

		// Mutations after the snapshot don't affect it.
		reg.Remove(eurusd, c1)
		require.Len(t, snapshot, 2)
		require.Len(t, reg.Snapshot(eurusd), 1)

		require.Empty(t, reg.Snapshot("USDJPY"))
	}
}

func testRemoveConnectionEverywhere() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(4)
		listener := newStrictListener()
		reg.SetListener(listener)
		c1, c2 := newMockConn("c1"), newMockConn("c2")

		reg.Add(eurusd, c1)
		reg.Add(gbpusd, c1)
		reg.Add(gbpusd, c2)

		emptied := reg.RemoveConnectionEverywhere(c1)
		require.Equal(t, []domain.Symbol{eurusd}, emptied)
		require.Zero(t, reg.Count(eurusd))
		require.Equal(t, 1, reg.Count(gbpusd))
		require.Equal(t, "c2", reg.Snapshot(gbpusd)[0].ID())

		require.False(t, listener.isActive(eurusd))
		require.True(t, listener.isActive(gbpusd))

		require.Empty(t, reg.RemoveConnectionEverywhere(c1))
		require.Equal(t, []domain.Symbol{gbpusd}, reg.Symbols())
	}
}

func testSymbols() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(2)
		c1 := newMockConn("c1")

		reg.Add(gbpusd, c1)
		reg.Add(eurusd, c1)
		require.Equal(t, []domain.Symbol{eurusd, gbpusd}, reg.Symbols())

		reg.Remove(gbpusd, c1)
		require.Equal(t, []domain.Symbol{eurusd}, reg.Symbols())
	}
}

type mockConn struct {
	id string
}

func newMockConn(id string) *mockConn {
	return &mockConn{id}
}

func (c *mockConn) ID() string        { return c.id }
func (c *mockConn) Send([]byte) error { return nil }
func (c *mockConn) IsClosed() bool    { return false }
func (c *mockConn) Close() error      { return nil }

// strictListener records transitions and flags any first notification for an
// already active symbol, or last notification for an inactive one.
type strictListener struct {
	lock      sync.Mutex
	active    map[domain.Symbol]bool
	firsts    map[domain.Symbol]int
	lasts     map[domain.Symbol]int
	errorList []string
}

func newStrictListener() *strictListener {
	return &strictListener{
		active: make(map[domain.Symbol]bool),
		firsts: make(map[domain.Symbol]int),
		lasts:  make(map[domain.Symbol]int),
	}
}

func (l *strictListener) FirstSubscriber(symbol domain.Symbol) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.active[symbol] {
		l.errorList = append(l.errorList, "double first for "+symbol.String())
	}
	l.active[symbol] = true
	l.firsts[symbol]++
}

func (l *strictListener) LastSubscriberRemoved(symbol domain.Symbol) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if !l.active[symbol] {
		l.errorList = append(l.errorList, "double last for "+symbol.String())
	}
	l.active[symbol] = false
	l.lasts[symbol]++
}

func (l *strictListener) counts(symbol domain.Symbol) (int, int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.firsts[symbol], l.lasts[symbol]
}

func (l *strictListener) isActive(symbol domain.Symbol) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.active[symbol]
}

func (l *strictListener) violations() []string {
	l.lock.Lock()
	defer l.lock.Unlock()

	return append([]string{}, l.errorList...)
}
