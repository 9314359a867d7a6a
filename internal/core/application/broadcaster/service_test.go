package broadcaster_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/broadcaster"
	"github.com/tdex-network/tdex-pricestream/internal/core/application/registry"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
	"github.com/tdex-network/tdex-pricestream/internal/metrics"
)

const (
	eurusd = domain.Symbol("EURUSD")
	gbpusd = domain.Symbol("GBPUSD")
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBroadcaster(t *testing.T) {
	t.Run("FanOut", testFanOut())
	t.Run("NoSubscribers", testNoSubscribers())
	t.Run("FaultIsolation", testFaultIsolation())
	t.Run("ClosedConnection", testClosedConnection())
	t.Run("SlowConsumer", testSlowConsumer())
	t.Run("PruneLoggedAtDebug", testPruneLoggedAtDebug())
	t.Run("PerConnectionOrder", testPerConnectionOrder())
}

func testFanOut() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(0)
		m := metrics.New(prometheus.NewRegistry())
		b := broadcaster.New(reg, broadcaster.WithMetrics(m))

		c1, c2, c3 := newMockConn("c1", 10), newMockConn("c2", 10), newMockConn("c3", 10)
		reg.Add(eurusd, c1)
		reg.Add(eurusd, c2)
		reg.Add(gbpusd, c3)

		update, err := domain.NewPriceUpdateFromString(eurusd, "1.0842", now)
		require.NoError(t, err)
		b.Publish(eurusd, update)

		for _, c := range []*mockConn{c1, c2} {
			msgs := c.messages()
			require.Len(t, msgs, 1)
			assert.JSONEq(
				t,
				`{"symbol":"EURUSD","price":1.0842,"timestamp":"2024-03-01T12:00:00Z"}`,
				string(msgs[0]),
			)
		}
		require.Empty(t, c3.messages())
		require.Equal(t, float64(2), testutil.ToFloat64(m.MessagesDelivered))
	}
}

func testNoSubscribers() func(*testing.T) {
	return func(t *testing.T) {
		b := broadcaster.New(registry.New(0))
		update, err := domain.NewPriceUpdateFromString(eurusd, "1.0842", now)
		require.NoError(t, err)

		require.NotPanics(t, func() { b.Publish(eurusd, update) })
	}
}

func testFaultIsolation() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(0)
		m := metrics.New(prometheus.NewRegistry())
		b := broadcaster.New(reg, broadcaster.WithMetrics(m))

		good1, bad, good2 := newMockConn("a", 10), newMockConn("b", 10), newMockConn("c", 10)
		bad.failSend(ports.ErrConnectionClosed)
		for _, c := range []*mockConn{good1, bad, good2} {
			reg.Add(eurusd, c)
		}
		reg.Add(gbpusd, bad)

		update, err := domain.NewPriceUpdateFromString(eurusd, "1.0842", now)
		require.NoError(t, err)
		b.Publish(eurusd, update)

		require.Len(t, good1.messages(), 1)
		require.Len(t, good2.messages(), 1)
		require.True(t, bad.IsClosed())

		// The failed connection is removed from every symbol.
		require.Equal(t, 2, reg.Count(eurusd))
		require.Zero(t, reg.Count(gbpusd))
		require.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsPruned))
	}
}

func testClosedConnection() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(0)
		b := broadcaster.New(reg)

		open, closed := newMockConn("open", 10), newMockConn("closed", 10)
		closed.Close()
		reg.Add(eurusd, open)
		reg.Add(eurusd, closed)

		update, err := domain.NewPriceUpdateFromString(eurusd, "1.0842", now)
		require.NoError(t, err)
		b.Publish(eurusd, update)

		require.Len(t, open.messages(), 1)
		require.Empty(t, closed.messages())
		require.Equal(t, 1, reg.Count(eurusd))
	}
}

func testSlowConsumer() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(0)
		b := broadcaster.New(reg)

		fast, slow := newMockConn("fast", 10), newMockConn("slow", 2)
		reg.Add(eurusd, fast)
		reg.Add(eurusd, slow)

		for i := 0; i < 3; i++ {
			update, err := domain.NewPriceUpdateFromString(eurusd, "1.0842", now)
			require.NoError(t, err)
			b.Publish(eurusd, update)
		}

		require.Len(t, fast.messages(), 3)
		require.Len(t, slow.messages(), 2)
		require.True(t, slow.IsClosed())
		require.Equal(t, 1, reg.Count(eurusd))
	}
}

func testPruneLoggedAtDebug() func(*testing.T) {
	return func(t *testing.T) {
		prevLevel := log.GetLevel()
		prevHooks := log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
		hook := logtest.NewGlobal()
		log.SetLevel(log.DebugLevel)
		defer func() {
			log.SetLevel(prevLevel)
			log.StandardLogger().ReplaceHooks(prevHooks)
		}()

		reg := registry.New(0)
		b := broadcaster.New(reg)
		slow := newMockConn("slow", 0)
		reg.Add(eurusd, slow)

		update, err := domain.NewPriceUpdateFromString(eurusd, "1.0842", now)
		require.NoError(t, err)
		b.Publish(eurusd, update)
		require.True(t, slow.IsClosed())

		var pruned []*log.Entry
		for _, e := range hook.AllEntries() {
			if e.Message == "connection pruned" {
				pruned = append(pruned, e)
			}
		}
		require.Len(t, pruned, 1)
		assert.Equal(t, log.DebugLevel, pruned[0].Level)
		assert.Equal(t, "slow", pruned[0].Data["conn"])
	}
}

func testPerConnectionOrder() func(*testing.T) {
	return func(t *testing.T) {
		reg := registry.New(0)
		b := broadcaster.New(reg)
		c := newMockConn("c", 10)
		reg.Add(eurusd, c)

		prices := []string{"1.1", "1.2", "1.3", "1.4"}
		for _, p := range prices {
			update, err := domain.NewPriceUpdateFromString(eurusd, p, now)
			require.NoError(t, err)
			b.Publish(eurusd, update)
		}

		msgs := c.messages()
		require.Len(t, msgs, len(prices))
		for i, msg := range msgs {
			update := domain.PriceUpdate{}
			require.NoError(t, json.Unmarshal(msg, &update))
			require.Equal(t, prices[i], update.Price.String())
		}
	}
}

type mockConn struct {
	id       string
	capacity int

	lock    sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
}

func newMockConn(id string, capacity int) *mockConn {
	return &mockConn{id: id, capacity: capacity}
}

func (c *mockConn) ID() string { return c.id }

func (c *mockConn) Send(msg []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return ports.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	if len(c.sent) >= c.capacity {
		return ports.ErrSlowConsumer
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *mockConn) IsClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.closed
}

func (c *mockConn) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.closed = true
	return nil
}

func (c *mockConn) failSend(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.sendErr = err
}

func (c *mockConn) messages() [][]byte {
	c.lock.Lock()
	defer c.lock.Unlock()

	return append([][]byte{}, c.sent...)
}
