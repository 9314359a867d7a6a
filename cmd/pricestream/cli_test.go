package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLI(t *testing.T) {
	srv := newMockDaemon(t)
	defer srv.Close()

	t.Run("Instruments", testInstruments(srv.URL))
	t.Run("Price", testPrice(srv.URL))
	t.Run("PriceNotFound", testPriceNotFound(srv.URL))
	t.Run("PriceInvalidUsage", testPriceInvalidUsage(srv.URL))
	t.Run("Subscriptions", testSubscriptions(srv.URL))
	t.Run("Watch", testWatch(srv.URL))
	t.Run("InvalidURL", testInvalidURL())
}

func testInstruments(url string) func(*testing.T) {
	return func(t *testing.T) {
		out, err := runCLICommand(url, "instruments")
		require.NoError(t, err)
		assert.Contains(t, out, `"symbol": "EURUSD"`)
		assert.Contains(t, out, `"name": "Euro / US Dollar"`)
	}
}

func testPrice(url string) func(*testing.T) {
	return func(t *testing.T) {
		out, err := runCLICommand(url, "price", "eurusd")
		require.NoError(t, err)
		assert.Contains(t, out, `"price": 1.0842`)
	}
}

func testPriceNotFound(url string) func(*testing.T) {
	return func(t *testing.T) {
		_, err := runCLICommand(url, "price", "XAUUSD")
		require.EqualError(t, err, "price unavailable")
	}
}

func testPriceInvalidUsage(url string) func(*testing.T) {
	return func(t *testing.T) {
		_, err := runCLICommand(url, "price")
		require.Error(t, err)
		_, ok := err.(*invalidUsageError)
		require.True(t, ok)
	}
}

func testSubscriptions(url string) func(*testing.T) {
	return func(t *testing.T) {
		out, err := runCLICommand(url, "subscriptions")
		require.NoError(t, err)
		assert.Contains(t, out, `"feed_active": true`)
	}
}

func testWatch(url string) func(*testing.T) {
	return func(t *testing.T) {
		out, err := runCLICommand(url, "watch", "--count", "2", "eurusd")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "2024-01-02T03:04:05.000Z\tEURUSD\t1.0842", lines[0])
		assert.Equal(t, "n/a\tEURUSD\t1.0843", lines[1])
	}
}

func testInvalidURL() func(*testing.T) {
	return func(t *testing.T) {
		_, err := runCLICommand("ftp://localhost", "instruments")
		require.Error(t, err)
	}
}

func runCLICommand(url string, args ...string) (string, error) {
	out := &bytes.Buffer{}
	app := newApp(out)
	cmd := append([]string{"pricestream", "--url", url}, args...)
	err := app.Run(cmd)
	return out.String(), err
}

func newMockDaemon(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/instruments", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"symbol":"EURUSD","name":"Euro / US Dollar"}]`))
	})
	mux.HandleFunc("/price/EURUSD", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(
			`{"symbol":"EURUSD","price":1.0842,"timestamp":"2024-01-02T03:04:05Z"}`,
		))
	})
	mux.HandleFunc("/price/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"price unavailable"}`))
	})
	mux.HandleFunc("/subscriptions", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"symbol":"EURUSD","subscribers":1,"feed_active":true}]`))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		req := subscribeRequest{}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "SUBSCRIBE" || len(req.Params) != 1 ||
			req.Params[0] != "EURUSD" {
			return
		}

		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"symbol":"EURUSD","price":1.0842,"timestamp":"2024-01-02T03:04:05Z"}`,
		))
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"symbol":"EURUSD","price":1.0843,"timestamp":null}`,
		))
		// Wait for the client to go away.
		conn.ReadMessage()
	})
	return httptest.NewServer(mux)
}
