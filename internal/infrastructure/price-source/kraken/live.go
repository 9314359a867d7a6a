package krakensource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
)

const (
	liveFeedBufferSize   = 16
	maxReconnectAttempts = 3
	reconnectDelay       = time.Second
)

// liveFeed is a ticker subscription for a single pair over a dedicated
// websocket connection.
type liveFeed struct {
	symbol domain.Symbol
	pair   string
	wsURL  string

	ctx    context.Context
	cancel context.CancelFunc
	out    chan domain.PriceUpdate
	done   chan struct{}

	lock sync.Mutex
	conn *websocket.Conn
}

func newLiveFeed(
	ctx context.Context, symbol domain.Symbol, pair, wsURL string,
) *liveFeed {
	ctx, cancel := context.WithCancel(ctx)
	return &liveFeed{
		symbol: symbol,
		pair:   pair,
		wsURL:  wsURL,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan domain.PriceUpdate, liveFeedBufferSize),
		done:   make(chan struct{}),
	}
}

// open dials kraken and subscribes to the ticker channel of the pair.
func (f *liveFeed) open() error {
	conn, _, err := websocket.DefaultDialer.DialContext(f.ctx, f.wsURL, nil)
	if err != nil {
		return err
	}

	buf, _ := json.Marshal(newSubscribeMsg("subscribe", f.pair))
	if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		conn.Close()
		return fmt.Errorf("cannot subscribe to pair %s: %s", f.pair, err)
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	// Stopped while dialing.
	if f.ctx.Err() != nil {
		conn.Close()
		return f.ctx.Err()
	}
	f.conn = conn
	return nil
}

// run reads from the connection until the feed is stopped, reconnecting a
// few times in case kraken drops the connection. The out channel is closed
// on return.
func (f *liveFeed) run() {
	defer close(f.done)
	defer close(f.out)
	defer f.cancel()

	go func() {
		<-f.ctx.Done()
		f.closeConn()
	}()

	logger := log.WithFields(log.Fields{"symbol": f.symbol, "pair": f.pair})

	attempts := 0
	for {
		err := f.read()
		if f.ctx.Err() != nil {
			return
		}

		attempts++
		if attempts > maxReconnectAttempts {
			logger.WithError(err).Warn("giving up reconnecting to kraken")
			return
		}
		logger.WithError(err).Warn(
			"connection dropped unexpectedly. Trying to reconnect...",
		)

		select {
		case <-f.ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}

		if err := f.open(); err != nil {
			if f.ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("failed to reconnect to kraken")
			continue
		}
		attempts = 0
		logger.Debug("connection and subscription re-established")
	}
}

// read pumps messages from the current connection until it fails.
func (f *liveFeed) read() error {
	f.lock.Lock()
	conn := f.conn
	f.lock.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if len(msg) > 0 && msg[0] == '{' {
			if err := f.handleEvent(msg); err != nil {
				return err
			}
			continue
		}

		pair, price, ok := parseTickerMsg(msg)
		if !ok || pair != f.pair {
			continue
		}

		update := domain.NewPriceUpdate(f.symbol, price, time.Now())
		select {
		case f.out <- update:
		case <-f.ctx.Done():
			return f.ctx.Err()
		}
	}
}

func (f *liveFeed) handleEvent(msg []byte) error {
	var event eventMsg
	if err := json.Unmarshal(msg, &event); err != nil {
		return nil
	}
	if event.Event == "subscriptionStatus" && event.Status == "error" {
		return fmt.Errorf("subscription rejected: %s", event.ErrorMessage)
	}
	return nil
}

// stop cancels the feed and waits for its goroutine to return.
// Closing the connection is enough for kraken to drop the subscription.
func (f *liveFeed) stop() {
	f.cancel()
	<-f.done
}

func (f *liveFeed) closeConn() {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
