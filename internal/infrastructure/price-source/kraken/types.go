package krakensource

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// restResponse is the envelope of every kraken public REST response.
type restResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (r restResponse) err() error {
	if len(r.Error) <= 0 {
		return nil
	}
	return fmt.Errorf("kraken: %s", strings.Join(r.Error, ", "))
}

func (r restResponse) isUnknownPair() bool {
	for _, e := range r.Error {
		if strings.Contains(e, "Unknown asset pair") {
			return true
		}
	}
	return false
}

type assetPair struct {
	Altname string `json:"altname"`
	Wsname  string `json:"wsname"`
	Base    string `json:"base"`
	Quote   string `json:"quote"`
}

type tickerInfo struct {
	// Last trade closed: [price, lot volume].
	Close []string `json:"c"`
}

func (t tickerInfo) lastPrice() string {
	if len(t.Close) <= 0 {
		return ""
	}
	return t.Close[0]
}

type subscribeMsg struct {
	Event        string            `json:"event"`
	Pair         []string          `json:"pair"`
	Subscription map[string]string `json:"subscription"`
}

func newSubscribeMsg(event, pair string) subscribeMsg {
	return subscribeMsg{
		Event:        event,
		Pair:         []string{pair},
		Subscription: map[string]string{"name": "ticker"},
	}
}

// eventMsg is any kraken websocket message sent as a JSON object
// (heartbeat, systemStatus, subscriptionStatus...).
type eventMsg struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	ErrorMessage string `json:"errorMessage"`
}

// parseTickerMsg parses a ticker channel message, formatted as
// [channelID, {"c": [price, volume], ...}, "ticker", pair], and returns the
// pair and the last trade price. It returns false for any other message.
func parseTickerMsg(msg []byte) (string, decimal.Decimal, bool) {
	var i []interface{}
	if err := json.Unmarshal(msg, &i); err != nil {
		return "", decimal.Zero, false
	}
	if len(i) != 4 {
		return "", decimal.Zero, false
	}

	pair, ok := i[3].(string)
	if !ok {
		return "", decimal.Zero, false
	}

	ii, ok := i[1].(map[string]interface{})
	if !ok {
		return "", decimal.Zero, false
	}

	iii, ok := ii["c"].([]interface{})
	if !ok {
		return "", decimal.Zero, false
	}
	if len(iii) < 1 {
		return "", decimal.Zero, false
	}

	priceStr, ok := iii[0].(string)
	if !ok {
		return "", decimal.Zero, false
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return "", decimal.Zero, false
	}
	return pair, price, true
}
