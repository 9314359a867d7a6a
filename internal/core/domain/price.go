package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PriceUpdate is a single quote for a symbol as produced by a price source.
// Both Price and Timestamp are optional, a source may not know one of them.
// PriceUpdate is treated as immutable once created.
type PriceUpdate struct {
	Symbol    Symbol
	Price     *decimal.Decimal
	Timestamp *time.Time
}

// NewPriceUpdate returns a PriceUpdate with the given price and timestamp.
func NewPriceUpdate(
	symbol Symbol, price decimal.Decimal, timestamp time.Time,
) PriceUpdate {
	ts := timestamp.UTC()
	return PriceUpdate{
		Symbol:    symbol,
		Price:     &price,
		Timestamp: &ts,
	}
}

// NewPriceUpdateFromString parses the given price string. An empty string
// results in an update without price.
func NewPriceUpdateFromString(
	symbol Symbol, price string, timestamp time.Time,
) (PriceUpdate, error) {
	ts := timestamp.UTC()
	update := PriceUpdate{Symbol: symbol, Timestamp: &ts}
	if price == "" {
		return update, nil
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return PriceUpdate{}, ErrInvalidPrice
	}
	update.Price = &p
	return update, nil
}

func (p PriceUpdate) HasPrice() bool {
	return p.Price != nil
}

// priceUpdateJSON is the wire format of a PriceUpdate. Price is a bare JSON
// number and the timestamp an RFC3339 string in UTC, both nullable.
type priceUpdateJSON struct {
	Symbol    string       `json:"symbol"`
	Price     *json.Number `json:"price"`
	Timestamp *string      `json:"timestamp"`
}

func (p PriceUpdate) MarshalJSON() ([]byte, error) {
	msg := priceUpdateJSON{Symbol: p.Symbol.String()}
	if p.Price != nil {
		n := json.Number(p.Price.String())
		msg.Price = &n
	}
	if p.Timestamp != nil {
		ts := p.Timestamp.UTC().Format(time.RFC3339Nano)
		msg.Timestamp = &ts
	}
	return json.Marshal(msg)
}

func (p *PriceUpdate) UnmarshalJSON(buf []byte) error {
	var msg priceUpdateJSON
	if err := json.Unmarshal(buf, &msg); err != nil {
		return err
	}

	update := PriceUpdate{Symbol: NormalizeSymbol(msg.Symbol)}
	if msg.Price != nil {
		price, err := decimal.NewFromString(msg.Price.String())
		if err != nil {
			return ErrInvalidPrice
		}
		update.Price = &price
	}
	if msg.Timestamp != nil {
		ts, err := time.Parse(time.RFC3339Nano, *msg.Timestamp)
		if err != nil {
			return err
		}
		update.Timestamp = &ts
	}

	*p = update
	return nil
}
