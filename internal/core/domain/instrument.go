package domain

// Instrument is an entry of the catalog exposed by a price source.
type Instrument struct {
	Symbol Symbol `json:"symbol"`
	Name   string `json:"name"`
	// SourceTicker is the identifier used by the upstream source for this
	// instrument, if different from the symbol (ie. Kraken's "XBT/USD").
	SourceTicker string `json:"-"`
}

// Ticker returns the upstream ticker, falling back to the symbol.
func (i Instrument) Ticker() string {
	if i.SourceTicker != "" {
		return i.SourceTicker
	}
	return i.Symbol.String()
}
