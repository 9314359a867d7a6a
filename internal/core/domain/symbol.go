package domain

import "strings"

// Symbol identifies a tradable instrument. Symbols are always compared in
// their normalized form, see NormalizeSymbol.
type Symbol string

// NormalizeSymbol trims surrounding whitespace and upper-cases the given
// identifier so that "eurusd", " EURUSD " and "EurUsd" are the same symbol.
func NormalizeSymbol(s string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseSymbol is like NormalizeSymbol but returns ErrInvalidSymbol if the
// result is empty.
func ParseSymbol(s string) (Symbol, error) {
	sym := NormalizeSymbol(s)
	if sym.IsEmpty() {
		return "", ErrInvalidSymbol
	}
	return sym, nil
}

func (s Symbol) String() string {
	return string(s)
}

func (s Symbol) IsEmpty() bool {
	return len(s) <= 0
}

// NormalizeSymbols normalizes every element of the list, dropping empty ones
// and duplicates while preserving the original order.
func NormalizeSymbols(list []string) []Symbol {
	symbols := make([]Symbol, 0, len(list))
	seen := make(map[Symbol]struct{}, len(list))
	for _, s := range list {
		sym := NormalizeSymbol(s)
		if sym.IsEmpty() {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	return symbols
}
