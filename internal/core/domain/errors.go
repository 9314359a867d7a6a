package domain

import "errors"

var (
	// ErrInvalidSymbol is returned when a symbol is empty after normalization.
	ErrInvalidSymbol = errors.New("symbol must not be empty")
	// ErrInvalidPrice is returned when a price string cannot be parsed as a
	// decimal number.
	ErrInvalidPrice = errors.New("price is not a valid decimal number")
)
