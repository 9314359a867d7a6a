package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected domain.Symbol
	}{
		{"lower", "eurusd", "EURUSD"},
		{"mixed", "EurUsd", "EURUSD"},
		{"spaces", "  gbpusd\t", "GBPUSD"},
		{"with_slash", "xbt/usd", "XBT/USD"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, domain.NormalizeSymbol(tt.input))
		})
	}
}

func TestParseSymbol(t *testing.T) {
	sym, err := domain.ParseSymbol(" usdjpy ")
	require.NoError(t, err)
	require.Equal(t, domain.Symbol("USDJPY"), sym)

	_, err = domain.ParseSymbol("")
	require.ErrorIs(t, err, domain.ErrInvalidSymbol)
}

func TestNormalizeSymbols(t *testing.T) {
	symbols := domain.NormalizeSymbols(
		[]string{"eurusd", "", "EURUSD", " gbpusd", "  "},
	)
	require.Equal(t, []domain.Symbol{"EURUSD", "GBPUSD"}, symbols)
}
