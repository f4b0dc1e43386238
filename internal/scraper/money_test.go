package scraper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimalBR(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"45,90", "45.90"},
		{"R$ 45,90", "45.90"},
		{"1.234,56", "1234.56"},
		{"0,325", "0.325"},
		{"12", "12"},
		{"1.000.000,00", "1000000.00"},
		{" 3,17 ", "3.17"},
		{"1234,56", "1234.56"},
		{"1000", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecimalBR(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestParseDecimalBRRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "R$"} {
		_, err := ParseDecimalBR(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestFindDecimalBR(t *testing.T) {
	d, ok := findDecimalBR("Vl. Unit.:   4,59")
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("4.59")))

	d, ok = findDecimalBR("Valor a pagar R$: 1.234,56")
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("1234.56")))

	_, ok = findDecimalBR("sem numeros aqui")
	assert.False(t, ok)
}

func TestFindDecimalBRWithoutThousandsGrouping(t *testing.T) {
	// numbers of four or more integer digits rendered without separator
	// grouping must not be truncated to their first three digits
	tests := []struct {
		in   string
		want string
	}{
		{"1234,56", "1234.56"},
		{"Qtde.:1000", "1000"},
		{"5000", "5000"},
		{"Valor a pagar R$: 12345,67", "12345.67"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := findDecimalBR(tt.in)
			require.True(t, ok)
			assert.True(t, d.Equal(decimal.RequireFromString(tt.want)), "got %s", d)
		})
	}
}

func TestMonetarySumsAreExact(t *testing.T) {
	// classic float trap: 0.1 + 0.2; decimals must stay exact
	a, err := ParseDecimalBR("0,10")
	require.NoError(t, err)
	b, err := ParseDecimalBR("0,20")
	require.NoError(t, err)
	sum := a.Add(b)
	assert.True(t, sum.Equal(decimal.RequireFromString("0.30")), "sum %s", sum)
}
