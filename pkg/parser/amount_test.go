package parser

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bltm-swap/pkg/types"
)

var usdc = types.Token{Symbol: "USDC", Decimals: 6}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"whole", "100", "100000000"},
		{"fraction", "12.5", "12500000"},
		{"padded", "  1  ", "1000000"},
		{"smallest unit", "0.000001", "1"},
		{"trailing zeros", "1.500000", "1500000"},
		{"large", "123456789012345678901234567890", "123456789012345678901234567890000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input, usdc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, input := range []string{"", "   ", "0", "0.000", "-1", "abc", "1,5", "1e3", "0.0000001", "12.3.4"} {
		t.Run(input, func(t *testing.T) {
			got, err := ParseAmount(input, usdc)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, types.ErrInputValidation)
		})
	}
}

func TestParseAmountZeroDecimals(t *testing.T) {
	whole := types.Token{Symbol: "WHL", Decimals: 0}

	got, err := ParseAmount("42", whole)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Int64())

	_, err = ParseAmount("4.2", whole)
	assert.ErrorIs(t, err, types.ErrInputValidation)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1_500_000), usdc))
	assert.Equal(t, "0.000001", FormatAmount(big.NewInt(1), usdc))
	assert.Equal(t, "0", FormatAmount(big.NewInt(0), usdc))
	assert.Equal(t, "", FormatAmount(nil, usdc))
}

func TestFormatFixedRoundsDown(t *testing.T) {
	assert.Equal(t, "1.23", FormatFixed(big.NewInt(1_239_999), usdc, 2))
	assert.Equal(t, "1.000000", FormatFixed(big.NewInt(1_000_000), usdc, 6))
}

func TestFormatRoundTrip(t *testing.T) {
	amount, err := ParseAmount("58.8", usdc)
	require.NoError(t, err)
	assert.Equal(t, "58.8", FormatAmount(amount, usdc))
}
