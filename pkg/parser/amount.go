package parser

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"bltm-swap/pkg/types"
)

// ParseAmount converts human-entered decimal text ("12.5") into the token's
// smallest unit. The conversion is exact: text with more fractional digits
// than the token supports, negative values, zero and non-numeric input are
// rejected with types.ErrInputValidation.
func ParseAmount(text string, token types.Token) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, types.NewError(types.ErrInputValidation, "parse amount", fmt.Errorf("amount is required"))
	}
	if strings.ContainsAny(text, "eE") {
		return nil, types.NewError(types.ErrInputValidation, "parse amount", fmt.Errorf("exponent notation is not accepted: %q", text))
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, types.NewError(types.ErrInputValidation, "parse amount", fmt.Errorf("not a number: %q", text))
	}
	if d.Sign() < 0 {
		return nil, types.NewError(types.ErrInputValidation, "parse amount", fmt.Errorf("amount must not be negative"))
	}

	scaled := d.Shift(int32(token.Decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, types.NewError(types.ErrInputValidation, "parse amount",
			fmt.Errorf("%s supports at most %d decimal places", token.Symbol, token.Decimals))
	}

	amount := scaled.BigInt()
	if amount.Sign() == 0 {
		return nil, types.NewError(types.ErrInputValidation, "parse amount", fmt.Errorf("amount must be greater than 0"))
	}

	return amount, nil
}

// FormatAmount renders smallest units as a decimal string without trailing zeros.
func FormatAmount(amount *big.Int, token types.Token) string {
	if amount == nil {
		return ""
	}
	return decimal.NewFromBigInt(amount, -int32(token.Decimals)).String()
}

// FormatFixed renders smallest units with exactly places fractional digits, rounding down.
func FormatFixed(amount *big.Int, token types.Token, places int32) string {
	if amount == nil {
		return ""
	}
	return decimal.NewFromBigInt(amount, -int32(token.Decimals)).RoundDown(places).StringFixed(places)
}
