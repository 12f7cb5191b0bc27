package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes one side of the pool. Loaded from configuration and never mutated.
type Token struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// Unit returns 10^Decimals, the number of smallest units in one whole token.
func (t Token) Unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil)
}

func (t Token) String() string {
	return t.Symbol
}

// Pair is the two tokens a pool exchanges. The exchange rate is quoted as
// units of Counter per unit of Base.
type Pair struct {
	Base    Token `json:"base"`
	Counter Token `json:"counter"`
}

// BySymbol finds a token of the pair by its symbol (case-insensitive).
func (p Pair) BySymbol(symbol string) (Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	switch symbol {
	case strings.ToUpper(p.Base.Symbol):
		return p.Base, nil
	case strings.ToUpper(p.Counter.Symbol):
		return p.Counter, nil
	}
	return Token{}, fmt.Errorf("token '%s' is not part of the %s/%s pair", symbol, p.Base.Symbol, p.Counter.Symbol)
}

// Direction of an exchange.
type Direction string

const (
	BaseToCounter Direction = "swap"   // e.g. USDC -> BLTM
	CounterToBase Direction = "redeem" // e.g. BLTM -> USDC
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == BaseToCounter {
		return CounterToBase
	}
	return BaseToCounter
}

// From returns the token spent in this direction.
func (d Direction) From(p Pair) Token {
	if d == BaseToCounter {
		return p.Base
	}
	return p.Counter
}

// To returns the token received in this direction.
func (d Direction) To(p Pair) Token {
	if d == BaseToCounter {
		return p.Counter
	}
	return p.Base
}

// DirectionFrom returns the direction that spends the given token.
func DirectionFrom(p Pair, from Token) Direction {
	if from.Address == p.Counter.Address {
		return CounterToBase
	}
	return BaseToCounter
}

// TxKind is the pool operation for this direction.
func (d Direction) TxKind() TxKind {
	if d == BaseToCounter {
		return KindSwap
	}
	return KindRedeem
}

// ExchangeRate is Numerator/Denominator counter-tokens per base-token, as read
// from the pool at BlockNumber.
type ExchangeRate struct {
	Numerator   *big.Int  `json:"numerator"`
	Denominator *big.Int  `json:"denominator"`
	BlockNumber uint64    `json:"block_number"`
	ReadAt      time.Time `json:"read_at"`
}

// Valid reports whether the rate can be used for conversion in both directions.
func (r ExchangeRate) Valid() bool {
	return r.Numerator != nil && r.Denominator != nil && r.Numerator.Sign() > 0 && r.Denominator.Sign() > 0
}

// Rat returns the rate as an exact rational.
func (r ExchangeRate) Rat() *big.Rat {
	return new(big.Rat).SetFrac(r.Numerator, r.Denominator)
}

// SwapQuote is a non-binding preview of an exchange. It is never persisted and
// becomes stale as soon as the input amount or the rate changes.
type SwapQuote struct {
	Direction      Direction    `json:"direction"`
	From           Token        `json:"from"`
	To             Token        `json:"to"`
	InputAmount    *big.Int     `json:"input_amount"`
	RoyaltyAmount  *big.Int     `json:"royalty_amount"`
	NetInputAmount *big.Int     `json:"net_input_amount"`
	OutputAmount   *big.Int     `json:"output_amount"`
	Rate           ExchangeRate `json:"rate"`
}

// Allowance is a cached read of token.allowance(owner, spender).
type Allowance struct {
	Owner         common.Address `json:"owner"`
	Spender       common.Address `json:"spender"`
	Token         Token          `json:"token"`
	CurrentAmount *big.Int       `json:"current_amount"`
	LastCheckedAt time.Time      `json:"last_checked_at"`
}

// Covers reports whether the allowance is sufficient for spending amount.
func (a Allowance) Covers(amount *big.Int) bool {
	if a.CurrentAmount == nil {
		return false
	}
	return a.CurrentAmount.Cmp(amount) >= 0
}

// Balance is a cached read of token.balanceOf(owner).
type Balance struct {
	Token     Token          `json:"token"`
	Owner     common.Address `json:"owner"`
	Amount    *big.Int       `json:"amount"`
	FetchedAt time.Time      `json:"fetched_at"`
}
