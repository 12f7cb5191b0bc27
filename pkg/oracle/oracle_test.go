package oracle

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bltm-swap/pkg/ledger/ledgertest"
	"bltm-swap/pkg/types"
)

var (
	usdc = types.Token{Symbol: "USDC", Name: "USD Coin", Address: common.HexToAddress("0x01"), Decimals: 6}
	bltm = types.Token{Symbol: "BLTM", Name: "Blank Labs Token", Address: common.HexToAddress("0x02"), Decimals: 6}
	pair = types.Pair{Base: usdc, Counter: bltm}
)

func units(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), big.NewInt(1_000_000))
}

func rateOf(n int64) types.ExchangeRate {
	return types.ExchangeRate{Numerator: big.NewInt(n), Denominator: big.NewInt(1)}
}

func TestRoyaltyExample(t *testing.T) {
	wholePair := types.Pair{
		Base:    types.Token{Symbol: "USDC", Decimals: 0},
		Counter: types.Token{Symbol: "BLTM", Decimals: 0},
	}
	q := Compute(wholePair, types.BaseToCounter, big.NewInt(100), rateOf(3), 200)
	require.NotNil(t, q)
	assert.Equal(t, "2", q.RoyaltyAmount.String())
	assert.Equal(t, "98", q.NetInputAmount.String())
	assert.Equal(t, "294", q.OutputAmount.String())
}

func TestRoyaltyConservesValue(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		input := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), 200))
		bps := uint32(rng.Intn(BasisPoints))
		royalty, net := Royalty(input, bps)
		assert.Equal(t, 0, new(big.Int).Add(royalty, net).Cmp(input), "input=%s bps=%d", input, bps)
		assert.True(t, royalty.Sign() >= 0)
		assert.True(t, net.Sign() >= 0)
	}
}

func TestCompute(t *testing.T) {
	eth18 := types.Token{Symbol: "WETH", Decimals: 18}

	tests := []struct {
		name    string
		pair    types.Pair
		dir     types.Direction
		input   *big.Int
		rate    types.ExchangeRate
		royalty string
		output  string
	}{
		{
			name:    "swap multiplies by rate",
			pair:    pair,
			dir:     types.BaseToCounter,
			input:   units(100),
			rate:    rateOf(2),
			royalty: "2000000",
			output:  "196000000",
		},
		{
			name:    "redeem divides by rate and still charges royalty",
			pair:    pair,
			dir:     types.CounterToBase,
			input:   units(196),
			rate:    rateOf(2),
			royalty: "3920000",
			output:  "96040000",
		},
		{
			name:    "scaled rate",
			pair:    pair,
			dir:     types.BaseToCounter,
			input:   units(10),
			rate:    types.ExchangeRate{Numerator: big.NewInt(15), Denominator: big.NewInt(10)},
			royalty: "200000",
			output:  "14700000",
		},
		{
			name:    "decimals differ",
			pair:    types.Pair{Base: usdc, Counter: eth18},
			dir:     types.BaseToCounter,
			input:   units(1),
			rate:    rateOf(2),
			royalty: "20000",
			output:  "1960000000000000000",
		},
		{
			name:    "redeem floors",
			pair:    pair,
			dir:     types.CounterToBase,
			input:   big.NewInt(7),
			rate:    rateOf(3),
			royalty: "0",
			output:  "2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Compute(tt.pair, tt.dir, tt.input, tt.rate, 200)
			require.NotNil(t, q)
			assert.Equal(t, tt.royalty, q.RoyaltyAmount.String())
			assert.Equal(t, tt.output, q.OutputAmount.String())
			assert.Equal(t, tt.dir.From(tt.pair), q.From)
			assert.Equal(t, tt.dir.To(tt.pair), q.To)
		})
	}
}

func TestComputeRejectsUnusableInput(t *testing.T) {
	assert.Nil(t, Compute(pair, types.BaseToCounter, big.NewInt(0), rateOf(2), 200))
	assert.Nil(t, Compute(pair, types.BaseToCounter, big.NewInt(-1), rateOf(2), 200))
	assert.Nil(t, Compute(pair, types.BaseToCounter, nil, rateOf(2), 200))
	assert.Nil(t, Compute(pair, types.BaseToCounter, units(1), types.ExchangeRate{}, 200))
	assert.Nil(t, Compute(pair, types.CounterToBase, units(1), rateOf(0), 200))
}

func TestGetRatePendingUntilRetried(t *testing.T) {
	l := ledgertest.New(common.HexToAddress("0xaa"))
	l.RateErr = ledgertest.ErrRPC

	o, err := New(l, pair, 200, nil)
	require.NoError(t, err)

	_, ok := o.GetRate(context.Background())
	assert.False(t, ok)
	assert.Nil(t, o.Quote(types.BaseToCounter, units(1)))

	l.RateErr = nil
	l.SetRate(big.NewInt(2))

	rate, ok := o.GetRate(context.Background())
	require.True(t, ok)
	assert.Equal(t, "2", rate.Numerator.String())
	assert.Equal(t, uint64(100), rate.BlockNumber)
	assert.Equal(t, 2, l.Calls("exchangeRate"))

	// cached from here on
	_, ok = o.GetRate(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 2, l.Calls("exchangeRate"))

	q := o.Quote(types.BaseToCounter, units(100))
	require.NotNil(t, q)
	assert.Equal(t, "196000000", q.OutputAmount.String())
}

func TestZeroRateIsPending(t *testing.T) {
	l := ledgertest.New(common.HexToAddress("0xaa"))
	l.SetRate(big.NewInt(0))

	o, err := New(l, pair, 200, nil)
	require.NoError(t, err)

	_, err = o.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownRemote)

	_, ok := o.Rate()
	assert.False(t, ok)
}

func TestRefreshFailureDropsCachedRate(t *testing.T) {
	l := ledgertest.New(common.HexToAddress("0xaa"))
	l.SetRate(big.NewInt(2))

	o, err := New(l, pair, 200, nil)
	require.NoError(t, err)
	_, ok := o.GetRate(context.Background())
	require.True(t, ok)

	l.RateErr = ledgertest.ErrRPC
	_, err = o.Refresh(context.Background())
	require.Error(t, err)

	_, ok = o.Rate()
	assert.False(t, ok)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, pair, BasisPoints, nil)
	assert.Error(t, err)
	_, err = New(nil, pair, 200, big.NewInt(0))
	assert.Error(t, err)
}
