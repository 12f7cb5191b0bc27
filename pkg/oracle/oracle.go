// Package oracle reads the pool exchange rate and derives quotes net of the
// royalty fee.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/metrics"
	"bltm-swap/pkg/types"
)

// BasisPoints is the royalty denominator (10000 bps = 100%).
const BasisPoints = 10000

// Oracle caches the pool rate. A failed read leaves it pending; it never
// reports a zero rate.
type Oracle struct {
	reader     ledger.Reader
	pair       types.Pair
	royaltyBps int64
	scale      *big.Int

	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	rate *types.ExchangeRate
}

// Option configures an Oracle
type Option func(*Oracle)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *Oracle) { o.log = l.With().Str("component", "oracle").Logger() }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

// New creates an oracle. scale is the denominator of the pool's raw rate; nil means 1.
func New(reader ledger.Reader, pair types.Pair, royaltyBps uint32, scale *big.Int, opts ...Option) (*Oracle, error) {
	if royaltyBps >= BasisPoints {
		return nil, fmt.Errorf("royalty of %d bps leaves nothing to exchange", royaltyBps)
	}
	if scale == nil {
		scale = big.NewInt(1)
	}
	if scale.Sign() <= 0 {
		return nil, fmt.Errorf("rate scale must be positive")
	}

	o := &Oracle{
		reader:     reader,
		pair:       pair,
		royaltyBps: int64(royaltyBps),
		scale:      new(big.Int).Set(scale),
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Pair returns the pair this oracle quotes
func (o *Oracle) Pair() types.Pair {
	return o.pair
}

// RoyaltyBps returns the royalty rate in basis points
func (o *Oracle) RoyaltyBps() uint32 {
	return uint32(o.royaltyBps)
}

// Rate returns the cached rate without touching the ledger
func (o *Oracle) Rate() (types.ExchangeRate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rate == nil {
		return types.ExchangeRate{}, false
	}
	return *o.rate, true
}

// GetRate returns the cached rate, reading it on a miss. false means the
// rate is pending; the next call retries.
func (o *Oracle) GetRate(ctx context.Context) (types.ExchangeRate, bool) {
	if rate, ok := o.Rate(); ok {
		return rate, true
	}
	rate, err := o.Refresh(ctx)
	if err != nil {
		return types.ExchangeRate{}, false
	}
	return rate, true
}

// Refresh re-reads the rate. On failure the cached rate is dropped.
func (o *Oracle) Refresh(ctx context.Context) (types.ExchangeRate, error) {
	raw, block, err := o.reader.ExchangeRate(ctx)
	if err == nil && (raw == nil || raw.Sign() <= 0) {
		err = fmt.Errorf("pool reported a non-positive rate")
	}
	if err != nil {
		o.mu.Lock()
		o.rate = nil
		o.mu.Unlock()
		o.metrics.Failure("exchangeRate")
		o.log.Warn().Err(err).Msg("exchange rate unavailable")
		return types.ExchangeRate{}, types.Classify("read exchange rate", err)
	}

	rate := types.ExchangeRate{
		Numerator:   raw,
		Denominator: new(big.Int).Set(o.scale),
		BlockNumber: block,
		ReadAt:      o.now(),
	}

	o.mu.Lock()
	o.rate = &rate
	o.mu.Unlock()

	o.log.Debug().Str("rate", raw.String()).Uint64("block", block).Msg("exchange rate read")
	return rate, nil
}

// Quote computes a quote from the cached rate. It returns nil when the rate is
// pending or input is not a positive amount.
func (o *Oracle) Quote(dir types.Direction, input *big.Int) *types.SwapQuote {
	rate, ok := o.Rate()
	if !ok {
		return nil
	}
	q := Compute(o.pair, dir, input, rate, uint32(o.royaltyBps))
	if q != nil {
		o.metrics.Quote(string(dir))
	}
	return q
}

// Royalty splits input into the royalty and the net amount that is converted.
func Royalty(input *big.Int, royaltyBps uint32) (royalty, net *big.Int) {
	royalty = new(big.Int).Mul(input, big.NewInt(int64(royaltyBps)))
	royalty.Quo(royalty, big.NewInt(BasisPoints))
	net = new(big.Int).Sub(input, royalty)
	return royalty, net
}

// Compute derives a quote. The royalty is taken from the input before
// conversion in both directions; the base-to-counter direction multiplies by
// the rate and the reverse divides by it. Results are floored.
func Compute(pair types.Pair, dir types.Direction, input *big.Int, rate types.ExchangeRate, royaltyBps uint32) *types.SwapQuote {
	if input == nil || input.Sign() <= 0 || !rate.Valid() {
		return nil
	}

	from, to := dir.From(pair), dir.To(pair)
	royalty, net := Royalty(input, royaltyBps)

	num := new(big.Int).Mul(net, to.Unit())
	den := new(big.Int).Set(from.Unit())
	if dir == types.BaseToCounter {
		num.Mul(num, rate.Numerator)
		den.Mul(den, rate.Denominator)
	} else {
		num.Mul(num, rate.Denominator)
		den.Mul(den, rate.Numerator)
	}

	return &types.SwapQuote{
		Direction:      dir,
		From:           from,
		To:             to,
		InputAmount:    new(big.Int).Set(input),
		RoyaltyAmount:  royalty,
		NetInputAmount: net,
		OutputAmount:   num.Quo(num, den),
		Rate:           rate,
	}
}
