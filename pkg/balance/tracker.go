// Package balance caches token balances for the active account.
package balance

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/metrics"
	"bltm-swap/pkg/types"
)

type key struct {
	token common.Address
	owner common.Address
}

// Tracker is a cached balanceOf wrapper. The cache only changes on an
// explicit read; it is never updated from unconfirmed state.
type Tracker struct {
	reader  ledger.Reader
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	balances map[key]types.Balance
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l.With().Str("component", "balance").Logger() }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates an empty tracker
func NewTracker(reader ledger.Reader, opts ...Option) *Tracker {
	t := &Tracker{
		reader:   reader,
		log:      zerolog.Nop(),
		now:      time.Now,
		balances: make(map[key]types.Balance),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get returns the cached balance; false means it has not been loaded yet.
func (t *Tracker) Get(token types.Token, owner common.Address) (types.Balance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.balances[key{token.Address, owner}]
	return b, ok
}

// Load returns the cached balance, reading it on first use.
func (t *Tracker) Load(ctx context.Context, token types.Token, owner common.Address) (types.Balance, error) {
	if b, ok := t.Get(token, owner); ok {
		return b, nil
	}
	return t.Refresh(ctx, token, owner)
}

// Refresh re-reads the balance. Safe to call redundantly.
func (t *Tracker) Refresh(ctx context.Context, token types.Token, owner common.Address) (types.Balance, error) {
	amount, err := t.reader.BalanceOf(ctx, token.Address, owner)
	if err != nil {
		t.metrics.Failure("balanceOf")
		t.log.Warn().Err(err).Str("token", token.Symbol).Msg("balance read failed")
		return types.Balance{}, types.Classify("read "+token.Symbol+" balance", err)
	}

	b := types.Balance{
		Token:     token,
		Owner:     owner,
		Amount:    amount,
		FetchedAt: t.now(),
	}

	t.mu.Lock()
	t.balances[key{token.Address, owner}] = b
	t.mu.Unlock()

	t.log.Debug().Str("token", token.Symbol).Str("amount", amount.String()).Msg("balance refreshed")
	return b, nil
}
