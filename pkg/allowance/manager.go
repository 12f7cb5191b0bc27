// Package allowance decides whether the pool may spend enough of a token and
// submits approvals when it may not.
package allowance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/metrics"
	"bltm-swap/pkg/txn"
	"bltm-swap/pkg/types"
)

// State is the approval state of one token for one owner
type State string

const (
	StateUnknown      State = "unknown"
	StateChecking     State = "checking"
	StateSufficient   State = "sufficient"
	StateInsufficient State = "insufficient"
	StateApproving    State = "approving"
	StateApproved     State = "approved"
	StateFailed       State = "failed"
)

type key struct {
	token common.Address
	owner common.Address
}

type entry struct {
	allowance *types.Allowance
	state     State
	// requested is the amount the last check or approval was evaluated against
	requested *big.Int
}

// Submitter is the part of the transaction coordinator the manager needs
type Submitter interface {
	Submit(ctx context.Context, req txn.Request) (*txn.Handle, error)
}

// Manager owns the allowance cache. The cache changes only on a read: after
// an explicit refresh or after a confirmed approval, never optimistically.
type Manager struct {
	client  ledger.Client
	txs     Submitter
	spender common.Address
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[key]*entry
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "allowance").Logger() }
}

// WithMetrics sets the metrics sink
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a manager approving spender (the pool)
func NewManager(client ledger.Client, txs Submitter, spender common.Address, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		txs:     txs,
		spender: spender,
		log:     zerolog.Nop(),
		now:     time.Now,
		entries: make(map[key]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Spender returns the address approvals are granted to
func (m *Manager) Spender() common.Address {
	return m.spender
}

func (m *Manager) entry(k key) *entry {
	e, ok := m.entries[k]
	if !ok {
		e = &entry{state: StateUnknown}
		m.entries[k] = e
	}
	return e
}

// State returns the approval state for token and owner
func (m *Manager) State(token types.Token, owner common.Address) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry(key{token.Address, owner}).state
}

// Cached returns the cached allowance, if any
func (m *Manager) Cached(token types.Token, owner common.Address) (types.Allowance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key{token.Address, owner})
	if e.allowance == nil {
		return types.Allowance{}, false
	}
	return *e.allowance, true
}

// Check returns the cached allowance, reading it on a miss
func (m *Manager) Check(ctx context.Context, token types.Token, owner common.Address) (types.Allowance, error) {
	if a, ok := m.Cached(token, owner); ok {
		return a, nil
	}
	return m.Refresh(ctx, token, owner)
}

// Refresh re-reads the allowance from the ledger
func (m *Manager) Refresh(ctx context.Context, token types.Token, owner common.Address) (types.Allowance, error) {
	k := key{token.Address, owner}

	m.mu.Lock()
	e := m.entry(k)
	if e.state != StateApproving {
		e.state = StateChecking
	}
	m.mu.Unlock()

	amount, err := m.client.Allowance(ctx, token.Address, owner, m.spender)
	if err != nil {
		m.metrics.Failure("allowance")
		m.log.Warn().Err(err).Str("token", token.Symbol).Msg("allowance read failed")

		m.mu.Lock()
		if e.state == StateChecking {
			e.state = StateUnknown
			if e.allowance != nil {
				e.state = evaluate(e.allowance, e.requested)
			}
		}
		m.mu.Unlock()
		return types.Allowance{}, types.Classify("read "+token.Symbol+" allowance", err)
	}

	a := types.Allowance{
		Owner:         owner,
		Spender:       m.spender,
		Token:         token,
		CurrentAmount: amount,
		LastCheckedAt: m.now(),
	}

	m.mu.Lock()
	e.allowance = &a
	if e.state != StateApproving {
		e.state = evaluate(e.allowance, e.requested)
	}
	m.mu.Unlock()

	m.log.Debug().Str("token", token.Symbol).Str("allowance", amount.String()).Msg("allowance read")
	return a, nil
}

// Invalidate drops the cached allowance so the next Check reads it again
func (m *Manager) Invalidate(token types.Token, owner common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key{token.Address, owner})
	e.allowance = nil
	if e.state != StateApproving {
		e.state = StateUnknown
	}
}

// NeedsApproval reports amount > current allowance. An allowance that has not
// been read yet always needs approval. Each call re-evaluates the cached value
// against the new amount.
func (m *Manager) NeedsApproval(token types.Token, owner common.Address, amount *big.Int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key{token.Address, owner})
	e.requested = new(big.Int).Set(amount)
	if e.allowance == nil {
		return true
	}
	if e.state != StateApproving {
		e.state = evaluate(e.allowance, amount)
	}
	return !e.allowance.Covers(amount)
}

func evaluate(a *types.Allowance, requested *big.Int) State {
	if requested == nil {
		return StateSufficient
	}
	if a.Covers(requested) {
		return StateSufficient
	}
	return StateInsufficient
}

// Approve simulates approve(spender, amount) and, if it would succeed,
// submits it. A simulated revert fails fast with types.ErrSimulation and
// nothing is submitted.
func (m *Manager) Approve(ctx context.Context, token types.Token, owner common.Address, amount *big.Int) (*txn.Handle, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, types.NewError(types.ErrInputValidation, "approve", fmt.Errorf("approval amount must be positive"))
	}

	k := key{token.Address, owner}
	m.mu.Lock()
	e := m.entry(k)
	if e.state == StateApproving {
		m.mu.Unlock()
		return nil, fmt.Errorf("approve %s: %w", token.Symbol, txn.ErrConcurrentSubmission)
	}
	e.state = StateApproving
	e.requested = new(big.Int).Set(amount)
	m.mu.Unlock()

	prepared, err := m.client.Simulate(ctx, token.Address, "approve", m.spender, amount)
	if err != nil {
		m.setState(k, StateFailed)
		m.log.Warn().Err(err).Str("token", token.Symbol).Msg("approval simulation failed")
		return nil, types.Classify("approve "+token.Symbol, err)
	}

	h, err := m.txs.Submit(ctx, txn.Request{
		Kind:     types.KindApprove,
		Token:    token,
		Owner:    owner,
		Amount:   amount,
		Prepared: prepared,
	})
	if err != nil {
		m.setState(k, StateFailed)
		return h, err
	}

	m.log.Info().
		Str("token", token.Symbol).
		Str("amount", amount.String()).
		Str("hash", h.Transaction().Hash.Hex()).
		Msg("approval submitted")
	return h, nil
}

// Await waits for an approval to resolve. On confirmation the cached
// allowance is invalidated and read again, since it may have changed
// between simulation and mining.
func (m *Manager) Await(ctx context.Context, h *txn.Handle) (types.Allowance, error) {
	tx, err := h.Wait(ctx)
	if err != nil {
		if tx.Status.Terminal() {
			m.setState(key{tx.Token.Address, tx.Owner}, StateFailed)
		}
		return types.Allowance{}, err
	}

	k := key{tx.Token.Address, tx.Owner}
	m.mu.Lock()
	e := m.entry(k)
	e.allowance = nil
	e.state = StateApproved
	m.mu.Unlock()

	a, err := m.Refresh(ctx, tx.Token, tx.Owner)
	if err != nil {
		return types.Allowance{}, err
	}

	m.mu.Lock()
	if e.requested != nil && !a.Covers(e.requested) {
		// Changed outside this session between simulation and confirmation
		e.state = StateInsufficient
	} else {
		e.state = StateApproved
	}
	m.mu.Unlock()

	return a, nil
}

func (m *Manager) setState(k key, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(k).state = s
}
