// Package swap drives a single exchange form: it validates the amount, quotes
// it, checks balance and allowance and sequences the approval ahead of the
// swap or redeem transaction.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"bltm-swap/pkg/allowance"
	"bltm-swap/pkg/balance"
	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/oracle"
	"bltm-swap/pkg/parser"
	"bltm-swap/pkg/txn"
	"bltm-swap/pkg/types"
)

var (
	// ErrBusy is returned by PerformAction while a transaction it started is unresolved.
	ErrBusy = errors.New("a transaction is still in flight")
	// ErrNoAction is returned by PerformAction when the current state offers no action.
	ErrNoAction = errors.New("no action available")
)

// Recorder receives every transaction the orchestrator submits, once on
// submission and again when it reaches a terminal state.
type Recorder interface {
	Record(tx types.PendingTransaction) error
}

// Config is the session configuration
type Config struct {
	Account        common.Address
	Pool           common.Address
	SwapFunction   string
	RedeemFunction string
	Direction      types.Direction
}

// Orchestrator is the exchange state machine for one account. All entry
// points are safe for concurrent use; remote reads happen outside the lock
// and their results are applied only if the inputs did not change meanwhile.
type Orchestrator struct {
	cfg        Config
	pair       types.Pair
	oracle     *oracle.Oracle
	balances   *balance.Tracker
	allowances *allowance.Manager
	txs        *txn.Coordinator
	writer     ledger.Writer
	recorder   Recorder
	log        zerolog.Logger

	mu         sync.Mutex
	direction  types.Direction
	text       string
	amount     *big.Int
	quote      *types.SwapQuote
	state      State
	lastErr    error
	insuffBal  bool
	epoch      uint64
	busy       bool
	busyState  State
	pending    *txn.Handle
	lastTx     *types.PendingTransaction
	switchMemo *memo
}

// memo remembers the text a direction switch replaced, so switching straight
// back restores it instead of converting twice through the royalty.
type memo struct {
	prevText  string
	produced  string
	direction types.Direction
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l.With().Str("component", "swap").Logger() }
}

// WithRecorder sets the transaction journal
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an orchestrator in the idle state
func New(
	cfg Config,
	rates *oracle.Oracle,
	balances *balance.Tracker,
	allowances *allowance.Manager,
	txs *txn.Coordinator,
	writer ledger.Writer,
	opts ...Option,
) *Orchestrator {
	if cfg.Direction == "" {
		cfg.Direction = types.BaseToCounter
	}
	o := &Orchestrator{
		cfg:        cfg,
		pair:       rates.Pair(),
		oracle:     rates,
		balances:   balances,
		allowances: allowances,
		txs:        txs,
		writer:     writer,
		log:        zerolog.Nop(),
		direction:  cfg.Direction,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the current view of the form
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	from, to := o.direction.From(o.pair), o.direction.To(o.pair)
	s := Snapshot{
		State:               o.state,
		Direction:           o.direction,
		FromToken:           from,
		ToToken:             to,
		FromAmount:          o.text,
		InsufficientBalance: o.insuffBal,
		LastError:           o.lastErr,
		ActionLabel:         actionLabel(o.state, o.direction, from),
		ActionEnabled:       actionEnabled(o.state),
	}
	if o.amount != nil {
		s.InputAmount = new(big.Int).Set(o.amount)
	}
	if o.quote != nil {
		q := *o.quote
		s.Quote = &q
		s.ComputedToAmount = new(big.Int).Set(q.OutputAmount)
	}
	if rate, ok := o.oracle.Rate(); ok {
		s.Rate = &rate
	}
	if o.busy {
		s.ActionEnabled = false
		s.ActionLabel = actionLabel(o.busyState, o.direction, from)
		if o.pending != nil {
			tx := o.pending.Transaction()
			s.Pending = &tx
		}
	}
	if o.lastTx != nil {
		tx := *o.lastTx
		s.LastTx = &tx
	}
	return s
}

// SetAmount replaces the input text and re-evaluates the form. The returned
// error is the validation or read error that the snapshot also reports.
func (o *Orchestrator) SetAmount(ctx context.Context, value string) error {
	o.mu.Lock()
	o.text = value
	o.switchMemo = nil
	o.invalidateLocked()
	o.mu.Unlock()

	return o.evaluate(ctx)
}

// SwitchDirection reverses the exchange. The computed output becomes the new
// input; switching back without editing restores the original input text.
func (o *Orchestrator) SwitchDirection(ctx context.Context) error {
	o.mu.Lock()
	prevDir, prevText := o.direction, o.text
	next := prevDir.Reverse()

	if m := o.switchMemo; m != nil && m.direction == next && m.produced == prevText {
		o.text = m.prevText
		o.switchMemo = nil
	} else {
		produced := ""
		if o.quote != nil && o.quote.OutputAmount.Sign() > 0 {
			produced = parser.FormatAmount(o.quote.OutputAmount, o.quote.To)
		}
		o.text = produced
		o.switchMemo = &memo{prevText: prevText, produced: produced, direction: prevDir}
	}
	o.direction = next
	o.invalidateLocked()
	o.mu.Unlock()

	o.log.Debug().Str("direction", string(next)).Msg("direction switched")
	return o.evaluate(ctx)
}

// Reset clears the input. A transaction in flight keeps running.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.text = ""
	o.switchMemo = nil
	o.invalidateLocked()
	o.state = StateIdle
}

// invalidateLocked starts a new input context. Must hold o.mu.
func (o *Orchestrator) invalidateLocked() {
	o.epoch++
	o.amount = nil
	o.quote = nil
	o.lastErr = nil
	o.insuffBal = false
}

// apply runs fn under the lock if the input context is still epoch
func (o *Orchestrator) apply(epoch uint64, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != epoch {
		return false
	}
	fn()
	return true
}

// evaluate walks validation, quote, balance and allowance for the current
// inputs and settles on the resulting state.
func (o *Orchestrator) evaluate(ctx context.Context) error {
	o.mu.Lock()
	epoch, dir, text := o.epoch, o.direction, o.text
	o.mu.Unlock()

	from := dir.From(o.pair)
	account := o.cfg.Account

	if strings.TrimSpace(text) == "" {
		o.apply(epoch, func() { o.state = StateIdle })
		return nil
	}

	amount, err := parser.ParseAmount(text, from)
	if err != nil {
		o.apply(epoch, func() {
			o.state = StateInsufficientInput
			o.lastErr = err
		})
		return err
	}

	if _, ok := o.oracle.GetRate(ctx); !ok {
		o.apply(epoch, func() {
			o.state = StateWaitingForRate
			o.amount = amount
		})
		return nil
	}
	quote := o.oracle.Quote(dir, amount)
	if quote == nil {
		o.apply(epoch, func() {
			o.state = StateWaitingForRate
			o.amount = amount
		})
		return nil
	}

	bal, err := o.balances.Load(ctx, from, account)
	if err != nil {
		o.apply(epoch, func() { o.fail(amount, quote, err) })
		return err
	}
	if bal.Amount.Cmp(amount) < 0 {
		shortErr := types.NewError(types.ErrInsufficientBalance, "check balance",
			fmt.Errorf("have %s %s, need %s", parser.FormatAmount(bal.Amount, from), from.Symbol, parser.FormatAmount(amount, from)))
		o.apply(epoch, func() {
			o.state = StateInsufficientBalance
			o.amount = amount
			o.quote = quote
			o.insuffBal = true
			o.lastErr = shortErr
		})
		return nil
	}

	if _, err := o.allowances.Check(ctx, from, account); err != nil {
		o.apply(epoch, func() { o.fail(amount, quote, err) })
		return err
	}
	needs := o.allowances.NeedsApproval(from, account, amount)

	o.apply(epoch, func() {
		o.amount = amount
		o.quote = quote
		o.insuffBal = false
		o.lastErr = nil
		if needs {
			o.state = StateNeedsApproval
		} else {
			o.state = StateReady
		}
	})
	return nil
}

// fail records a failure for the current inputs. Must hold o.mu.
func (o *Orchestrator) fail(amount *big.Int, quote *types.SwapQuote, err error) {
	o.state = StateFailed
	o.amount = amount
	o.quote = quote
	o.lastErr = err
}

// PerformAction executes the action the snapshot offers: an approval or the
// swap/redeem. It blocks until the submitted transaction is terminal or ctx
// ends; in the latter case the transaction is still followed to the end and
// its result applied. From the failed state it first re-reads allowance,
// rate and balance.
func (o *Orchestrator) PerformAction(ctx context.Context) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	state := o.state
	o.mu.Unlock()

	if state == StateFailed {
		if err := o.revalidate(ctx); err != nil {
			return err
		}
		o.mu.Lock()
		state = o.state
		o.mu.Unlock()
	}

	switch state {
	case StateNeedsApproval:
		return o.approve(ctx)
	case StateReady:
		return o.swap(ctx)
	}

	o.mu.Lock()
	err := o.lastErr
	o.mu.Unlock()
	if err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", state, ErrNoAction)
}

// revalidate forces fresh reads for a retry and re-evaluates
func (o *Orchestrator) revalidate(ctx context.Context) error {
	o.mu.Lock()
	dir := o.direction
	o.mu.Unlock()
	from := dir.From(o.pair)

	if _, err := o.oracle.Refresh(ctx); err != nil {
		o.log.Warn().Err(err).Msg("rate refresh before retry failed")
	}
	if _, err := o.balances.Refresh(ctx, from, o.cfg.Account); err != nil {
		return err
	}
	if _, err := o.allowances.Refresh(ctx, from, o.cfg.Account); err != nil {
		return err
	}
	return o.evaluate(ctx)
}

func (o *Orchestrator) record(tx types.PendingTransaction) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(tx); err != nil {
		o.log.Warn().Err(err).Str("hash", tx.Hash.Hex()).Msg("failed to record transaction")
	}
}
