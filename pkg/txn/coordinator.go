// Package txn submits prepared transactions and follows them to a terminal state.
package txn

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/metrics"
	"bltm-swap/pkg/types"
)

const (
	DefaultPollInterval = 2 * time.Second // Receipt poll period
	DefaultPollTimeout  = 3 * time.Minute // Give up waiting for a receipt after this
)

// ErrConcurrentSubmission is returned when a transaction of the same class is
// already in flight for the same account and token.
var ErrConcurrentSubmission = errors.New("a transaction for this token is already in flight")

// Request is a transaction to submit
type Request struct {
	Kind     types.TxKind
	Token    types.Token
	Owner    common.Address
	Amount   *big.Int
	Prepared *ledger.PreparedRequest
}

// slot identifies what may only be in flight once: one approval and one
// swap/redeem per account and token.
type slot struct {
	owner    common.Address
	token    common.Address
	approval bool
}

func slotOf(kind types.TxKind, token types.Token, owner common.Address) slot {
	return slot{owner: owner, token: token.Address, approval: kind == types.KindApprove}
}

// Coordinator submits transactions and polls their receipts. Polling runs
// under the coordinator's own context, so a submitted transaction reaches a
// terminal state even if the submitter stops waiting.
type Coordinator struct {
	writer   ledger.Writer
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[slot]*Handle
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithPolling sets the receipt poll interval and the overall poll window
func WithPolling(interval, timeout time.Duration) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.interval = interval
		}
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l.With().Str("component", "txn").Logger() }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator. Close stops all polling.
func New(writer ledger.Writer, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		writer:   writer,
		interval: DefaultPollInterval,
		timeout:  DefaultPollTimeout,
		log:      zerolog.Nop(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[slot]*Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends a prepared transaction and starts polling for its receipt. A
// declined signature or a rejected submission returns a handle that is
// already failed, together with the typed error.
func (c *Coordinator) Submit(ctx context.Context, req Request) (*Handle, error) {
	if req.Prepared == nil {
		return nil, fmt.Errorf("submit %s: no prepared request", req.Kind)
	}

	s := slotOf(req.Kind, req.Token, req.Owner)
	now := c.now()
	h := newHandle(types.PendingTransaction{
		ID:          uuid.New().String(),
		Kind:        req.Kind,
		Token:       req.Token,
		Owner:       req.Owner,
		Amount:      req.Amount,
		SubmittedAt: now,
		UpdatedAt:   now,
		Status:      types.TxSubmitted,
	})

	c.mu.Lock()
	if _, busy := c.inFlight[s]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("submit %s %s: %w", req.Kind, req.Token.Symbol, ErrConcurrentSubmission)
	}
	c.inFlight[s] = h
	c.mu.Unlock()

	hash, err := c.writer.SubmitTransaction(ctx, req.Prepared)
	if err != nil {
		err = types.Classify("submit "+string(req.Kind), err)
		c.finish(h, s, types.TxFailed, err, 0)
		return h, err
	}

	h.mu.Lock()
	h.tx.Hash = hash
	h.mu.Unlock()

	c.log.Info().
		Str("kind", string(req.Kind)).
		Str("token", req.Token.Symbol).
		Str("hash", hash.Hex()).
		Msg("transaction submitted")

	c.wg.Add(1)
	go c.poll(h, s)

	return h, nil
}

// Track follows an already broadcast transaction, e.g. one found in the journal.
func (c *Coordinator) Track(hash common.Hash, kind types.TxKind, token types.Token, owner common.Address) *Handle {
	now := c.now()
	h := newHandle(types.PendingTransaction{
		ID:          uuid.New().String(),
		Hash:        hash,
		Kind:        kind,
		Token:       token,
		Owner:       owner,
		SubmittedAt: now,
		UpdatedAt:   now,
		Status:      types.TxSubmitted,
	})

	c.wg.Add(1)
	go c.poll(h, slot{})
	return h
}

// Status returns the current status of a handle
func (c *Coordinator) Status(h *Handle) types.TxStatus {
	return h.Status()
}

// InFlight reports whether a transaction of kind's class is pending for owner and token.
func (c *Coordinator) InFlight(kind types.TxKind, token types.Token, owner common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inFlight[slotOf(kind, token, owner)]
	return busy
}

// Close stops polling. Unresolved handles end as timed out.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// poll checks for a receipt immediately and then every interval until the
// transaction is mined or the poll window closes.
func (c *Coordinator) poll(h *Handle, s slot) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	h.setStatus(types.TxConfirming, c.now())

	for {
		if done := c.checkReceipt(h, s); done {
			return
		}

		select {
		case <-c.ctx.Done():
			c.finish(h, s, types.TxTimedOut, types.NewError(types.ErrNetworkTimeout, "poll receipt", errors.New("polling stopped")), 0)
			return
		case <-deadline.C:
			c.finish(h, s, types.TxTimedOut, types.NewError(types.ErrNetworkTimeout, "poll receipt",
				fmt.Errorf("%s not mined within %s", h.Transaction().Hash.Hex(), c.timeout)), 0)
			return
		case <-ticker.C:
		}
	}
}

// checkReceipt returns true once the transaction reached a terminal state
func (c *Coordinator) checkReceipt(h *Handle, s slot) bool {
	hash := h.Transaction().Hash
	receipt, err := c.writer.GetReceipt(c.ctx, hash)
	if err != nil {
		// Transient - retried on the next tick
		c.metrics.Failure("getReceipt")
		c.log.Debug().Err(err).Str("hash", hash.Hex()).Msg("receipt lookup failed")
		return false
	}
	if receipt == nil {
		return false
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		c.finish(h, s, types.TxFailed, types.NewError(types.ErrTransactionReverted, "receipt", fmt.Errorf("%s reverted in block %d", hash.Hex(), block)), block)
		return true
	}

	c.finish(h, s, types.TxConfirmed, nil, block)
	return true
}

func (c *Coordinator) finish(h *Handle, s slot, status types.TxStatus, err error, block uint64) {
	now := c.now()
	h.resolve(status, err, block, now)

	c.mu.Lock()
	if c.inFlight[s] == h {
		delete(c.inFlight, s)
	}
	c.mu.Unlock()

	tx := h.Transaction()
	c.metrics.TxTerminal(string(tx.Kind), string(status), now.Sub(tx.SubmittedAt).Seconds())

	event := c.log.Info()
	if err != nil {
		event = c.log.Warn().Err(err)
	}
	event.
		Str("kind", string(tx.Kind)).
		Str("hash", tx.Hash.Hex()).
		Str("status", string(status)).
		Uint64("block", block).
		Msg("transaction resolved")
}
