package txn

import (
	"context"
	"sync"
	"time"

	"bltm-swap/pkg/types"
)

// Handle is the awaitable lifecycle of one submitted transaction.
type Handle struct {
	mu   sync.RWMutex
	tx   types.PendingTransaction
	err  error
	done chan struct{}
}

func newHandle(tx types.PendingTransaction) *Handle {
	return &Handle{tx: tx, done: make(chan struct{})}
}

// Transaction returns a copy of the tracked transaction
func (h *Handle) Transaction() types.PendingTransaction {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tx
}

// Status returns the current status
func (h *Handle) Status() types.TxStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tx.Status
}

// Err returns the terminal error; nil while pending or once confirmed
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Done is closed when the transaction reaches a terminal state
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the transaction is terminal or ctx ends. The returned
// error is the transaction's failure (nil when confirmed) or ctx.Err().
func (h *Handle) Wait(ctx context.Context) (types.PendingTransaction, error) {
	select {
	case <-h.done:
		return h.Transaction(), h.Err()
	case <-ctx.Done():
		return h.Transaction(), ctx.Err()
	}
}

func (h *Handle) setStatus(status types.TxStatus, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx.Status.Terminal() {
		return
	}
	h.tx.Status = status
	h.tx.UpdatedAt = at
}

func (h *Handle) resolve(status types.TxStatus, err error, block uint64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx.Status.Terminal() {
		return
	}
	h.tx.Status = status
	h.tx.UpdatedAt = at
	h.tx.BlockNumber = block
	h.err = err
	if err != nil {
		h.tx.Error = err.Error()
	}
	close(h.done)
}
