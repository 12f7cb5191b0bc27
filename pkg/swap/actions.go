package swap

import (
	"context"
	"fmt"
	"math/big"

	"bltm-swap/pkg/txn"
	"bltm-swap/pkg/types"
)

// begin marks the session busy with the action for the current inputs. The
// state must still be expect, otherwise the inputs changed since the caller
// looked.
func (o *Orchestrator) begin(expect, next State) (uint64, types.Direction, *big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return 0, "", nil, ErrBusy
	}
	if o.state != expect || o.amount == nil {
		return 0, "", nil, fmt.Errorf("%s: %w", o.state, ErrNoAction)
	}
	o.busy = true
	o.busyState = next
	o.state = next
	o.lastErr = nil
	return o.epoch, o.direction, new(big.Int).Set(o.amount), nil
}

// abort ends an action that never produced a transaction
func (o *Orchestrator) abort(epoch uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	o.pending = nil
	if o.epoch == epoch {
		o.state = StateFailed
		o.lastErr = err
	}
}

func (o *Orchestrator) setPending(h *txn.Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = h
}

// settle releases the session after a transaction resolved. The failure is
// applied only if the inputs are unchanged; it reports whether they changed.
func (o *Orchestrator) settle(epoch uint64, h *txn.Handle, err error) bool {
	tx := h.Transaction()
	o.record(tx)

	o.mu.Lock()
	o.busy = false
	o.pending = nil
	o.lastTx = &tx
	stale := o.epoch != epoch
	if !stale && err != nil {
		o.state = StateFailed
		o.lastErr = err
	}
	o.mu.Unlock()

	if stale {
		o.log.Debug().Str("hash", tx.Hash.Hex()).Str("status", string(tx.Status)).Msg("inputs changed while in flight, result not applied")
	}
	return stale
}

// follow runs fn to completion even if ctx ends first. fn gets a context
// that keeps ctx's values but is never canceled.
func (o *Orchestrator) follow(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// approve submits an approval for the current amount and waits for it. On
// confirmation the spent token's balance and the allowance are read again
// and the form re-evaluated.
func (o *Orchestrator) approve(ctx context.Context) error {
	epoch, dir, amount, err := o.begin(StateNeedsApproval, StateApproving)
	if err != nil {
		return err
	}
	from := dir.From(o.pair)

	h, err := o.allowances.Approve(ctx, from, o.cfg.Account, amount)
	if err != nil {
		if h != nil {
			o.settle(epoch, h, err)
		} else {
			o.abort(epoch, err)
		}
		return err
	}
	o.record(h.Transaction())
	o.setPending(h)

	return o.follow(ctx, func(ctx context.Context) error {
		_, err := o.allowances.Await(ctx, h)
		if h.Status() == types.TxConfirmed {
			// one balance read per confirmed transaction, stale or not
			if _, rerr := o.balances.Refresh(ctx, from, o.cfg.Account); rerr != nil {
				o.log.Warn().Err(rerr).Str("token", from.Symbol).Msg("balance refresh after approval failed")
			}
		}
		o.settle(epoch, h, err)
		if err != nil {
			return err
		}
		return o.evaluate(ctx)
	})
}

// swap simulates the swap or redeem for the current amount, submits it and
// waits for it. A prepared request is never reused: each call simulates again.
func (o *Orchestrator) swap(ctx context.Context) error {
	epoch, dir, amount, err := o.begin(StateReady, StateSwapping)
	if err != nil {
		return err
	}
	from, to := dir.From(o.pair), dir.To(o.pair)
	account := o.cfg.Account

	if o.txs.InFlight(types.KindApprove, from, account) {
		o.abort(epoch, ErrBusy)
		return ErrBusy
	}

	function := o.cfg.SwapFunction
	if dir == types.CounterToBase {
		function = o.cfg.RedeemFunction
	}

	prepared, err := o.writer.Simulate(ctx, o.cfg.Pool, function, amount)
	if err != nil {
		err = types.Classify(function, err)
		o.abort(epoch, err)
		return err
	}

	h, err := o.txs.Submit(ctx, txn.Request{
		Kind:     dir.TxKind(),
		Token:    from,
		Owner:    account,
		Amount:   amount,
		Prepared: prepared,
	})
	if err != nil {
		if h != nil {
			o.settle(epoch, h, err)
		} else {
			o.abort(epoch, err)
		}
		return err
	}
	o.record(h.Transaction())
	o.setPending(h)

	return o.follow(ctx, func(ctx context.Context) error {
		_, err := h.Wait(ctx)
		if err != nil {
			o.settle(epoch, h, err)
			return err
		}

		o.apply(epoch, func() { o.state = StateSuccess })

		// The pool spent part of the allowance
		o.allowances.Invalidate(from, account)
		for _, token := range []types.Token{from, to} {
			if _, err := o.balances.Refresh(ctx, token, account); err != nil {
				o.log.Warn().Err(err).Str("token", token.Symbol).Msg("balance refresh after confirmation failed")
			}
		}

		if stale := o.settle(epoch, h, nil); !stale {
			o.mu.Lock()
			o.text = ""
			o.switchMemo = nil
			o.invalidateLocked()
			o.mu.Unlock()
		}

		o.log.Info().
			Str("direction", string(dir)).
			Str("amount", amount.String()).
			Str("hash", h.Transaction().Hash.Hex()).
			Msg("exchange confirmed")

		return o.evaluate(ctx)
	})
}
