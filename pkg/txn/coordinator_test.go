package txn

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/ledger/ledgertest"
	"bltm-swap/pkg/types"
)

var (
	owner = common.HexToAddress("0xaa")
	pool  = common.HexToAddress("0xbb")
	usdc  = types.Token{Symbol: "USDC", Address: common.HexToAddress("0x01"), Decimals: 6}
)

func newCoordinator(t *testing.T, l *ledgertest.Ledger, timeout time.Duration) *Coordinator {
	c := New(l, WithPolling(time.Millisecond, timeout))
	t.Cleanup(c.Close)
	return c
}

func swapRequest(t *testing.T, l *ledgertest.Ledger, function string) Request {
	prepared, err := l.Simulate(context.Background(), pool, function, big.NewInt(10))
	require.NoError(t, err)
	return Request{Kind: types.KindSwap, Token: usdc, Owner: owner, Amount: big.NewInt(10), Prepared: prepared}
}

func waitFor(t *testing.T, h *Handle) (types.PendingTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tx, err := h.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return tx, err
}

func TestSubmitConfirms(t *testing.T) {
	l := ledgertest.New(owner)
	l.NeverConfirm["swapUsdcForBltm"] = true
	l.ReceiptDelay = 3
	c := newCoordinator(t, l, time.Second)

	h, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, h.Transaction().Hash)
	assert.True(t, c.InFlight(types.KindSwap, usdc, owner))
	assert.False(t, h.Status().Terminal())

	l.Release("swapUsdcForBltm")

	tx, err := waitFor(t, h)
	require.NoError(t, err)
	assert.Equal(t, types.TxConfirmed, tx.Status)
	assert.Equal(t, types.TxConfirmed, c.Status(h))
	assert.NotZero(t, tx.BlockNumber)
	assert.NotEmpty(t, tx.ID)
	assert.False(t, c.InFlight(types.KindSwap, usdc, owner))
	assert.GreaterOrEqual(t, l.Calls("receipt"), 4)
}

func TestRevertedReceiptFails(t *testing.T) {
	l := ledgertest.New(owner)
	l.Revert["swapUsdcForBltm"] = true
	c := newCoordinator(t, l, time.Second)

	h, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	require.NoError(t, err)

	tx, err := waitFor(t, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransactionReverted)
	assert.Equal(t, types.TxFailed, tx.Status)
	assert.NotEmpty(t, tx.Error)
}

func TestNoReceiptTimesOut(t *testing.T) {
	l := ledgertest.New(owner)
	l.NeverConfirm["swapUsdcForBltm"] = true
	c := newCoordinator(t, l, 30*time.Millisecond)

	h, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	require.NoError(t, err)

	tx, err := waitFor(t, h)
	assert.ErrorIs(t, err, types.ErrNetworkTimeout)
	assert.Equal(t, types.TxTimedOut, tx.Status)
	assert.False(t, c.InFlight(types.KindSwap, usdc, owner), "a timed out slot may be retried")
}

func TestTransientReceiptErrorsAreRetried(t *testing.T) {
	l := ledgertest.New(owner)
	l.ReceiptErrs = 3
	c := newCoordinator(t, l, time.Second)

	h, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	require.NoError(t, err)

	tx, err := waitFor(t, h)
	require.NoError(t, err)
	assert.Equal(t, types.TxConfirmed, tx.Status)
}

func TestDeclinedSignatureFailsWithoutPolling(t *testing.T) {
	l := ledgertest.New(owner)
	l.Decline = true
	c := newCoordinator(t, l, time.Second)

	h, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUserDeclined)
	require.NotNil(t, h)
	assert.Equal(t, types.TxFailed, h.Status())
	assert.ErrorIs(t, h.Err(), types.ErrUserDeclined)
	assert.Equal(t, 0, l.Calls("receipt"))
	assert.False(t, c.InFlight(types.KindSwap, usdc, owner))
}

func TestSubmitErrorIsUnknownRemote(t *testing.T) {
	l := ledgertest.New(owner)
	l.SubmitErr = ledgertest.ErrRPC
	c := newCoordinator(t, l, time.Second)

	_, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	assert.ErrorIs(t, err, types.ErrUnknownRemote)
	assert.ErrorIs(t, err, ledgertest.ErrRPC)
}

func TestConcurrentSubmissionRefused(t *testing.T) {
	l := ledgertest.New(owner)
	l.NeverConfirm["swapUsdcForBltm"] = true
	c := newCoordinator(t, l, time.Second)

	first, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	assert.ErrorIs(t, err, ErrConcurrentSubmission)
	assert.Equal(t, 1, l.Calls("submit"))

	// an approval for the same token is a different class
	approve, err := l.Simulate(context.Background(), usdc.Address, "approve", pool, big.NewInt(10))
	require.NoError(t, err)
	ah, err := c.Submit(context.Background(), Request{Kind: types.KindApprove, Token: usdc, Owner: owner, Prepared: approve})
	require.NoError(t, err)
	_, err = waitFor(t, ah)
	require.NoError(t, err)

	l.Release("swapUsdcForBltm")
	_, err = waitFor(t, first)
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	assert.NoError(t, err, "slot is free after the first resolved")
}

func TestSubmittedTransactionOutlivesCaller(t *testing.T) {
	l := ledgertest.New(owner)
	l.NeverConfirm["swapUsdcForBltm"] = true
	c := newCoordinator(t, l, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	h, err := c.Submit(ctx, swapRequest(t, l, "swapUsdcForBltm"))
	require.NoError(t, err)
	cancel()

	_, err = h.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	l.Release("swapUsdcForBltm")

	tx, err := waitFor(t, h)
	require.NoError(t, err)
	assert.Equal(t, types.TxConfirmed, tx.Status)
}

func TestTrackExistingHash(t *testing.T) {
	l := ledgertest.New(owner)
	c := newCoordinator(t, l, time.Second)

	hash, err := l.SubmitTransaction(context.Background(), &ledger.PreparedRequest{From: owner, To: pool, Function: "redeemBltmForUsdc"})
	require.NoError(t, err)

	h := c.Track(hash, types.KindRedeem, usdc, owner)
	tx, err := waitFor(t, h)
	require.NoError(t, err)
	assert.Equal(t, hash, tx.Hash)
	assert.Equal(t, types.TxConfirmed, tx.Status)
}

func TestCloseEndsPolling(t *testing.T) {
	l := ledgertest.New(owner)
	l.NeverConfirm["swapUsdcForBltm"] = true
	c := New(l, WithPolling(time.Millisecond, time.Hour))

	h, err := c.Submit(context.Background(), swapRequest(t, l, "swapUsdcForBltm"))
	require.NoError(t, err)

	c.Close()
	assert.Equal(t, types.TxTimedOut, h.Status())
	assert.ErrorIs(t, h.Err(), types.ErrNetworkTimeout)
}
