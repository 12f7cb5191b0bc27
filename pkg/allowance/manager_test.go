package allowance

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
	"bltm-swap/pkg/txn"
	"bltm-swap/pkg/types"
)

var (
	owner = common.HexToAddress("0xaa")
	pool  = common.HexToAddress("0xbb")
	usdc  = types.Token{Symbol: "USDC", Address: common.HexToAddress("0x01"), Decimals: 6}
)

func setup(t *testing.T) (*ledgertest.Ledger, *Manager) {
	l := ledgertest.New(owner)
	c := txn.New(l, txn.WithPolling(time.Millisecond, time.Second))
	t.Cleanup(c.Close)
	return l, NewManager(l, c, pool)
}

func awaitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNeedsApprovalUntilRead(t *testing.T) {
	l, m := setup(t)
	l.SetAllowance(usdc.Address, owner, pool, big.NewInt(100))

	assert.Equal(t, StateUnknown, m.State(usdc, owner))
	assert.True(t, m.NeedsApproval(usdc, owner, big.NewInt(1)), "unknown allowance needs approval")

	a, err := m.Check(context.Background(), usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, "100", a.CurrentAmount.String())
	assert.Equal(t, pool, a.Spender)

	assert.False(t, m.NeedsApproval(usdc, owner, big.NewInt(100)))
	assert.Equal(t, StateSufficient, m.State(usdc, owner))
	assert.True(t, m.NeedsApproval(usdc, owner, big.NewInt(101)))
	assert.Equal(t, StateInsufficient, m.State(usdc, owner))
}

func TestCheckServesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	l, m := setup(t)
	l.SetAllowance(usdc.Address, owner, pool, big.NewInt(5))

	_, err := m.Check(ctx, usdc, owner)
	require.NoError(t, err)
	_, err = m.Check(ctx, usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Calls("allowance"))

	l.SetAllowance(usdc.Address, owner, pool, big.NewInt(50))
	m.Invalidate(usdc, owner)
	assert.Equal(t, StateUnknown, m.State(usdc, owner))

	a, err := m.Check(ctx, usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, "50", a.CurrentAmount.String())
	assert.Equal(t, 2, l.Calls("allowance"))
}

func TestRefreshFailureIsUnknownRemote(t *testing.T) {
	l, m := setup(t)
	l.AllowanceErr = ledgertest.ErrRPC

	_, err := m.Refresh(context.Background(), usdc, owner)
	assert.ErrorIs(t, err, types.ErrUnknownRemote)
	assert.Equal(t, StateUnknown, m.State(usdc, owner))
	assert.True(t, m.NeedsApproval(usdc, owner, big.NewInt(1)))
}

func TestApproveThenAwaitRereads(t *testing.T) {
	l, m := setup(t)
	amount := big.NewInt(30)

	_, err := m.Refresh(context.Background(), usdc, owner)
	require.NoError(t, err)
	require.True(t, m.NeedsApproval(usdc, owner, amount))

	h, err := m.Approve(context.Background(), usdc, owner, amount)
	require.NoError(t, err)
	assert.Equal(t, types.KindApprove, h.Transaction().Kind)
	assert.Equal(t, []string{"approve"}, l.Submitted())

	a, err := m.Await(awaitCtx(t), h)
	require.NoError(t, err)
	assert.Equal(t, "30", a.CurrentAmount.String())
	assert.Equal(t, StateApproved, m.State(usdc, owner))
	assert.False(t, m.NeedsApproval(usdc, owner, amount))
	assert.Equal(t, 2, l.Calls("allowance"), "allowance is read again after confirmation")
}

func TestApproveSimulationFailureSubmitsNothing(t *testing.T) {
	l, m := setup(t)
	l.SimulateErr["approve"] = ledgertest.Reverted("approve to the zero address")

	h, err := m.Approve(context.Background(), usdc, owner, big.NewInt(10))
	assert.Nil(t, h)
	assert.ErrorIs(t, err, types.ErrSimulation)
	assert.Equal(t, 0, l.Calls("submit"))
	assert.Equal(t, StateFailed, m.State(usdc, owner))
}

func TestApproveSimulationTransportFailure(t *testing.T) {
	l, m := setup(t)
	l.SimulateErr["approve"] = ledgertest.ErrRPC

	h, err := m.Approve(context.Background(), usdc, owner, big.NewInt(10))
	assert.Nil(t, h)
	assert.ErrorIs(t, err, types.ErrUnknownRemote)
	assert.ErrorIs(t, err, ledgertest.ErrRPC)
	assert.NotErrorIs(t, err, types.ErrSimulation)
	assert.Equal(t, 0, l.Calls("submit"))
	assert.Equal(t, StateFailed, m.State(usdc, owner))
}

func TestApproveDeclined(t *testing.T) {
	l, m := setup(t)
	l.Decline = true

	h, err := m.Approve(context.Background(), usdc, owner, big.NewInt(10))
	assert.ErrorIs(t, err, types.ErrUserDeclined)
	require.NotNil(t, h)
	assert.Equal(t, types.TxFailed, h.Status())
	assert.Equal(t, StateFailed, m.State(usdc, owner))
}

func TestApproveRevertedLeavesAllowance(t *testing.T) {
	l, m := setup(t)
	l.Revert["approve"] = true

	h, err := m.Approve(context.Background(), usdc, owner, big.NewInt(10))
	require.NoError(t, err)

	_, err = m.Await(awaitCtx(t), h)
	assert.ErrorIs(t, err, types.ErrTransactionReverted)
	assert.Equal(t, StateFailed, m.State(usdc, owner))
	assert.True(t, m.NeedsApproval(usdc, owner, big.NewInt(10)))
}

func TestConfirmedApprovalOverriddenExternally(t *testing.T) {
	l, m := setup(t)
	// another session lowers the allowance right after ours is mined
	l.ConfirmHook = func(req *ledger.PreparedRequest) {
		l.SetAllowance(usdc.Address, owner, pool, big.NewInt(1))
	}

	h, err := m.Approve(context.Background(), usdc, owner, big.NewInt(10))
	require.NoError(t, err)

	a, err := m.Await(awaitCtx(t), h)
	require.NoError(t, err)
	assert.Equal(t, "1", a.CurrentAmount.String())
	assert.Equal(t, StateInsufficient, m.State(usdc, owner))
	assert.True(t, m.NeedsApproval(usdc, owner, big.NewInt(10)))
}

func TestApproveRejectsNonPositiveAmount(t *testing.T) {
	l, m := setup(t)

	_, err := m.Approve(context.Background(), usdc, owner, big.NewInt(0))
	assert.ErrorIs(t, err, types.ErrInputValidation)
	assert.Equal(t, 0, l.TotalCalls())
}
