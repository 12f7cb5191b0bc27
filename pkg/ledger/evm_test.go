package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bltm-swap/pkg/types"
)

// nodeError is a JSON-RPC error as the node returns it
type nodeError struct {
	code int
	msg  string
	data interface{}
}

func (e nodeError) Error() string          { return e.msg }
func (e nodeError) ErrorCode() int         { return e.code }
func (e nodeError) ErrorData() interface{} { return e.data }

func TestIsRevert(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", errors.New(`Post "http://127.0.0.1:1": dial tcp 127.0.0.1:1: connect: connection refused`), false},
		{"method not found", nodeError{code: -32601, msg: "the method eth_call does not exist"}, false},
		{"rate limited", nodeError{code: -32005, msg: "request limit reached"}, false},
		{"code 3", nodeError{code: 3, msg: "execution reverted: ERC20: insufficient allowance", data: "0x08c379a0"}, true},
		{"revert data only", nodeError{code: -32000, msg: "reverted", data: "0x"}, true},
		{"message only", nodeError{code: -32000, msg: "execution reverted"}, true},
		{"wrapped", fmt.Errorf("call: %w", nodeError{code: 3, msg: "execution reverted"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRevert(tt.err))
		})
	}
}

func TestSimulateUnreachableNodeIsNotRevert(t *testing.T) {
	client, err := NewEVMClient(EVMConfig{
		RPCUrl:         "http://127.0.0.1:1",
		ChainID:        84532,
		Account:        common.HexToAddress("0xaa"),
		Pool:           common.HexToAddress("0xbb"),
		SwapFunction:   "swapUsdcForBltm",
		RedeemFunction: "redeemBltmForUsdc",
	})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.Simulate(ctx, common.HexToAddress("0x01"), "approve", common.HexToAddress("0xbb"), big.NewInt(10))
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrSimulation)
	assert.ErrorIs(t, types.Classify("approve", err), types.ErrUnknownRemote)
}

func TestPoolABIUsesConfiguredFunctions(t *testing.T) {
	parsed, err := PoolABI("swapUsdcForBltm", "redeemBltmForUsdc")
	require.NoError(t, err)

	assert.Contains(t, parsed.Methods, "swapUsdcForBltm")
	assert.Contains(t, parsed.Methods, "redeemBltmForUsdc")
	assert.Contains(t, parsed.Methods, "exchangeRate")

	data, err := parsed.Pack("swapUsdcForBltm", big.NewInt(30_000_000))
	require.NoError(t, err)
	assert.Len(t, data, 4+32)
}

func TestDecodePoolEvents(t *testing.T) {
	parsed, err := PoolABI("swapUsdcForBltm", "redeemBltmForUsdc")
	require.NoError(t, err)

	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	swapped := parsed.Events["TokensSwapped"]
	redeemed := parsed.Events["TokensRedeemed"]

	// usdcAmount, bltmAmount
	swapData, err := swapped.Inputs.NonIndexed().Pack(big.NewInt(30_000_000), big.NewInt(58_800_000))
	require.NoError(t, err)
	// bltmAmount, usdcAmount
	redeemData, err := redeemed.Inputs.NonIndexed().Pack(big.NewInt(50_000_000), big.NewInt(24_500_000))
	require.NoError(t, err)

	swapHash := common.HexToHash("0x01")
	redeemHash := common.HexToHash("0x02")
	logs := []ethtypes.Log{
		{Topics: []common.Hash{swapped.ID, common.BytesToHash(user.Bytes())}, Data: swapData, BlockNumber: 10, TxHash: swapHash, Index: 3},
		{Topics: nil, BlockNumber: 11},
		{Topics: []common.Hash{common.HexToHash("0xdead")}, BlockNumber: 12},
		{Topics: []common.Hash{redeemed.ID, common.BytesToHash(user.Bytes())}, Data: redeemData, BlockNumber: 13, TxHash: redeemHash, Index: 0},
	}

	events, err := DecodePoolEvents(parsed, logs)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventMint, events[0].Action)
	assert.Equal(t, swapHash.Hex()+"-3", events[0].ID)
	assert.Equal(t, user, events[0].User)
	assert.Equal(t, "30000000", events[0].BaseAmount.String())
	assert.Equal(t, "58800000", events[0].CounterAmount.String())
	assert.Equal(t, uint64(10), events[0].BlockNumber)

	assert.Equal(t, EventBurn, events[1].Action)
	assert.Equal(t, "24500000", events[1].BaseAmount.String())
	assert.Equal(t, "50000000", events[1].CounterAmount.String())
	assert.Equal(t, redeemHash, events[1].TxHash)
}

func TestDecodePoolEventsRejectsCorruptData(t *testing.T) {
	parsed, err := PoolABI("swapUsdcForBltm", "redeemBltmForUsdc")
	require.NoError(t, err)

	logs := []ethtypes.Log{{Topics: []common.Hash{parsed.Events["TokensSwapped"].ID}, Data: []byte{0x01}}}
	_, err = DecodePoolEvents(parsed, logs)
	assert.Error(t, err)
}
