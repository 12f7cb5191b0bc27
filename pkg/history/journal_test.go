package history

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/types"
)

var usdc = types.Token{Symbol: "USDC", Address: common.HexToAddress("0x01"), Decimals: 6}

func pendingTx(id string, hash int64, status types.TxStatus, at time.Time) types.PendingTransaction {
	return types.PendingTransaction{
		ID:          id,
		Hash:        common.BigToHash(big.NewInt(hash)),
		Kind:        types.KindSwap,
		Token:       usdc,
		Owner:       common.HexToAddress("0xaa"),
		Amount:      big.NewInt(30_000_000),
		SubmittedAt: at,
		UpdatedAt:   at,
		Status:      status,
	}
}

func TestJournalPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	j, err := NewJournal(path)
	require.NoError(t, err)
	assert.Equal(t, 0, j.Count())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, j.Record(pendingTx("a", 1, types.TxSubmitted, now)))
	confirmed := pendingTx("a", 1, types.TxConfirmed, now)
	confirmed.BlockNumber = 42
	require.NoError(t, j.Record(confirmed))
	require.NoError(t, j.Record(pendingTx("b", 2, types.TxConfirming, now.Add(time.Minute))))

	reopened, err := NewJournal(path)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Count())

	r, err := reopened.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.TxConfirmed, r.Status)
	assert.Equal(t, uint64(42), r.BlockNumber)
	assert.Equal(t, "30000000", r.Amount)
	assert.Equal(t, usdc, r.TokenInfo())

	list := reopened.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")

	_, err = reopened.Get("missing")
	assert.Error(t, err)
}

func TestJournalFailedWriteLeavesRecordsUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	j, err := NewJournal(path)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, j.Record(pendingTx("a", 1, types.TxSubmitted, now)))

	// a directory where the temp file goes makes every write fail
	require.NoError(t, os.Mkdir(path+".tmp", 0755))

	assert.Error(t, j.Record(pendingTx("a", 1, types.TxConfirmed, now)))
	assert.Error(t, j.Record(pendingTx("b", 2, types.TxSubmitted, now)))

	assert.Equal(t, 1, j.Count())
	r, err := j.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.TxSubmitted, r.Status)

	reopened, err := NewJournal(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
	r, err = reopened.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.TxSubmitted, r.Status)
}

func TestJournalKeepsResolution(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, j.Record(pendingTx("a", 1, types.TxFailed, now)))
	require.NoError(t, j.Record(pendingTx("a", 1, types.TxConfirming, now)))

	r, err := j.Get("a")
	require.NoError(t, err)
	assert.Equal(t, types.TxFailed, r.Status)
}

func TestJournalAssignsIDs(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	require.NoError(t, j.Record(pendingTx("", 7, types.TxSubmitted, time.Now())))
	r, ok := j.ByHash(common.BigToHash(big.NewInt(7)))
	require.True(t, ok)
	assert.NotEmpty(t, r.ID)

	unresolved := j.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, r.ID, unresolved[0].ID)
}

func TestMerge(t *testing.T) {
	now := time.Now()
	mined := &Record{ID: "a", Hash: common.BigToHash(big.NewInt(1)), Kind: types.KindSwap, Status: types.TxConfirmed, BlockNumber: 10, SubmittedAt: now}
	pending := &Record{ID: "b", Hash: common.BigToHash(big.NewInt(2)), Kind: types.KindApprove, Status: types.TxConfirming, SubmittedAt: now}

	events := []ledger.PoolEvent{
		{ID: "e1", Action: ledger.EventMint, TxHash: mined.Hash, BlockNumber: 10},
		{ID: "e2", Action: ledger.EventBurn, TxHash: common.BigToHash(big.NewInt(3)), BlockNumber: 20},
		{ID: "e3", Action: ledger.EventMint, TxHash: common.BigToHash(big.NewInt(4)), BlockNumber: 5},
	}

	entries := Merge([]*Record{mined, pending}, events)
	require.Len(t, entries, 4)

	assert.Equal(t, "approve", entries[0].Action(), "unmined first")
	assert.Equal(t, uint64(20), entries[1].Block)
	assert.Equal(t, "burn", entries[1].Action())

	assert.Equal(t, uint64(10), entries[2].Block)
	require.NotNil(t, entries[2].Journal)
	require.NotNil(t, entries[2].Event, "journaled swap is joined with its pool event")
	assert.Equal(t, "swap", entries[2].Action())

	assert.Equal(t, uint64(5), entries[3].Block)
	assert.Nil(t, entries[3].Journal)
}
