// Package ledger defines the read, simulate and write primitives the swap core
// consumes from a chain client, and an EVM implementation of them.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Reader exposes the read-only calls.
type Reader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	// ExchangeRate returns the pool's raw rate and the block it was read at.
	ExchangeRate(ctx context.Context) (*big.Int, uint64, error)
}

// Writer exposes simulation, submission and receipt lookup.
type Writer interface {
	// Simulate dry-runs target.function(args...) from the signing account. A
	// revert is returned as an error; success yields a request ready to submit.
	Simulate(ctx context.Context, target common.Address, function string, args ...interface{}) (*PreparedRequest, error)
	SubmitTransaction(ctx context.Context, req *PreparedRequest) (common.Hash, error)
	// GetReceipt returns nil without error while the transaction is pending.
	GetReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Client is everything the swap core needs from the ledger.
type Client interface {
	Reader
	Writer
	Account() common.Address
}

// PreparedRequest is the outcome of a successful simulation. It must not be
// reused once the inputs it was built from change.
type PreparedRequest struct {
	From     common.Address
	To       common.Address
	Function string
	Args     []interface{}
	Data     []byte
	Gas      uint64
}

// PoolEventKind distinguishes pool mint and burn events.
type PoolEventKind string

const (
	EventMint PoolEventKind = "mint" // TokensSwapped
	EventBurn PoolEventKind = "burn" // TokensRedeemed
)

// PoolEvent is a decoded TokensSwapped/TokensRedeemed log.
type PoolEvent struct {
	ID            string         `json:"id"`
	Action        PoolEventKind  `json:"action"`
	User          common.Address `json:"user"`
	BaseAmount    *big.Int       `json:"base_amount"`
	CounterAmount *big.Int       `json:"counter_amount"`
	BlockNumber   uint64         `json:"block_number"`
	TxHash        common.Hash    `json:"tx_hash"`
}

// EventSource is implemented by clients that can list pool events.
type EventSource interface {
	PoolEvents(ctx context.Context, fromBlock uint64) ([]PoolEvent, error)
}
