package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxKind is the purpose of a submitted transaction
type TxKind string

const (
	KindApprove TxKind = "approve"
	KindSwap    TxKind = "swap"
	KindRedeem  TxKind = "redeem"
)

// TxStatus is the lifecycle state of a submitted transaction
type TxStatus string

const (
	TxSubmitted  TxStatus = "submitted"  // Hash returned by the ledger
	TxConfirming TxStatus = "confirming" // Receipt is being polled
	TxConfirmed  TxStatus = "confirmed"  // Receipt observed with success status
	TxFailed     TxStatus = "failed"     // Declined, reverted or rejected
	TxTimedOut   TxStatus = "timedOut"   // No receipt within the poll window
)

// Terminal reports whether no further transition can happen.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed || s == TxTimedOut
}

// PendingTransaction tracks one submitted transaction. It is created on
// submission and is never reused for a new user action.
type PendingTransaction struct {
	ID          string         `json:"id"`
	Hash        common.Hash    `json:"hash"`
	Kind        TxKind         `json:"kind"`
	Token       Token          `json:"token"`
	Owner       common.Address `json:"owner"`
	Amount      *big.Int       `json:"amount,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Status      TxStatus       `json:"status"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	Error       string         `json:"error,omitempty"`
}
