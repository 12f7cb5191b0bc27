// Package ledgertest provides a scriptable in-memory ledger for tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/types"
)

// ErrRPC is a generic remote failure.
var ErrRPC = errors.New("rpc unavailable")

// Reverted is what a ledger returns from Simulate when the call would revert.
func Reverted(reason string) error {
	return types.NewError(types.ErrSimulation, "", fmt.Errorf("execution reverted: %s", reason))
}

type allowanceKey struct {
	token, owner, spender common.Address
}

type sentTx struct {
	req      *ledger.PreparedRequest
	polls    int
	resolved bool
}

// Ledger is a fake ledger.Client. All fields may be set before use; after
// that use the accessor methods, which lock.
type Ledger struct {
	mu sync.Mutex

	account    common.Address
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	rate       *big.Int
	block      uint64

	// Failure scripting
	RateErr        error
	BalanceErr     error
	AllowanceErr   error
	SimulateErr    map[string]error // by function name
	SubmitErr      error
	Decline        bool
	Revert         map[string]bool // functions whose receipt reports failure
	NeverConfirm   map[string]bool // functions that never get a receipt
	ReceiptDelay   int             // nil receipts before the real one
	ReceiptErrs    int             // failing receipt reads before succeeding
	OnConfirm      func(l *Ledger, req *ledger.PreparedRequest)
	SubmitHook     func(req *ledger.PreparedRequest)
	ConfirmHook    func(req *ledger.PreparedRequest)

	calls map[string]int
	sent  map[common.Hash]*sentTx
	order []common.Hash
	nonce uint64
}

// New returns a fake ledger signing as account.
func New(account common.Address) *Ledger {
	return &Ledger{
		account:      account,
		balances:     make(map[common.Address]map[common.Address]*big.Int),
		allowances:   make(map[allowanceKey]*big.Int),
		SimulateErr:  make(map[string]error),
		Revert:       make(map[string]bool),
		NeverConfirm: make(map[string]bool),
		calls:        make(map[string]int),
		sent:         make(map[common.Hash]*sentTx),
		block:        100,
	}
}

// Account implements ledger.Client
func (l *Ledger) Account() common.Address {
	return l.account
}

// SetBalance sets token.balanceOf(owner).
func (l *Ledger) SetBalance(token, owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setBalance(token, owner, amount)
}

func (l *Ledger) setBalance(token, owner common.Address, amount *big.Int) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[common.Address]*big.Int)
	}
	l.balances[token][owner] = new(big.Int).Set(amount)
}

// AddBalance adds delta (which may be negative) to token.balanceOf(owner).
// Only for use inside OnConfirm, which runs with the ledger locked.
func (l *Ledger) AddBalance(token, owner common.Address, delta *big.Int) {
	current := l.balance(token, owner)
	l.setBalance(token, owner, current.Add(current, delta))
}

func (l *Ledger) balance(token, owner common.Address) *big.Int {
	if b, ok := l.balances[token][owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// SetAllowance sets token.allowance(owner, spender).
func (l *Ledger) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

// SetRate sets the pool's raw exchange rate.
func (l *Ledger) SetRate(rate *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = rate
}

// Calls returns how many times a primitive was invoked.
func (l *Ledger) Calls(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[name]
}

// TotalCalls returns the number of remote calls of any kind.
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.calls {
		total += n
	}
	return total
}

// Submitted returns the functions of all submitted transactions, in order.
func (l *Ledger) Submitted() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.order))
	for _, h := range l.order {
		out = append(out, l.sent[h].req.Function)
	}
	return out
}

// Release lets a NeverConfirm function be mined on the next poll.
func (l *Ledger) Release(function string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.NeverConfirm, function)
}

// BalanceOf implements ledger.Reader
func (l *Ledger) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["balanceOf"]++
	if l.BalanceErr != nil {
		return nil, l.BalanceErr
	}
	return l.balance(token, owner), nil
}

// Allowance implements ledger.Reader
func (l *Ledger) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["allowance"]++
	if l.AllowanceErr != nil {
		return nil, l.AllowanceErr
	}
	if a, ok := l.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

// ExchangeRate implements ledger.Reader
func (l *Ledger) ExchangeRate(_ context.Context) (*big.Int, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["exchangeRate"]++
	if l.RateErr != nil {
		return nil, 0, l.RateErr
	}
	if l.rate == nil {
		return nil, 0, ErrRPC
	}
	return new(big.Int).Set(l.rate), l.block, nil
}

// Simulate implements ledger.Writer
func (l *Ledger) Simulate(_ context.Context, target common.Address, function string, args ...interface{}) (*ledger.PreparedRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["simulate"]++
	if err := l.SimulateErr[function]; err != nil {
		return nil, err
	}
	return &ledger.PreparedRequest{
		From:     l.account,
		To:       target,
		Function: function,
		Args:     args,
		Gas:      100000,
	}, nil
}

// SubmitTransaction implements ledger.Writer
func (l *Ledger) SubmitTransaction(_ context.Context, req *ledger.PreparedRequest) (common.Hash, error) {
	l.mu.Lock()
	l.calls["submit"]++
	if l.Decline {
		l.mu.Unlock()
		return common.Hash{}, types.ErrUserDeclined
	}
	if l.SubmitErr != nil {
		err := l.SubmitErr
		l.mu.Unlock()
		return common.Hash{}, err
	}
	l.nonce++
	hash := common.BigToHash(new(big.Int).SetUint64(0xabc000 + l.nonce))
	l.sent[hash] = &sentTx{req: req}
	l.order = append(l.order, hash)
	hook := l.SubmitHook
	l.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return hash, nil
}

// GetReceipt implements ledger.Writer
func (l *Ledger) GetReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	l.mu.Lock()
	l.calls["receipt"]++
	tx, ok := l.sent[hash]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("unknown transaction %s", hash.Hex())
	}
	if l.ReceiptErrs > 0 {
		l.ReceiptErrs--
		l.mu.Unlock()
		return nil, ErrRPC
	}
	if l.NeverConfirm[tx.req.Function] {
		l.mu.Unlock()
		return nil, nil
	}
	tx.polls++
	if tx.polls <= l.ReceiptDelay {
		l.mu.Unlock()
		return nil, nil
	}

	l.block++
	receipt := &ethtypes.Receipt{
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(l.block),
		Status:      ethtypes.ReceiptStatusSuccessful,
	}
	if l.Revert[tx.req.Function] {
		receipt.Status = ethtypes.ReceiptStatusFailed
		l.mu.Unlock()
		return receipt, nil
	}

	var hook func(*ledger.PreparedRequest)
	if !tx.resolved {
		tx.resolved = true
		l.apply(tx.req)
		hook = l.ConfirmHook
	}
	l.mu.Unlock()

	if hook != nil {
		hook(tx.req)
	}
	return receipt, nil
}

// apply mines the effects of a confirmed request. Must hold l.mu.
func (l *Ledger) apply(req *ledger.PreparedRequest) {
	if req.Function == "approve" && len(req.Args) == 2 {
		spender, _ := req.Args[0].(common.Address)
		amount, _ := req.Args[1].(*big.Int)
		if amount != nil {
			l.allowances[allowanceKey{req.To, req.From, spender}] = new(big.Int).Set(amount)
		}
		return
	}
	if l.OnConfirm != nil {
		l.OnConfirm(l, req)
	}
}

// PoolEvents implements ledger.EventSource
func (l *Ledger) PoolEvents(_ context.Context, _ uint64) ([]ledger.PoolEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["poolEvents"]++
	return nil, nil
}
