package swap

import (
	"math/big"

	"bltm-swap/pkg/types"
)

// State of the orchestrator
type State string

const (
	StateIdle                State = "idle"
	StateInsufficientInput   State = "insufficientInput"
	StateWaitingForRate      State = "waitingForRate"
	StateInsufficientBalance State = "insufficientBalance"
	StateNeedsApproval       State = "needsApproval"
	StateApproving           State = "approving"
	StateReady               State = "ready"
	StateSwapping            State = "swapping"
	StateSuccess             State = "success"
	StateFailed              State = "failed"
)

// Snapshot is everything a presentation layer needs to render the exchange
// form. It is a copy; mutating it has no effect on the orchestrator.
type Snapshot struct {
	State               State                     `json:"state"`
	Direction           types.Direction           `json:"direction"`
	FromToken           types.Token               `json:"from_token"`
	ToToken             types.Token               `json:"to_token"`
	FromAmount          string                    `json:"from_amount"`
	InputAmount         *big.Int                  `json:"input_amount,omitempty"`
	ComputedToAmount    *big.Int                  `json:"computed_to_amount,omitempty"`
	Rate                *types.ExchangeRate       `json:"rate,omitempty"`
	Quote               *types.SwapQuote          `json:"quote,omitempty"`
	InsufficientBalance bool                      `json:"insufficient_balance"`
	ActionLabel         string                    `json:"action_label"`
	ActionEnabled       bool                      `json:"action_enabled"`
	LastError           error                     `json:"-"`
	Pending             *types.PendingTransaction `json:"pending,omitempty"`
	LastTx              *types.PendingTransaction `json:"last_tx,omitempty"`
}

// actionLabel maps a state to the label of the single action control
func actionLabel(state State, dir types.Direction, from types.Token) string {
	switch state {
	case StateInsufficientInput:
		return "Enter a valid amount"
	case StateWaitingForRate:
		return "Fetching rate..."
	case StateInsufficientBalance:
		return "Insufficient Balance"
	case StateNeedsApproval:
		return "Approve " + from.Symbol
	case StateApproving:
		return "Approving..."
	case StateReady:
		if dir == types.CounterToBase {
			return "Redeem"
		}
		return "Swap"
	case StateSwapping:
		if dir == types.CounterToBase {
			return "Redeeming..."
		}
		return "Swapping..."
	case StateSuccess:
		return "Done"
	case StateFailed:
		return "Try Again"
	default:
		return "Enter an amount"
	}
}

func actionEnabled(state State) bool {
	return state == StateNeedsApproval || state == StateReady || state == StateFailed
}
