package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the swap core matches exactly one of
// these through errors.Is.
var (
	ErrInputValidation     = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSimulation          = errors.New("transaction simulation reverted")
	ErrUserDeclined        = errors.New("user declined to sign")
	ErrNetworkTimeout      = errors.New("no receipt within poll window")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrUnknownRemote       = errors.New("ledger request failed")
)

// Error attaches a kind and the failing operation to an underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error of the given kind.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

var kinds = []error{
	ErrInputValidation,
	ErrInsufficientBalance,
	ErrSimulation,
	ErrUserDeclined,
	ErrNetworkTimeout,
	ErrTransactionReverted,
	ErrUnknownRemote,
}

// Classify returns err unchanged when it already carries a kind, and wraps it
// as ErrUnknownRemote otherwise.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return NewError(ErrUnknownRemote, op, err)
}

// KindOf returns the error kind carried by err, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
