package submission

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
)

var (
	// ErrWalletNotConnected is returned when no signer accompanies the call.
	ErrWalletNotConnected = errors.New("wallet not connected")
	// ErrInFlight is returned when the same submission is already outstanding.
	ErrInFlight = errors.New("a submission for this action is already in flight")
	// ErrPaused is returned when the escrow contract is paused.
	ErrPaused = errors.New("escrow contract is paused")
	// ErrDemoExperience rejects bookings for catalog rows without a ledger id.
	ErrDemoExperience = errors.New("cannot book a demo experience")
)

// Error is a classified submission failure. Err is the last raw error observed.
type Error struct {
	Class    enums.TxErrorClass
	Op       enums.TxOperation
	Attempts int
	Err      error
}

func newError(class enums.TxErrorClass, op enums.TxOperation, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s after %d attempt(s): %v", e.Op, e.Class, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable drives the caller's retry affordance.
func (e *Error) Retryable() bool {
	return e != nil && e.Class.Retryable()
}

// UserMessage is the banner text for the class.
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	switch e.Class {
	case enums.TxErrorValidation:
		if e.Err != nil {
			return "Please review the details: " + e.Err.Error()
		}
		return "Please review the details and try again"
	case enums.TxErrorRateLimited:
		return "The network is busy right now. Please try again in a few seconds"
	case enums.TxErrorInsufficientFunds:
		return "Your wallet does not have enough funds for this transaction"
	case enums.TxErrorUserRejected:
		return "The transaction was rejected in your wallet"
	case enums.TxErrorNonceConflict:
		return "A previous transaction is still pending. Wait for it to confirm and try again"
	case enums.TxErrorExecutionReverted:
		return "The escrow contract rejected this transaction"
	case enums.TxErrorPaused:
		return "Bookings are temporarily paused"
	}
	msg := "Transaction failed, please retry"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Code maps the class onto the shared API error codes.
func (e *Error) Code() pkgerrors.Code {
	if e == nil {
		return pkgerrors.CodeInternal
	}
	switch e.Class {
	case enums.TxErrorValidation:
		if errors.Is(e.Err, ErrInFlight) {
			return pkgerrors.CodeInFlight
		}
		return pkgerrors.CodeValidation
	case enums.TxErrorRateLimited:
		return pkgerrors.CodeRateLimit
	case enums.TxErrorPaused:
		return pkgerrors.CodeStateConflict
	case enums.TxErrorInsufficientFunds:
		return pkgerrors.CodeInsufficient
	case enums.TxErrorExecutionReverted, enums.TxErrorUserRejected, enums.TxErrorNonceConflict:
		return pkgerrors.CodeLedgerReject
	}
	return pkgerrors.CodeDependency
}

// APIError converts the failure into the shared error envelope.
func (e *Error) APIError() *pkgerrors.Error {
	return pkgerrors.Wrap(e.Code(), e, e.UserMessage()).WithDetails(map[string]any{
		"class":     e.Class,
		"operation": e.Op,
		"attempts":  e.Attempts,
		"retryable": e.Retryable(),
	})
}

// AsError extracts a classified submission error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
