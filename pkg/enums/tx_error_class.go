package enums

import "fmt"

// TxErrorClass is the classification attached to every failed submission.
type TxErrorClass string

const (
	TxErrorValidation        TxErrorClass = "validation"
	TxErrorRateLimited       TxErrorClass = "rate_limited"
	TxErrorInsufficientFunds TxErrorClass = "insufficient_funds"
	TxErrorUserRejected      TxErrorClass = "user_rejected"
	TxErrorNonceConflict     TxErrorClass = "nonce_conflict"
	TxErrorExecutionReverted TxErrorClass = "execution_reverted"
	TxErrorPaused            TxErrorClass = "paused"
	TxErrorNetworkUnknown    TxErrorClass = "network_unknown"
)

var validTxErrorClasses = []TxErrorClass{
	TxErrorValidation,
	TxErrorRateLimited,
	TxErrorInsufficientFunds,
	TxErrorUserRejected,
	TxErrorNonceConflict,
	TxErrorExecutionReverted,
	TxErrorPaused,
	TxErrorNetworkUnknown,
}

// IsValid reports whether the value is a known classification.
func (c TxErrorClass) IsValid() bool {
	for _, candidate := range validTxErrorClasses {
		if candidate == c {
			return true
		}
	}
	return false
}

// Retryable reports whether the submission loop may try again for this class.
// Only throughput limits are transient; everything else needs a different input.
func (c TxErrorClass) Retryable() bool {
	return c == TxErrorRateLimited
}

func ParseTxErrorClass(value string) (TxErrorClass, error) {
	for _, candidate := range validTxErrorClasses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tx error class %q", value)
}
