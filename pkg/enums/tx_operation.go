package enums

import "fmt"

// TxOperation names the money-moving ledger writes the controller submits.
type TxOperation string

const (
	TxOperationCreateExperience TxOperation = "createExperience"
	TxOperationBookExperience   TxOperation = "bookExperience"
)

var validTxOperations = []TxOperation{
	TxOperationCreateExperience,
	TxOperationBookExperience,
}

func (o TxOperation) IsValid() bool {
	for _, candidate := range validTxOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

func ParseTxOperation(value string) (TxOperation, error) {
	for _, candidate := range validTxOperations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tx operation %q", value)
}
