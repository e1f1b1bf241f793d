package enums

import "fmt"

// WalletStatus tracks the outcome of custodial wallet provisioning.
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "active"
	WalletStatusFunded WalletStatus = "funded"
	WalletStatusError  WalletStatus = "error"
)

var validWalletStatuses = []WalletStatus{
	WalletStatusActive,
	WalletStatusFunded,
	WalletStatusError,
}

func (s WalletStatus) IsValid() bool {
	for _, candidate := range validWalletStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseWalletStatus(value string) (WalletStatus, error) {
	for _, candidate := range validWalletStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet status %q", value)
}
