package enums

import "fmt"

// ExperienceStatus mirrors the ledger's experience status enum. The numeric
// order matches the contract's uint8 values.
type ExperienceStatus string

const (
	ExperienceStatusActive    ExperienceStatus = "active"
	ExperienceStatusFull      ExperienceStatus = "full"
	ExperienceStatusStarted   ExperienceStatus = "started"
	ExperienceStatusCompleted ExperienceStatus = "completed"
	ExperienceStatusCancelled ExperienceStatus = "cancelled"
)

var ledgerExperienceStatuses = []ExperienceStatus{
	ExperienceStatusActive,
	ExperienceStatusFull,
	ExperienceStatusStarted,
	ExperienceStatusCompleted,
	ExperienceStatusCancelled,
}

func (s ExperienceStatus) IsValid() bool {
	for _, candidate := range ledgerExperienceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ExperienceStatusFromLedger converts the contract's uint8 status.
func ExperienceStatusFromLedger(value uint8) (ExperienceStatus, error) {
	if int(value) >= len(ledgerExperienceStatuses) {
		return "", fmt.Errorf("unknown ledger experience status %d", value)
	}
	return ledgerExperienceStatuses[value], nil
}

func ParseExperienceStatus(value string) (ExperienceStatus, error) {
	for _, candidate := range ledgerExperienceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid experience status %q", value)
}
