package enums

import "fmt"

// BookingStep is the participant-visible step of the booking flow.
type BookingStep string

const (
	BookingStepDetails   BookingStep = "details"
	BookingStepInterest  BookingStep = "interest"
	BookingStepJoin      BookingStep = "join"
	BookingStepCheckin   BookingStep = "checkin"
	BookingStepCheckedIn BookingStep = "checkedin"
)

var validBookingSteps = []BookingStep{
	BookingStepDetails,
	BookingStepInterest,
	BookingStepJoin,
	BookingStepCheckin,
	BookingStepCheckedIn,
}

func (s BookingStep) IsValid() bool {
	for _, candidate := range validBookingSteps {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave the step.
func (s BookingStep) IsTerminal() bool {
	return s == BookingStepCheckedIn
}

func ParseBookingStep(value string) (BookingStep, error) {
	for _, candidate := range validBookingSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking step %q", value)
}
