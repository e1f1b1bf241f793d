package booking

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/angelmondragon/experiences-backend/internal/submission"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
)

var (
	ErrInvalidTransition = pkgerrors.New(pkgerrors.CodeStateConflict, "booking step does not allow this action")
	ErrNicknameRequired  = pkgerrors.New(pkgerrors.CodeValidation, "nickname is required")
	ErrUnconfirmed       = pkgerrors.New(pkgerrors.CodeStateConflict, "booking has no confirmed receipt")
)

// Attempt is the participant's outstanding or last booking submission.
type Attempt struct {
	ExperienceID  string `json:"experienceId"`
	Participant   string `json:"participant"`
	PaymentAmount string `json:"paymentAmount"`
	AttemptCount  int    `json:"attemptCount"`
	LastError     string `json:"lastError,omitempty"`
}

// Snapshot is the per-participant booking session.
type Snapshot struct {
	ExperienceID    string            `json:"experienceId"`
	LedgerID        string            `json:"ledgerId,omitempty"`
	Step            enums.BookingStep `json:"step"`
	Nickname        string            `json:"nickname,omitempty"`
	InFlight        bool              `json:"inFlight"`
	Attempt         *Attempt          `json:"attempt,omitempty"`
	ConfirmedTxHash string            `json:"confirmedTxHash,omitempty"`
}

type EventKind string

const (
	EventShowInterest     EventKind = "show_interest"
	EventWithdrawInterest EventKind = "withdraw_interest"
	EventStartJoin        EventKind = "start_join"
	EventSubmitJoin       EventKind = "submit_join"
	EventBookingConfirmed EventKind = "booking_confirmed"
	EventBookingFailed    EventKind = "booking_failed"
	EventCheckinConfirmed EventKind = "checkin_confirmed"
)

// Event drives Transition. Only the fields relevant to Kind are read.
type Event struct {
	Kind        EventKind
	Nickname    string
	Participant string
	Payment     *big.Int
	TxHash      string
	Confirmed   bool
	Err         string
}

// Transition applies ev to s and returns the next snapshot. It has no side
// effects; s is never modified.
func Transition(s Snapshot, ev Event) (Snapshot, error) {
	if s.Step == "" {
		s.Step = enums.BookingStepDetails
	}
	if s.Step.IsTerminal() {
		return s, invalid(s, ev)
	}

	next := s
	if s.Attempt != nil {
		attempt := *s.Attempt
		next.Attempt = &attempt
	}

	switch ev.Kind {
	case EventShowInterest:
		if s.Step != enums.BookingStepDetails {
			return s, invalid(s, ev)
		}
		next.Step = enums.BookingStepInterest

	case EventWithdrawInterest:
		if s.Step != enums.BookingStepInterest {
			return s, invalid(s, ev)
		}
		next.Step = enums.BookingStepDetails

	case EventStartJoin:
		if s.Step != enums.BookingStepDetails && s.Step != enums.BookingStepInterest {
			return s, invalid(s, ev)
		}
		next.Step = enums.BookingStepJoin

	case EventSubmitJoin:
		if s.Step != enums.BookingStepJoin {
			return s, invalid(s, ev)
		}
		nickname := strings.TrimSpace(ev.Nickname)
		if nickname == "" {
			return s, ErrNicknameRequired
		}
		if s.InFlight {
			return s, submission.ErrInFlight
		}
		if s.LedgerID == "" {
			return s, submission.ErrDemoExperience
		}
		attempt := Attempt{
			ExperienceID: s.LedgerID,
			Participant:  ev.Participant,
		}
		if ev.Payment != nil {
			attempt.PaymentAmount = ev.Payment.String()
		}
		if next.Attempt != nil {
			attempt.AttemptCount = next.Attempt.AttemptCount
		}
		attempt.AttemptCount++
		next.Attempt = &attempt
		next.Nickname = nickname
		next.InFlight = true

	case EventBookingConfirmed:
		if s.Step != enums.BookingStepJoin || !s.InFlight {
			return s, invalid(s, ev)
		}
		if !ev.Confirmed || ev.TxHash == "" {
			return s, ErrUnconfirmed
		}
		next.Step = enums.BookingStepCheckin
		next.InFlight = false
		next.ConfirmedTxHash = ev.TxHash
		if next.Attempt != nil {
			next.Attempt.LastError = ""
		}

	case EventBookingFailed:
		if s.Step != enums.BookingStepJoin || !s.InFlight {
			return s, invalid(s, ev)
		}
		next.InFlight = false
		if next.Attempt == nil {
			next.Attempt = &Attempt{ExperienceID: s.LedgerID}
		}
		next.Attempt.LastError = ev.Err

	case EventCheckinConfirmed:
		if s.Step != enums.BookingStepCheckin {
			return s, invalid(s, ev)
		}
		if s.ConfirmedTxHash == "" {
			return s, ErrUnconfirmed
		}
		next.Step = enums.BookingStepCheckedIn

	default:
		return s, invalid(s, ev)
	}
	return next, nil
}

func invalid(s Snapshot, ev Event) error {
	return fmt.Errorf("%w: %s at %s", ErrInvalidTransition, ev.Kind, s.Step)
}
