package ledger

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

// Signer authorizes ledger writes on behalf of one account.
type Signer = bind.TransactOpts

// PaymentStructure splits the price across the experience lifecycle, in percent.
type PaymentStructure struct {
	Advance       uint8 `json:"advance" validate:"lte=100"`
	Checkin       uint8 `json:"checkin" validate:"lte=100"`
	MidExperience uint8 `json:"midExperience" validate:"lte=100"`
	Completion    uint8 `json:"completion" validate:"lte=100"`
}

// FullUpfront is the product default: the whole price is paid on booking.
var FullUpfront = PaymentStructure{Advance: 100}

// Sum adds the four parts without overflowing uint8.
func (p PaymentStructure) Sum() int {
	return int(p.Advance) + int(p.Checkin) + int(p.MidExperience) + int(p.Completion)
}

// Valid reports whether the parts add up to exactly 100.
func (p PaymentStructure) Valid() bool {
	return p.Sum() == 100
}

// Experience is the ledger's view of a bookable experience.
type Experience struct {
	ID                  *big.Int
	Creator             common.Address
	ExperienceWallet    common.Address
	Title               string
	Description         string
	Location            string
	Price               *big.Int
	MaxParticipants     *big.Int
	CurrentParticipants *big.Int
	Status              enums.ExperienceStatus
	CreatedAt           time.Time
	ScheduledAt         time.Time
	PaymentStructure    PaymentStructure
}

// CreateExperienceInput is the ledger-encoded form of a create request.
// Amounts are already in minor units and ScheduledAt in Unix seconds.
type CreateExperienceInput struct {
	ExperienceWallet common.Address
	Title            string
	Description      string
	Location         string
	Price            *big.Int
	MaxParticipants  *big.Int
	ScheduledAt      *big.Int
	PaymentStructure PaymentStructure
}

// ErrReverted is returned by WaitConfirmed when the transaction was mined but failed.
var ErrReverted = errors.New("execution reverted")

// experienceTuple mirrors the getExperience output tuple field by field.
type experienceTuple struct {
	Id                  *big.Int
	Creator             common.Address
	ExperienceWallet    common.Address
	Title               string
	Description         string
	Location            string
	Price               *big.Int
	MaxParticipants     *big.Int
	CurrentParticipants *big.Int
	Status              uint8
	CreatedAt           *big.Int
	ScheduledAt         *big.Int
	PaymentStructure    PaymentStructure
}

func (t experienceTuple) toExperience() (*Experience, error) {
	status, err := enums.ExperienceStatusFromLedger(t.Status)
	if err != nil {
		return nil, err
	}
	return &Experience{
		ID:                  t.Id,
		Creator:             t.Creator,
		ExperienceWallet:    t.ExperienceWallet,
		Title:               t.Title,
		Description:         t.Description,
		Location:            t.Location,
		Price:               t.Price,
		MaxParticipants:     t.MaxParticipants,
		CurrentParticipants: t.CurrentParticipants,
		Status:              status,
		CreatedAt:           unixToTime(t.CreatedAt),
		ScheduledAt:         unixToTime(t.ScheduledAt),
		PaymentStructure:    t.PaymentStructure,
	}, nil
}

func unixToTime(v *big.Int) time.Time {
	if v == nil || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
