package submission

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/pkg/money"
)

// CreateExperienceParams is a host's request to publish an experience.
// Price is a decimal string in whole currency units ("0.05").
type CreateExperienceParams struct {
	ExperienceWallet string                  `json:"experienceWallet" validate:"required,eth_addr"`
	Title            string                  `json:"title" validate:"required,max=120"`
	Description      string                  `json:"description" validate:"max=2000"`
	Location         string                  `json:"location" validate:"max=200"`
	City             string                  `json:"city" validate:"max=80"`
	Price            string                  `json:"price" validate:"required,numeric"`
	MaxParticipants  int64                   `json:"maxParticipants" validate:"gt=0"`
	ScheduledAt      time.Time               `json:"scheduledAt" validate:"required"`
	PaymentStructure ledger.PaymentStructure `json:"paymentStructure"`
}

// BookExperienceParams is a participant's request to pay into an experience.
// ExperienceID is the ledger id; empty means the experience is catalog-only.
type BookExperienceParams struct {
	ExperienceID string   `json:"experienceId"`
	Payment      *big.Int `json:"payment"`
}

type nowKey struct{}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterStructValidationCtx(validateCreateParams, CreateExperienceParams{})
	return v
}

func validateCreateParams(ctx context.Context, sl validator.StructLevel) {
	params := sl.Current().Interface().(CreateExperienceParams)
	if strings.TrimSpace(params.Title) == "" {
		sl.ReportError(params.Title, "title", "Title", "notblank", "")
	}
	if price, err := money.ToMinorUnits(params.Price, money.LedgerDecimals); err == nil && price.Sign() <= 0 {
		sl.ReportError(params.Price, "price", "Price", "gt", "0")
	}
	now, ok := ctx.Value(nowKey{}).(time.Time)
	if !ok {
		now = time.Now()
	}
	if !params.ScheduledAt.IsZero() && !params.ScheduledAt.After(now) {
		sl.ReportError(params.ScheduledAt, "scheduledAt", "ScheduledAt", "future", "")
	}
	if !params.PaymentStructure.Valid() {
		sl.ReportError(params.PaymentStructure, "paymentStructure", "PaymentStructure", "sum100", fmt.Sprint(params.PaymentStructure.Sum()))
	}
}

// normalize applies the product default payment split.
func (p CreateExperienceParams) normalize() CreateExperienceParams {
	if p.PaymentStructure == (ledger.PaymentStructure{}) {
		p.PaymentStructure = ledger.FullUpfront
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Location = strings.TrimSpace(p.Location)
	p.City = strings.TrimSpace(p.City)
	return p
}

// ValidateCreate checks create params against now. It is exported so HTTP
// handlers can reject bad input with the same rules.
func ValidateCreate(params CreateExperienceParams, now time.Time) error {
	ctx := context.WithValue(context.Background(), nowKey{}, now)
	if err := validate.StructCtx(ctx, params.normalize()); err != nil {
		return fmt.Errorf("invalid experience: %s", describe(err))
	}
	return nil
}

// encode converts validated params into ledger units.
func (p CreateExperienceParams) encode(decimals int32) (ledger.CreateExperienceInput, error) {
	price, err := money.ToMinorUnits(p.Price, decimals)
	if err != nil {
		return ledger.CreateExperienceInput{}, err
	}
	return ledger.CreateExperienceInput{
		ExperienceWallet: common.HexToAddress(p.ExperienceWallet),
		Title:            p.Title,
		Description:      p.Description,
		Location:         p.Location,
		Price:            price,
		MaxParticipants:  big.NewInt(p.MaxParticipants),
		ScheduledAt:      big.NewInt(money.UnixSeconds(p.ScheduledAt)),
		PaymentStructure: p.PaymentStructure,
	}, nil
}

func (p BookExperienceParams) ledgerID() (*big.Int, error) {
	trimmed := strings.TrimSpace(p.ExperienceID)
	if trimmed == "" {
		return nil, ErrDemoExperience
	}
	id, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid ledger experience id %q", p.ExperienceID)
	}
	return id, nil
}

func describe(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		parts = append(parts, fieldErr.Field()+" "+fieldMessage(fieldErr))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "numeric":
		return "must be a decimal amount"
	case "eth_addr":
		return "must be a valid address"
	case "future":
		return "must be in the future"
	case "sum100":
		return "must add up to 100 (got " + fe.Param() + ")"
	case "lte":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}
