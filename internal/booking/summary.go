package booking

import (
	"math/big"

	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/pkg/money"
)

// Installment is one stage of the payment split.
type Installment struct {
	Stage     string `json:"stage"`
	Percent   uint8  `json:"percent"`
	AmountWei string `json:"amountWei"`
	Amount    string `json:"amount"`
}

// Summary is the payment breakdown shown before a participant joins.
type Summary struct {
	PriceWei     string        `json:"priceWei"`
	Price        string        `json:"price"`
	Installments []Installment `json:"installments"`
	TotalWei     string        `json:"totalWei"`
	Total        string        `json:"total"`
}

// Summarize splits price across the non-zero stages of split. Truncation
// leftovers go to the last stage so the installments add up to the price.
func Summarize(price *big.Int, split ledger.PaymentStructure, decimals int32) Summary {
	if price == nil {
		price = new(big.Int)
	}
	stages := []struct {
		name string
		pct  uint8
	}{
		{"advance", split.Advance},
		{"checkin", split.Checkin},
		{"midExperience", split.MidExperience},
		{"completion", split.Completion},
	}

	amounts := make([]*big.Int, 0, len(stages))
	out := Summary{
		PriceWei: price.String(),
		Price:    money.Format(price, decimals),
	}
	allocated := new(big.Int)
	for _, stage := range stages {
		if stage.pct == 0 {
			continue
		}
		amount := money.PercentOf(price, stage.pct)
		allocated.Add(allocated, amount)
		amounts = append(amounts, amount)
		out.Installments = append(out.Installments, Installment{Stage: stage.name, Percent: stage.pct})
	}
	if n := len(amounts); n > 0 && split.Sum() == 100 {
		amounts[n-1].Add(amounts[n-1], new(big.Int).Sub(price, allocated))
	}

	total := new(big.Int)
	for i, amount := range amounts {
		out.Installments[i].AmountWei = amount.String()
		out.Installments[i].Amount = money.Format(amount, decimals)
		total.Add(total, amount)
	}
	out.TotalWei = total.String()
	out.Total = money.Format(total, decimals)
	return out
}
