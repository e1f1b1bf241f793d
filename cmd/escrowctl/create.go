package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/internal/wallets"
)

const maxPercent = 100

// paymentStructure rejects percentages that would not fit the ledger's
// uint8 fields before converting them. The sum rule is left to the controller.
func paymentStructure(advance, checkin, mid, completion uint) (ledger.PaymentStructure, error) {
	for _, p := range []struct {
		flag  string
		value uint
	}{{"advance", advance}, {"checkin", checkin}, {"mid", mid}, {"completion", completion}} {
		if p.value > maxPercent {
			return ledger.PaymentStructure{}, fmt.Errorf("-%s must be between 0 and %d, got %d", p.flag, maxPercent, p.value)
		}
	}
	return ledger.PaymentStructure{
		Advance:       uint8(advance),
		Checkin:       uint8(checkin),
		MidExperience: uint8(mid),
		Completion:    uint8(completion),
	}, nil
}

type walletChoice struct {
	address string
	wallet  *wallets.Wallet
	warning string
}

// experienceWallet provisions the wallet for a draft experience. A failed
// provisioning is reported as a warning and falls back to the explicit
// address when one was given.
func experienceWallet(ctx context.Context, p wallets.Provisioner, explicit, draftID, title string) (walletChoice, error) {
	if strings.TrimSpace(draftID) == "" {
		draftID = uuid.NewString()
	}
	result, err := p.Provision(ctx, draftID, title)
	if err != nil {
		return walletChoice{}, fmt.Errorf("provision wallet: %w", err)
	}

	choice := walletChoice{wallet: result.Wallet}
	switch {
	case result.Failed():
		choice.warning = fmt.Sprintf("wallet provisioning failed for %s: %v", draftID, result.CreateErr)
		if explicit == "" {
			return choice, errors.New("no experience wallet: provisioning failed and -wallet was not set")
		}
		choice.address = explicit
		return choice, nil
	case result.Degraded():
		choice.warning = fmt.Sprintf("wallet %s provisioned without funding", result.Wallet.AccountAddress)
		if result.FundingErr != nil {
			choice.warning += ": " + result.FundingErr.Error()
		}
	}
	choice.address = result.Wallet.AccountAddress
	return choice, nil
}
