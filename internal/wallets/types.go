package wallets

import (
	"context"
	"time"

	"github.com/angelmondragon/experiences-backend/pkg/custody"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

// Wallet is the provisioning result shape shared by the local service and the
// remote endpoint.
type Wallet struct {
	ExperienceID   string             `json:"experienceId"`
	AccountAddress string             `json:"accountAddress"`
	AccountName    string             `json:"accountName"`
	Network        string             `json:"network"`
	Status         enums.WalletStatus `json:"status"`
	FundingTxHash  string             `json:"fundingTxHash,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// ProvisionResult wraps the wallet with the non-fatal failures that shaped it.
type ProvisionResult struct {
	Wallet *Wallet
	// CreateErr is set when the custodial account could not be created.
	CreateErr error
	// FundingErr is set when the faucet request failed.
	FundingErr error
	// PersistErr is set when the wallet row or its event could not be stored.
	PersistErr error
}

// Degraded reports an account that exists but whose funding or bookkeeping failed.
func (r *ProvisionResult) Degraded() bool {
	if r == nil || r.Wallet == nil || r.Wallet.AccountAddress == "" {
		return false
	}
	return r.FundingErr != nil || r.PersistErr != nil
}

// Failed reports an account creation failure.
func (r *ProvisionResult) Failed() bool {
	return r != nil && r.Wallet != nil && r.Wallet.Status == enums.WalletStatusError
}

// Provisioner returns the custodial wallet for an experience, creating it on
// first use. Account creation failures come back as a Wallet with status
// error and a nil error.
type Provisioner interface {
	Provision(ctx context.Context, experienceID, titleHint string) (*ProvisionResult, error)
}

// Custody is the account backend the local service drives.
type Custody interface {
	GetOrCreateAccount(ctx context.Context, name string) (*custody.Account, error)
	RequestFaucet(ctx context.Context, address string) (string, error)
	Network() string
}

func fromModel(m *models.Wallet) *Wallet {
	w := &Wallet{
		ExperienceID:   m.ExperienceID,
		AccountAddress: m.AccountAddress,
		AccountName:    m.AccountName,
		Network:        m.Network,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}
	if m.FundingTxHash != nil {
		w.FundingTxHash = *m.FundingTxHash
	}
	return w
}
