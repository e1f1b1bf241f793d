package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

// ExperienceMirroredEvent is emitted once a confirmed experience has a catalog mirror.
type ExperienceMirroredEvent struct {
	MirrorID               uuid.UUID              `json:"mirror_id"`
	BlockchainExperienceID string                 `json:"blockchain_experience_id"`
	TransactionHash        string                 `json:"transaction_hash"`
	Creator                string                 `json:"creator"`
	Title                  string                 `json:"title"`
	City                   string                 `json:"city,omitempty"`
	Status                 enums.ExperienceStatus `json:"status"`
	Derivation             string                 `json:"derivation"`
}

// BookingConfirmedEvent is emitted after a participant's booking receipt is confirmed.
type BookingConfirmedEvent struct {
	BlockchainExperienceID string    `json:"blockchain_experience_id"`
	MirrorID               uuid.UUID `json:"mirror_id"`
	Participant            string    `json:"participant"`
	Nickname               string    `json:"nickname"`
	TransactionHash        string    `json:"transaction_hash"`
	PaymentWei             string    `json:"payment_wei"`
	ConfirmedAt            time.Time `json:"confirmed_at"`
}

// WalletProvisionedEvent is emitted when a custodial wallet is first stored for an experience.
type WalletProvisionedEvent struct {
	ExperienceID   string             `json:"experience_id"`
	AccountAddress string             `json:"account_address"`
	AccountName    string             `json:"account_name"`
	Network        string             `json:"network"`
	Status         enums.WalletStatus `json:"status"`
	FundingTxHash  *string            `json:"funding_tx_hash,omitempty"`
}
