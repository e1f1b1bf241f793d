package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

// Wallet is the custodial account provisioned for one experience.
type Wallet struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ExperienceID   string             `gorm:"column:experience_id;not null;uniqueIndex:ux_wallets_experience"`
	AccountAddress string             `gorm:"column:account_address"`
	AccountName    string             `gorm:"column:account_name;not null"`
	Network        string             `gorm:"column:network;not null"`
	Status         enums.WalletStatus `gorm:"column:status;not null"`
	FundingTxHash  *string            `gorm:"column:funding_tx_hash"`
	LastError      *string            `gorm:"column:last_error"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
