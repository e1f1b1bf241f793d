package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

// TransactionAttempt records one ledger submission made by the controller.
// Exactly one of ResultHash and ErrorClass is set.
type TransactionAttempt struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Operation     enums.TxOperation   `gorm:"column:operation;not null;index:ix_tx_attempts_ref"`
	ExperienceRef string              `gorm:"column:experience_ref;index:ix_tx_attempts_ref"`
	Account       string              `gorm:"column:account;not null"`
	AttemptNumber int                 `gorm:"column:attempt_number;not null"`
	SubmittedAt   time.Time           `gorm:"column:submitted_at;not null"`
	ResultHash    *string             `gorm:"column:result_hash"`
	ErrorClass    *enums.TxErrorClass `gorm:"column:error_class"`
	ErrorMessage  *string             `gorm:"column:error_message"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (TransactionAttempt) TableName() string { return "transaction_attempts" }

func (a *TransactionAttempt) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
