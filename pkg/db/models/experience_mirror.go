package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

// ExperienceMirror is the catalog copy of a ledger experience. It is keyed by a
// store-generated id and is never authoritative for money.
type ExperienceMirror struct {
	ID                     uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	BlockchainExperienceID string                 `gorm:"column:blockchain_experience_id;index:ix_experience_mirrors_ledger_id"`
	TransactionHash        string                 `gorm:"column:transaction_hash;not null"`
	Creator                string                 `gorm:"column:creator;not null"`
	WalletAddress          string                 `gorm:"column:wallet_address"`
	Title                  string                 `gorm:"column:title;not null"`
	Description            string                 `gorm:"column:description"`
	Location               string                 `gorm:"column:location"`
	City                   string                 `gorm:"column:city;index:ix_experience_mirrors_status_city"`
	PriceWei               string                 `gorm:"column:price_wei;not null"`
	PriceDisplay           string                 `gorm:"column:price_display;not null"`
	MaxParticipants        int64                  `gorm:"column:max_participants;not null"`
	CurrentParticipants    int64                  `gorm:"column:current_participants;not null;default:0"`
	Participants           MirrorParticipants     `gorm:"column:participants;type:jsonb"`
	Status                 enums.ExperienceStatus `gorm:"column:status;not null;index:ix_experience_mirrors_status_city"`
	ScheduledAt            time.Time              `gorm:"column:scheduled_at;not null"`
	PaymentAdvance         uint8                  `gorm:"column:payment_advance;not null"`
	PaymentCheckin         uint8                  `gorm:"column:payment_checkin;not null"`
	PaymentMidExperience   uint8                  `gorm:"column:payment_mid_experience;not null"`
	PaymentCompletion      uint8                  `gorm:"column:payment_completion;not null"`
	CreatedAt              time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (ExperienceMirror) TableName() string { return "experience_mirrors" }

// BeforeCreate assigns the store-generated id.
func (m *ExperienceMirror) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// HasLedgerID reports whether the mirror is backed by a ledger experience.
// Demo rows seeded straight into the catalog have none.
func (m *ExperienceMirror) HasLedgerID() bool {
	return m != nil && m.BlockchainExperienceID != ""
}

// MirrorParticipant is one confirmed booking as seen by the catalog.
type MirrorParticipant struct {
	Address  string    `json:"address"`
	Nickname string    `json:"nickname"`
	TxHash   string    `json:"txHash"`
	JoinedAt time.Time `json:"joinedAt"`
}

// MirrorParticipants is stored as a JSON array.
type MirrorParticipants []MirrorParticipant

func (p MirrorParticipants) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (p *MirrorParticipants) Scan(src any) error {
	if src == nil {
		*p = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported participants type %T", src)
	}
	if len(raw) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, p)
}

// Contains reports whether address already booked, case-insensitively.
func (p MirrorParticipants) Contains(address string) bool {
	for _, participant := range p {
		if equalFoldASCII(participant.Address, address) {
			return true
		}
	}
	return false
}

var errEmptyAddress = errors.New("participant address is required")

// Validate checks the minimum data needed to list a participant.
func (m MirrorParticipant) Validate() error {
	if m.Address == "" {
		return errEmptyAddress
	}
	return nil
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
