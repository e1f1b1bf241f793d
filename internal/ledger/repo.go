package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

// AttemptRepository persists submission attempts.
type AttemptRepository interface {
	WithTx(tx *gorm.DB) AttemptRepository
	Create(ctx context.Context, attempt *models.TransactionAttempt) error
	ListByExperience(ctx context.Context, operation enums.TxOperation, experienceRef string) ([]models.TransactionAttempt, error)
	DeleteSubmittedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository returns an attempt repository bound to the provided database.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) WithTx(tx *gorm.DB) AttemptRepository {
	if tx == nil {
		return r
	}
	return &attemptRepository{db: tx}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.TransactionAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) ListByExperience(ctx context.Context, operation enums.TxOperation, experienceRef string) ([]models.TransactionAttempt, error) {
	var attempts []models.TransactionAttempt
	if err := r.db.WithContext(ctx).
		Where("operation = ? AND experience_ref = ?", operation, experienceRef).
		Order("submitted_at ASC").
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *attemptRepository) DeleteSubmittedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("submitted_at < ?", cutoff).
		Delete(&models.TransactionAttempt{})
	return res.RowsAffected, res.Error
}
