package wallets

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/db/models"
)

// Repository persists wallet rows, one per experience.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByExperienceID(ctx context.Context, experienceID string) (*models.Wallet, error)
	Save(ctx context.Context, wallet *models.Wallet) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByExperienceID returns nil when the experience has no wallet yet.
func (r *repository) FindByExperienceID(ctx context.Context, experienceID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("experience_id = ?", experienceID).Take(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// Save inserts the wallet or updates the row already stored for its experience.
func (r *repository) Save(ctx context.Context, wallet *models.Wallet) error {
	existing, err := r.FindByExperienceID(ctx, wallet.ExperienceID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(wallet).Error
	}
	wallet.ID = existing.ID
	wallet.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Model(existing).Select("*").Omit("id", "created_at").Updates(wallet).Error
}
