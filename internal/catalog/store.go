package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
	"github.com/angelmondragon/experiences-backend/pkg/pagination"
)

// ErrNotFound is returned when no mirror matches the lookup.
var ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "experience not found")

// Store is the catalog's document surface over the experience mirror table.
type Store interface {
	WithTx(tx *gorm.DB) Store
	Upsert(ctx context.Context, mirror *models.ExperienceMirror) (*models.ExperienceMirror, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ExperienceMirror, error)
	GetByLedgerID(ctx context.Context, ledgerID string) (*models.ExperienceMirror, error)
	Query(ctx context.Context, input QueryInput) (*QueryResult, error)
	AppendParticipant(ctx context.Context, id uuid.UUID, participant models.MirrorParticipant) (*models.ExperienceMirror, error)
}

// QueryInput filters the catalog listing. Empty filters match everything.
type QueryInput struct {
	Status     *enums.ExperienceStatus
	City       string
	Pagination pagination.Params
}

// QueryResult is one page of mirrors, newest first.
type QueryResult struct {
	Items      []models.ExperienceMirror
	NextCursor string
}

type store struct {
	db *gorm.DB
}

// NewStore returns a catalog store bound to the provided database.
func NewStore(conn *gorm.DB) (Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("catalog db required")
	}
	return &store{db: conn}, nil
}

func (s *store) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return &store{db: tx}
}

func (s *store) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return s.db
	}
	return s.db.WithContext(ctx)
}

// Upsert writes the mirror keyed by its ledger id when it has one, so a
// reconciliation that runs twice for the same experience updates in place.
func (s *store) Upsert(ctx context.Context, mirror *models.ExperienceMirror) (*models.ExperienceMirror, error) {
	if mirror == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mirror is required")
	}
	if !mirror.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid experience status %q", mirror.Status))
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findMirror(tx, mirror)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := tx.Create(mirror).Error; err != nil {
				if db.IsUniqueViolation(err, "ux_experience_mirrors_ledger_id") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "experience already mirrored")
				}
				return err
			}
			return nil
		}

		mirror.ID = existing.ID
		mirror.CreatedAt = existing.CreatedAt
		if len(mirror.Participants) == 0 {
			mirror.Participants = existing.Participants
			mirror.CurrentParticipants = existing.CurrentParticipants
		}
		return tx.Model(existing).Select("*").Omit("id", "created_at").Updates(mirror).Error
	})
	if err != nil {
		return nil, err
	}
	return mirror, nil
}

func findMirror(tx *gorm.DB, mirror *models.ExperienceMirror) (*models.ExperienceMirror, error) {
	query := tx
	switch {
	case mirror.HasLedgerID():
		query = query.Where("blockchain_experience_id = ?", mirror.BlockchainExperienceID)
	case mirror.ID != uuid.Nil:
		query = query.Where("id = ?", mirror.ID)
	default:
		return nil, nil
	}
	var existing models.ExperienceMirror
	if err := query.Take(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &existing, nil
}

func (s *store) Get(ctx context.Context, id uuid.UUID) (*models.ExperienceMirror, error) {
	var mirror models.ExperienceMirror
	if err := s.conn(ctx).Where("id = ?", id).Take(&mirror).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mirror, nil
}

func (s *store) GetByLedgerID(ctx context.Context, ledgerID string) (*models.ExperienceMirror, error) {
	trimmed := strings.TrimSpace(ledgerID)
	if trimmed == "" {
		return nil, ErrNotFound
	}
	var mirror models.ExperienceMirror
	if err := s.conn(ctx).Where("blockchain_experience_id = ?", trimmed).Take(&mirror).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mirror, nil
}

func (s *store) Query(ctx context.Context, input QueryInput) (*QueryResult, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid experience status %q", *input.Status))
	}
	after, err := input.Pagination.Keyset()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	size := input.Pagination.Size()
	query := s.conn(ctx).Model(&models.ExperienceMirror{})
	if input.Status != nil {
		query = query.Where("status = ?", *input.Status)
	}
	if city := strings.TrimSpace(input.City); city != "" {
		query = query.Where("LOWER(city) = ?", strings.ToLower(city))
	}
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var rows []models.ExperienceMirror
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(size + 1).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	items, next := pagination.Trim(rows, size, func(m models.ExperienceMirror) pagination.Keyset {
		return pagination.Keyset{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return &QueryResult{Items: items, NextCursor: next}, nil
}

// AppendParticipant records a confirmed booking. Appending the same address
// twice is a no-op.
func (s *store) AppendParticipant(ctx context.Context, id uuid.UUID, participant models.MirrorParticipant) (*models.ExperienceMirror, error) {
	if err := participant.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid participant")
	}
	if participant.JoinedAt.IsZero() {
		participant.JoinedAt = time.Now().UTC()
	}

	var mirror models.ExperienceMirror
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("id = ?", id)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.Take(&mirror).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if mirror.Participants.Contains(participant.Address) {
			return nil
		}

		mirror.Participants = append(mirror.Participants, participant)
		mirror.CurrentParticipants = int64(len(mirror.Participants))
		if mirror.Status == enums.ExperienceStatusActive && mirror.CurrentParticipants >= mirror.MaxParticipants {
			mirror.Status = enums.ExperienceStatusFull
		}
		return tx.Model(&mirror).Updates(map[string]any{
			"participants":         mirror.Participants,
			"current_participants": mirror.CurrentParticipants,
			"status":               mirror.Status,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &mirror, nil
}
