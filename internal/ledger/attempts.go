package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

const maxAttemptErrorLen = 512

// AttemptLog records every submission the controller makes.
type AttemptLog interface {
	Record(ctx context.Context, input RecordAttemptInput) (*models.TransactionAttempt, error)
	History(ctx context.Context, operation enums.TxOperation, experienceRef string) ([]models.TransactionAttempt, error)
}

type attemptLog struct {
	repo AttemptRepository
	now  func() time.Time
}

// RecordAttemptInput carries one attempt outcome. Exactly one of ResultHash
// and ErrorClass must be set.
type RecordAttemptInput struct {
	Operation     enums.TxOperation
	ExperienceRef string
	Account       string
	AttemptNumber int
	SubmittedAt   time.Time
	ResultHash    string
	ErrorClass    enums.TxErrorClass
	Err           error
}

// NewAttemptLog wires an attempt log with the provided repository.
func NewAttemptLog(repo AttemptRepository) (AttemptLog, error) {
	if repo == nil {
		return nil, fmt.Errorf("attempt repository required")
	}
	return &attemptLog{repo: repo, now: time.Now}, nil
}

func (l *attemptLog) Record(ctx context.Context, input RecordAttemptInput) (*models.TransactionAttempt, error) {
	if !input.Operation.IsValid() {
		return nil, fmt.Errorf("invalid tx operation %q", input.Operation)
	}
	if strings.TrimSpace(input.Account) == "" {
		return nil, fmt.Errorf("account is required")
	}
	if input.AttemptNumber < 1 {
		return nil, fmt.Errorf("attempt number must be positive")
	}
	hasHash := input.ResultHash != ""
	hasClass := input.ErrorClass != ""
	if hasHash == hasClass {
		return nil, fmt.Errorf("exactly one of result hash and error class is required")
	}
	if hasClass && !input.ErrorClass.IsValid() {
		return nil, fmt.Errorf("invalid tx error class %q", input.ErrorClass)
	}

	submittedAt := input.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = l.now()
	}
	attempt := &models.TransactionAttempt{
		Operation:     input.Operation,
		ExperienceRef: input.ExperienceRef,
		Account:       strings.ToLower(input.Account),
		AttemptNumber: input.AttemptNumber,
		SubmittedAt:   submittedAt.UTC(),
	}
	if hasHash {
		hash := input.ResultHash
		attempt.ResultHash = &hash
	} else {
		class := input.ErrorClass
		attempt.ErrorClass = &class
		if input.Err != nil {
			msg := input.Err.Error()
			if len(msg) > maxAttemptErrorLen {
				msg = msg[:maxAttemptErrorLen]
			}
			attempt.ErrorMessage = &msg
		}
	}

	if err := l.repo.Create(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (l *attemptLog) History(ctx context.Context, operation enums.TxOperation, experienceRef string) ([]models.TransactionAttempt, error) {
	if !operation.IsValid() {
		return nil, fmt.Errorf("invalid tx operation %q", operation)
	}
	return l.repo.ListByExperience(ctx, operation, experienceRef)
}
