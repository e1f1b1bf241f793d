package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

type fakeAttemptRepository struct {
	createFn func(ctx context.Context, attempt *models.TransactionAttempt) error
}

func (f *fakeAttemptRepository) WithTx(*gorm.DB) AttemptRepository {
	return f
}

func (f *fakeAttemptRepository) Create(ctx context.Context, attempt *models.TransactionAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, attempt)
	}
	return nil
}

func (f *fakeAttemptRepository) DeleteSubmittedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeAttemptRepository) ListByExperience(context.Context, enums.TxOperation, string) ([]models.TransactionAttempt, error) {
	return nil, nil
}

func TestAttemptLogRecordsFailureClass(t *testing.T) {
	repo := &fakeAttemptRepository{}
	log, err := NewAttemptLog(repo)
	require.NoError(t, err)

	var created *models.TransactionAttempt
	repo.createFn = func(_ context.Context, attempt *models.TransactionAttempt) error {
		created = attempt
		return nil
	}

	_, err = log.Record(context.Background(), RecordAttemptInput{
		Operation:     enums.TxOperationCreateExperience,
		Account:       "0xABCDEF",
		AttemptNumber: 2,
		ErrorClass:    enums.TxErrorRateLimited,
		Err:           errors.New(strings.Repeat("r", maxAttemptErrorLen+1)),
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "0xabcdef", created.Account)
	assert.Nil(t, created.ResultHash)
	require.NotNil(t, created.ErrorClass)
	assert.Equal(t, enums.TxErrorRateLimited, *created.ErrorClass)
	assert.Len(t, *created.ErrorMessage, maxAttemptErrorLen)
	assert.False(t, created.SubmittedAt.IsZero())
}

func TestAttemptLogValidation(t *testing.T) {
	log, err := NewAttemptLog(&fakeAttemptRepository{})
	require.NoError(t, err)

	base := RecordAttemptInput{
		Operation:     enums.TxOperationBookExperience,
		Account:       "0xabc",
		AttemptNumber: 1,
		ResultHash:    "0x01",
	}
	cases := map[string]func(in *RecordAttemptInput){
		"bad operation":  func(in *RecordAttemptInput) { in.Operation = "mint" },
		"no account":     func(in *RecordAttemptInput) { in.Account = " " },
		"zero attempt":   func(in *RecordAttemptInput) { in.AttemptNumber = 0 },
		"hash and class": func(in *RecordAttemptInput) { in.ErrorClass = enums.TxErrorPaused },
		"neither":        func(in *RecordAttemptInput) { in.ResultHash = "" },
		"bad class": func(in *RecordAttemptInput) {
			in.ResultHash = ""
			in.ErrorClass = "boom"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := log.Record(context.Background(), in)
			assert.Error(t, err)
		})
	}

	_, err = NewAttemptLog(nil)
	assert.Error(t, err)
}

func TestAttemptRepositoryListsInSubmissionOrder(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TransactionAttempt{}))

	log, err := NewAttemptLog(NewAttemptRepository(db))
	require.NoError(t, err)
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		in := RecordAttemptInput{
			Operation:     enums.TxOperationBookExperience,
			ExperienceRef: "7",
			Account:       "0xabc",
			AttemptNumber: i,
			SubmittedAt:   start.Add(time.Duration(i) * 2 * time.Second),
			ErrorClass:    enums.TxErrorRateLimited,
		}
		if i == 3 {
			in.ErrorClass = ""
			in.ResultHash = "0xfeed"
		}
		_, err := log.Record(context.Background(), in)
		require.NoError(t, err)
	}
	_, err = log.Record(context.Background(), RecordAttemptInput{
		Operation: enums.TxOperationBookExperience, ExperienceRef: "8", Account: "0xabc", AttemptNumber: 1, ResultHash: "0x1",
	})
	require.NoError(t, err)

	history, err := log.History(context.Background(), enums.TxOperationBookExperience, "7")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{history[0].AttemptNumber, history[1].AttemptNumber, history[2].AttemptNumber})
	require.NotNil(t, history[2].ResultHash)
	assert.Equal(t, "0xfeed", *history[2].ResultHash)

	_, err = log.History(context.Background(), "mint", "7")
	assert.Error(t, err)
}

func TestAttemptRepositoryDeletesOnlyOlderAttempts(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TransactionAttempt{}))

	repo := NewAttemptRepository(db)
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{cutoff.Add(-48 * time.Hour), cutoff.Add(-time.Hour), cutoff.Add(time.Hour)} {
		require.NoError(t, repo.Create(context.Background(), &models.TransactionAttempt{
			Operation:     enums.TxOperationCreateExperience,
			ExperienceRef: "9",
			Account:       "0xabc",
			AttemptNumber: i + 1,
			SubmittedAt:   at,
		}))
	}

	deleted, err := repo.DeleteSubmittedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	left, err := repo.ListByExperience(context.Background(), enums.TxOperationCreateExperience, "9")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 3, left[0].AttemptNumber)
}
