package diagnostics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/openmd/haloexchange/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&ExchangeRun{}, &InvariantViolationRecord{})
	require.NoError(t, err)

	return db
}

func TestGormRepository_StartAndFinishRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.StartRun(ctx, "run-1", [3]int{2, 1, 1}, 10))
	require.NoError(t, repo.FinishRun(ctx, "run-1", 10))

	var run ExchangeRun
	require.NoError(t, db.Where("run_id = ?", "run-1").First(&run).Error)
	assert.Equal(t, 10, run.StepsPlan)
	assert.Equal(t, 10, run.StepsDone)
	assert.NotNil(t, run.FinishedAt)
}

func TestGormRepository_FinishRunMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)

	err := repo.FinishRun(context.Background(), "does-not-exist", 1)
	assert.Error(t, err)
}

func TestGormRepository_RecordFindingsSkipsNilsAndEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.StartRun(ctx, "run-2", [3]int{1, 1, 1}, 5))

	require.NoError(t, repo.RecordFindings(ctx, "run-2", 0, 3, nil))

	findings := []*apperrors.AppError{
		nil,
		apperrors.New(apperrors.CodeInvariantViolation, "particle outside owned box"),
	}
	require.NoError(t, repo.RecordFindings(ctx, "run-2", 0, 3, findings))

	rows, err := repo.ViolationsForRun(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, apperrors.CodeInvariantViolation, rows[0].Code)
	assert.Equal(t, 3, rows[0].Step)
}

func TestGormRepository_RunStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.StartRun(ctx, "run-4", [3]int{2, 2, 1}, 50))

	run, err := repo.RunStatus(ctx, "run-4")
	require.NoError(t, err)
	assert.Equal(t, "run-4", run.RunID)
	assert.Equal(t, 50, run.StepsPlan)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, repo.FinishRun(ctx, "run-4", 50))
	run, err = repo.RunStatus(ctx, "run-4")
	require.NoError(t, err)
	assert.Equal(t, 50, run.StepsDone)
	assert.NotNil(t, run.FinishedAt)
}

func TestGormRepository_RunStatusMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)

	_, err := repo.RunStatus(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestGormRepository_ViolationsForRunOrdersByStepThenRank(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.StartRun(ctx, "run-3", [3]int{2, 1, 1}, 5))

	require.NoError(t, repo.RecordFindings(ctx, "run-3", 1, 2, []*apperrors.AppError{
		apperrors.New(apperrors.CodeInvariantViolation, "rank1 step2"),
	}))
	require.NoError(t, repo.RecordFindings(ctx, "run-3", 0, 1, []*apperrors.AppError{
		apperrors.New(apperrors.CodeInvariantViolation, "rank0 step1"),
	}))

	rows, err := repo.ViolationsForRun(ctx, "run-3")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Step)
	assert.Equal(t, 2, rows[1].Step)
}
