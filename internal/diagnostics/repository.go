package diagnostics

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/openmd/haloexchange/pkg/errors"
)

// Repository is the diagnostics persistence surface: starting a run,
// recording findings against it, and closing it out. A driver's
// FindingRecorder is satisfied by RecordFindings alone, so callers that
// only need that one method can depend on the narrower interface instead.
type Repository interface {
	StartRun(ctx context.Context, runID string, gridDims [3]int, stepsPlan int) error
	RecordFindings(ctx context.Context, runID string, rank, step int, findings []*apperrors.AppError) error
	FinishRun(ctx context.Context, runID string, stepsDone int) error
	ViolationsForRun(ctx context.Context, runID string) ([]InvariantViolationRecord, error)
	RunStatus(ctx context.Context, runID string) (*ExchangeRun, error)
}

// GormRepository implements Repository over a GORM database handle.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps an already-opened GORM database, typically the
// one NewGormDB returns.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// StartRun inserts the exchange_runs row for a new driver invocation.
func (r *GormRepository) StartRun(ctx context.Context, runID string, gridDims [3]int, stepsPlan int) error {
	run := ExchangeRun{
		RunID:     runID,
		GridDims:  MarshalGridDims(gridDims),
		StepsPlan: stepsPlan,
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to start diagnostics run: %w", err)
	}
	return nil
}

// RecordFindings inserts one invariant_violation_records row per non-nil
// finding. It satisfies driver.FindingRecorder.
func (r *GormRepository) RecordFindings(ctx context.Context, runID string, rank, step int, findings []*apperrors.AppError) error {
	var rows []InvariantViolationRecord
	for _, f := range findings {
		if f == nil {
			continue
		}
		detail := ""
		if f.Err != nil {
			detail = f.Err.Error()
		}
		rows = append(rows, InvariantViolationRecord{
			RunID:   runID,
			Rank:    rank,
			Step:    step,
			Code:    f.Code,
			Message: f.Message,
			Detail:  detail,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to record diagnostics findings: %w", err)
	}
	return nil
}

// FinishRun stamps an exchange_runs row with its completed step count and
// finish time.
func (r *GormRepository) FinishRun(ctx context.Context, runID string, stepsDone int) error {
	result := r.db.WithContext(ctx).
		Model(&ExchangeRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"steps_done":  stepsDone,
			"finished_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish diagnostics run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("diagnostics run not found: %s", runID)
	}
	return nil
}

// RunStatus retrieves the exchange_runs row for a run, for a status page
// or health check to report progress against.
func (r *GormRepository) RunStatus(ctx context.Context, runID string) (*ExchangeRun, error) {
	var run ExchangeRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query run status: %w", err)
	}
	return &run, nil
}

// ViolationsForRun retrieves every recorded finding for a run, ordered by
// step then rank, for post-hoc inspection.
func (r *GormRepository) ViolationsForRun(ctx context.Context, runID string) ([]InvariantViolationRecord, error) {
	var rows []InvariantViolationRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("step ASC, rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics findings: %w", err)
	}
	return rows, nil
}
