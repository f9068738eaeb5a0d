package diagnostics

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ExchangeRun represents one row of the exchange_runs table: a single
// driver invocation identified by its run ID, tracking how far it got.
type ExchangeRun struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string     `gorm:"column:run_id;type:varchar(64);uniqueIndex"`
	GridDims   JSONField  `gorm:"column:grid_dims;type:json"`
	StepsPlan  int        `gorm:"column:steps_plan"`
	StepsDone  int        `gorm:"column:steps_done"`
	StartedAt  time.Time  `gorm:"column:started_at;autoCreateTime"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

// TableName returns the table name for ExchangeRun.
func (ExchangeRun) TableName() string {
	return "exchange_runs"
}

// InvariantViolationRecord represents one row of the
// invariant_violation_records table: a single AppError finding reported by
// Migration, GhostBuilder, or GhostRefresh during a step.
type InvariantViolationRecord struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string    `gorm:"column:run_id;type:varchar(64);index"`
	Rank       int       `gorm:"column:rank"`
	Step       int       `gorm:"column:step"`
	Code       string    `gorm:"column:code;type:varchar(64)"`
	Message    string    `gorm:"column:message;type:text"`
	Detail     string    `gorm:"column:detail;type:text"`
	RecordedAt time.Time `gorm:"column:recorded_at;autoCreateTime"`
}

// TableName returns the table name for InvariantViolationRecord.
func (InvariantViolationRecord) TableName() string {
	return "invariant_violation_records"
}

// JSONField stores an arbitrary JSON-encodable value as a database column;
// ExchangeRun uses it for the run's process-grid shape.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalGridDims encodes a process-grid shape into a JSONField.
func MarshalGridDims(dims [3]int) JSONField {
	b, _ := json.Marshal(dims)
	return JSONField(b)
}
