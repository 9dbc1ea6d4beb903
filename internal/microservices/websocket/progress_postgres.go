package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessRun is the durable row of one emitter run
type ProcessRun struct {
	RunID      string    `gorm:"type:uuid;primaryKey" json:"run_id"`
	Sent       int       `gorm:"default:0" json:"sent"`
	Total      int       `gorm:"default:0" json:"total"`
	LastUpdate string    `gorm:"type:text" json:"last_update"`
	State      string    `gorm:"type:text;not null" json:"state"`
	Error      string    `gorm:"type:text" json:"error"`
	UpdatedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProcessRun) TableName() string {
	return "process_runs"
}

// ProgressPostgresRepo handles PostgreSQL operations for run tracking
type ProgressPostgresRepo struct {
	db *gorm.DB
}

// NewProgressPostgresRepo creates a new PostgreSQL progress repository
func NewProgressPostgresRepo(db *gorm.DB) *ProgressPostgresRepo {
	return &ProgressPostgresRepo{db: db}
}

// Migrate creates the process_runs table
func (r *ProgressPostgresRepo) Migrate() error {
	return r.db.AutoMigrate(&ProcessRun{})
}

// SaveProgress = upsert on run_id
func (r *ProgressPostgresRepo) SaveProgress(ctx context.Context, data *RunProgress) error {
	row := toProcessRun(data)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sent", "total", "last_update", "state", "error", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to save progress to postgres: %w", err)
	}
	return nil
}

// GetProgress returns nil, nil when the run is unknown
func (r *ProgressPostgresRepo) GetProgress(ctx context.Context, runID string) (*RunProgress, error) {
	var row ProcessRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return fromProcessRun(&row), nil
}

func toProcessRun(data *RunProgress) *ProcessRun {
	return &ProcessRun{
		RunID:      data.RunID,
		Sent:       data.Sent,
		Total:      data.Total,
		LastUpdate: data.LastUpdate,
		State:      string(data.State),
		Error:      data.Error,
		UpdatedAt:  data.UpdatedAt,
	}
}

func fromProcessRun(row *ProcessRun) *RunProgress {
	return &RunProgress{
		RunID:      row.RunID,
		Sent:       row.Sent,
		Total:      row.Total,
		LastUpdate: row.LastUpdate,
		State:      RunState(row.State),
		Error:      row.Error,
		UpdatedAt:  row.UpdatedAt,
	}
}
