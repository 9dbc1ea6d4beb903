package websocket

import (
	"context"
	"time"
)

// RunProgress is the latest snapshot of one emitter run
type RunProgress struct {
	RunID      string    `json:"run_id"`
	Sent       int       `json:"sent"`
	Total      int       `json:"total"`
	LastUpdate string    `json:"last_update,omitempty"`
	State      RunState  `json:"state"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProgressRecorder persists run snapshots (Redis-only or Postgres)
type ProgressRecorder interface {
	SaveProgress(ctx context.Context, data *RunProgress) error
	GetProgress(ctx context.Context, runID string) (*RunProgress, error)
}
