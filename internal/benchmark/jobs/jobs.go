package jobs

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("job not found")

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "Completed"
	StatusFailed     = "Benchmarking-Failed"
)

// Job is one benchmark run over a workspace.
type Job struct {
	ID          string
	WorkspaceID string
	Database    string
	DataKey     string
	Status      string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
