// Package history keeps an audit ledger of upload runs and per-file results.
// It is never read back to resume a run.
package history

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the terminal status of one file
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusFailed   Status = "failed"
)

// Run summarizes one invocation
type Run struct {
	ID           string    `json:"id"`
	Bucket       string    `json:"bucket"`
	Prefix       string    `json:"prefix"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	TotalBytes   int64     `json:"total_bytes"`
	TotalRetries int       `json:"total_retries"`
}

// Record is the outcome of one candidate file within a run
type Record struct {
	RunID     string    `json:"run_id"`
	LocalPath string    `json:"local_path"`
	RemoteKey string    `json:"remote_key"`
	Size      int64     `json:"size"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for history persistence
type Store interface {
	// SaveRun stores a run and all of its records atomically
	SaveRun(run *Run, records []*Record) error
	// LatestRun returns the most recent run, or nil when there is none
	LatestRun() (*Run, error)
	// ListFailed returns failed records of a run in path order
	ListFailed(runID string) ([]*Record, error)

	Close() error
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}
