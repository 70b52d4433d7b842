package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary counts record outcomes of a run.
type RunSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// SyncRun is the persisted history of one import run.
type SyncRun struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Partner    string     `db:"partner" json:"partner"`
	EntityType string     `db:"entity_type" json:"entity_type"`
	Status     RunStatus  `db:"status" json:"status"`
	Summary    RunSummary `db:"-" json:"summary"`
	Changes    []Change   `db:"-" json:"changes"`
	Error      *string    `db:"error" json:"error,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
