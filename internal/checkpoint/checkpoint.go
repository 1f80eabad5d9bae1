package checkpoint

import (
	"encoding/json"
	"errors"
	"time"
)

// Status represents the lifecycle state of a task's checkpoint
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further outcomes may be recorded
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Checkpoint is the durable progress record for one task id
type Checkpoint struct {
	TaskID    string    `json:"task_id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TotalItems     int `json:"total_items"`
	CompletedItems int `json:"completed_items"`
	FailedItems    int `json:"failed_items"`
	SkippedItems   int `json:"skipped_items"`

	Status Status `json:"status"`

	Completed map[string]bool   `json:"completed"`
	Failed    map[string]string `json:"failed"`
	Skipped   map[string]bool   `json:"skipped"`

	// Config is an opaque snapshot of the run configuration, recorded for
	// audit and never reinterpreted.
	Config json.RawMessage `json:"config,omitempty"`
}

// Processed reports whether the item already has a recorded outcome
func (c *Checkpoint) Processed(itemID string) bool {
	if c.Completed[itemID] || c.Skipped[itemID] {
		return true
	}
	_, failed := c.Failed[itemID]
	return failed
}

// ProcessedCount returns the number of items with a recorded outcome
func (c *Checkpoint) ProcessedCount() int {
	return c.CompletedItems + c.FailedItems + c.SkippedItems
}

// OutcomeKind classifies the terminal state of one item
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the per-item result recorded against the checkpoint
type Outcome struct {
	Kind       OutcomeKind
	SkipReason string
	Err        string
	ArtifactID string
	Retries    int
	Duration   time.Duration
}

// Errors surfaced by the manager and stores
var (
	// ErrAlreadyExists means a checkpoint for the task id is already
	// persisted; callers must resume instead of creating.
	ErrAlreadyExists = errors.New("checkpoint already exists")

	// ErrCorruptState means the persisted checkpoint cannot be
	// deserialized. Fatal; never silently repaired.
	ErrCorruptState = errors.New("checkpoint state is corrupt")

	// ErrNotFound means no checkpoint is persisted for the task id.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrFinalized means an outcome was recorded after Finalize, which is
	// a programmer error.
	ErrFinalized = errors.New("checkpoint is finalized")
)

// Store defines durable key-value persistence for checkpoint state.
// One record per task id; no cross-task transactions.
type Store interface {
	// Read returns the persisted state for the task id. The second return
	// is false when no record exists.
	Read(taskID string) ([]byte, bool, error)

	// Write persists the full state for the task id, replacing any
	// previous record, durably before returning.
	Write(taskID string, state []byte) error

	Close() error
}
