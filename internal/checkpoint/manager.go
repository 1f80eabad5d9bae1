package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Manager provides durable, resumable per-task progress tracking on top of a
// Store. Every mutating call performs a full read-modify-write against the
// store before returning; no in-memory state survives a restart.
//
// A task id must have exactly one writer at a time. The manager does not
// implement cross-process locking; callers are responsible for not running
// two orchestrators against the same task id.
type Manager struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a checkpoint manager
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateWorkflow persists a fresh checkpoint for the task id. Returns
// ErrAlreadyExists when the task id already has one; callers must resume
// explicitly instead.
func (m *Manager) CreateWorkflow(taskID string, totalItems int, config any) (*Checkpoint, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id cannot be empty")
	}
	if totalItems < 0 {
		return nil, fmt.Errorf("total items cannot be negative")
	}

	_, found, err := m.store.Read(taskID)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrAlreadyExists)
	}

	var snapshot json.RawMessage
	if config != nil {
		snapshot, err = json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("snapshotting config: %w", err)
		}
	}

	now := m.now().UTC()
	cp := &Checkpoint{
		TaskID:     taskID,
		StartedAt:  now,
		UpdatedAt:  now,
		TotalItems: totalItems,
		Status:     StatusRunning,
		Completed:  make(map[string]bool),
		Failed:     make(map[string]string),
		Skipped:    make(map[string]bool),
		Config:     snapshot,
	}

	if err := m.persist(cp); err != nil {
		return nil, err
	}

	m.logger.Info("Created checkpoint",
		zap.String("task_id", taskID),
		zap.Int("total_items", totalItems),
	)
	return cp, nil
}

// LoadState returns the persisted checkpoint, or ErrNotFound when the task id
// has none. Undeserializable state is surfaced as ErrCorruptState; that is
// fatal and never repaired here.
func (m *Manager) LoadState(taskID string) (*Checkpoint, error) {
	state, found, err := m.store.Read(taskID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	var cp Checkpoint
	if err := json.Unmarshal(state, &cp); err != nil {
		return nil, fmt.Errorf("task %s: %w: %v", taskID, ErrCorruptState, err)
	}
	if cp.TaskID != taskID {
		return nil, fmt.Errorf("task %s: %w: record names task %q", taskID, ErrCorruptState, cp.TaskID)
	}

	if cp.Completed == nil {
		cp.Completed = make(map[string]bool)
	}
	if cp.Failed == nil {
		cp.Failed = make(map[string]string)
	}
	if cp.Skipped == nil {
		cp.Skipped = make(map[string]bool)
	}

	return &cp, nil
}

// Resume loads a checkpoint and moves a paused one back to running
func (m *Manager) Resume(taskID string) (*Checkpoint, error) {
	cp, err := m.LoadState(taskID)
	if err != nil {
		return nil, err
	}
	if cp.Status.Terminal() {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrFinalized)
	}

	if cp.Status == StatusPaused {
		cp.Status = StatusRunning
		if err := m.persist(cp); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

// RecordOutcome adds the item to the bucket matching the outcome kind and
// persists the full state synchronously. Idempotent: an item already present
// in any bucket leaves counts and buckets unchanged.
func (m *Manager) RecordOutcome(taskID, itemID string, outcome Outcome) error {
	cp, err := m.LoadState(taskID)
	if err != nil {
		return err
	}
	if cp.Status.Terminal() {
		return fmt.Errorf("task %s: recording outcome for %s: %w", taskID, itemID, ErrFinalized)
	}

	if cp.Processed(itemID) {
		m.logger.Debug("Outcome already recorded",
			zap.String("task_id", taskID),
			zap.String("item_id", itemID),
		)
		return nil
	}

	switch outcome.Kind {
	case OutcomeCompleted:
		cp.Completed[itemID] = true
		cp.CompletedItems++
	case OutcomeSkipped:
		cp.Skipped[itemID] = true
		cp.SkippedItems++
	case OutcomeFailed:
		cp.Failed[itemID] = outcome.Err
		cp.FailedItems++
	default:
		return fmt.Errorf("unknown outcome kind %q", outcome.Kind)
	}

	return m.persist(cp)
}

// GetRemaining returns the candidate ids without a recorded outcome,
// preserving the input order.
func (m *Manager) GetRemaining(taskID string, orderedCandidateIDs []string) ([]string, error) {
	cp, err := m.LoadState(taskID)
	if err != nil {
		return nil, err
	}

	remaining := make([]string, 0, len(orderedCandidateIDs))
	for _, id := range orderedCandidateIDs {
		if !cp.Processed(id) {
			remaining = append(remaining, id)
		}
	}
	return remaining, nil
}

// Finalize transitions the checkpoint to a terminal status. No further
// RecordOutcome calls are valid afterward.
func (m *Manager) Finalize(taskID string, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	cp, err := m.LoadState(taskID)
	if err != nil {
		return err
	}
	if cp.Status.Terminal() {
		return fmt.Errorf("task %s: %w", taskID, ErrFinalized)
	}

	cp.Status = status
	return m.persist(cp)
}

// Pause marks a non-terminal checkpoint as paused, for cancellation between
// items.
func (m *Manager) Pause(taskID string) error {
	cp, err := m.LoadState(taskID)
	if err != nil {
		return err
	}
	if cp.Status.Terminal() {
		return fmt.Errorf("task %s: %w", taskID, ErrFinalized)
	}

	cp.Status = StatusPaused
	return m.persist(cp)
}

func (m *Manager) persist(cp *Checkpoint) error {
	cp.UpdatedAt = m.now().UTC()

	if err := m.checkInvariants(cp); err != nil {
		return err
	}

	state, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("serializing checkpoint %s: %w", cp.TaskID, err)
	}
	return m.store.Write(cp.TaskID, state)
}

// checkInvariants verifies bucket disjointness and count bounds before any
// state reaches the store.
func (m *Manager) checkInvariants(cp *Checkpoint) error {
	if cp.ProcessedCount() > cp.TotalItems {
		return fmt.Errorf("checkpoint %s: processed count %d exceeds total %d",
			cp.TaskID, cp.ProcessedCount(), cp.TotalItems)
	}
	for id := range cp.Completed {
		if cp.Skipped[id] {
			return fmt.Errorf("checkpoint %s: item %s in both completed and skipped", cp.TaskID, id)
		}
		if _, ok := cp.Failed[id]; ok {
			return fmt.Errorf("checkpoint %s: item %s in both completed and failed", cp.TaskID, id)
		}
	}
	for id := range cp.Skipped {
		if _, ok := cp.Failed[id]; ok {
			return fmt.Errorf("checkpoint %s: item %s in both skipped and failed", cp.TaskID, id)
		}
	}
	return nil
}
