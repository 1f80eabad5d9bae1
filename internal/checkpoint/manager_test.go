package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewManager(store, zap.NewNop()), store
}

func TestCreateWorkflow(t *testing.T) {
	m, _ := newTestManager(t)

	cp, err := m.CreateWorkflow("task-1", 5, map[string]string{"collection": "C1"})
	require.NoError(t, err)

	assert.Equal(t, "task-1", cp.TaskID)
	assert.Equal(t, 5, cp.TotalItems)
	assert.Equal(t, StatusRunning, cp.Status)
	assert.Empty(t, cp.Completed)
	assert.Empty(t, cp.Failed)
	assert.Empty(t, cp.Skipped)
	assert.NotEmpty(t, cp.Config, "config snapshot must be recorded")
}

func TestCreateWorkflowRejectsExistingTask(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 5, nil)
	require.NoError(t, err)

	_, err = m.CreateWorkflow("task-1", 5, nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestLoadStateAbsent(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.LoadState("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadStateCorrupt(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, store.Write("task-1", []byte("{definitely not json")))

	_, err := m.LoadState("task-1")
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestLoadStateSurvivesManagerRestart(t *testing.T) {
	store := NewMemoryStore()
	m1 := NewManager(store, zap.NewNop())

	_, err := m1.CreateWorkflow("task-1", 3, nil)
	require.NoError(t, err)
	require.NoError(t, m1.RecordOutcome("task-1", "item-a", Outcome{Kind: OutcomeCompleted}))

	// A fresh manager over the same store sees everything
	m2 := NewManager(store, zap.NewNop())
	cp, err := m2.LoadState("task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.CompletedItems)
	assert.True(t, cp.Completed["item-a"])
}

func TestRecordOutcomeBuckets(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 3, nil)
	require.NoError(t, err)

	require.NoError(t, m.RecordOutcome("task-1", "item-a", Outcome{Kind: OutcomeCompleted}))
	require.NoError(t, m.RecordOutcome("task-1", "item-b", Outcome{Kind: OutcomeSkipped, SkipReason: "no_content"}))
	require.NoError(t, m.RecordOutcome("task-1", "item-c", Outcome{Kind: OutcomeFailed, Err: "analysis exploded"}))

	cp, err := m.LoadState("task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.CompletedItems)
	assert.Equal(t, 1, cp.SkippedItems)
	assert.Equal(t, 1, cp.FailedItems)
	assert.True(t, cp.Completed["item-a"])
	assert.True(t, cp.Skipped["item-b"])
	assert.Equal(t, "analysis exploded", cp.Failed["item-c"])
}

func TestRecordOutcomeIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 3, nil)
	require.NoError(t, err)

	require.NoError(t, m.RecordOutcome("task-1", "item-a", Outcome{Kind: OutcomeCompleted}))
	// Second record for the same item, even with a different kind, is a no-op
	require.NoError(t, m.RecordOutcome("task-1", "item-a", Outcome{Kind: OutcomeFailed, Err: "late error"}))

	cp, err := m.LoadState("task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.CompletedItems)
	assert.Equal(t, 0, cp.FailedItems)
	assert.NotContains(t, cp.Failed, "item-a")
}

func TestRecordOutcomeEnforcesTotalBound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 1, nil)
	require.NoError(t, err)

	require.NoError(t, m.RecordOutcome("task-1", "item-a", Outcome{Kind: OutcomeCompleted}))

	err = m.RecordOutcome("task-1", "item-b", Outcome{Kind: OutcomeCompleted})
	assert.Error(t, err, "recording beyond total_items must fail")
}

func TestGetRemainingPreservesOrder(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 5, nil)
	require.NoError(t, err)

	require.NoError(t, m.RecordOutcome("task-1", "b", Outcome{Kind: OutcomeCompleted}))
	require.NoError(t, m.RecordOutcome("task-1", "d", Outcome{Kind: OutcomeSkipped, SkipReason: "no_content"}))
	require.NoError(t, m.RecordOutcome("task-1", "e", Outcome{Kind: OutcomeFailed, Err: "x"}))

	remaining, err := m.GetRemaining("task-1", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, remaining)
}

func TestFinalizeIsTerminal(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 1, nil)
	require.NoError(t, err)
	require.NoError(t, m.RecordOutcome("task-1", "item-a", Outcome{Kind: OutcomeCompleted}))

	require.NoError(t, m.Finalize("task-1", StatusCompleted))

	err = m.RecordOutcome("task-1", "item-b", Outcome{Kind: OutcomeCompleted})
	assert.ErrorIs(t, err, ErrFinalized)

	err = m.Finalize("task-1", StatusFailed)
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 1, nil)
	require.NoError(t, err)

	assert.Error(t, m.Finalize("task-1", StatusRunning))
}

func TestPauseAndResume(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 2, nil)
	require.NoError(t, err)

	require.NoError(t, m.Pause("task-1"))
	cp, err := m.LoadState("task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, cp.Status)

	cp, err = m.Resume("task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, cp.Status)
}

func TestResumeRejectsFinalizedTask(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 0, nil)
	require.NoError(t, err)
	require.NoError(t, m.Finalize("task-1", StatusCompleted))

	_, err = m.Resume("task-1")
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestBucketsStayDisjoint(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWorkflow("task-1", 10, nil)
	require.NoError(t, err)

	ids := []string{"a", "b", "c", "d"}
	kinds := []OutcomeKind{OutcomeCompleted, OutcomeSkipped, OutcomeFailed, OutcomeCompleted}
	for i, id := range ids {
		require.NoError(t, m.RecordOutcome("task-1", id, Outcome{Kind: kinds[i], Err: "e"}))
	}

	cp, err := m.LoadState("task-1")
	require.NoError(t, err)

	assert.LessOrEqual(t, cp.ProcessedCount(), cp.TotalItems)
	for id := range cp.Completed {
		assert.False(t, cp.Skipped[id])
		assert.NotContains(t, cp.Failed, id)
	}
	for id := range cp.Skipped {
		assert.NotContains(t, cp.Failed, id)
	}
}
