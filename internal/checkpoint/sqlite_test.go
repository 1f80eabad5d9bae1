package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSQLiteStoreReadMissing(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	_, found, err := store.Read("absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStoreWriteReadRoundtrip(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	require.NoError(t, store.Write("task-1", []byte(`{"task_id":"task-1"}`)))

	state, found, err := store.Read("task-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"task_id":"task-1"}`, string(state))
}

func TestSQLiteStoreWriteReplaces(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	require.NoError(t, store.Write("task-1", []byte(`{"v":1}`)))
	require.NoError(t, store.Write("task-1", []byte(`{"v":2}`)))

	state, found, err := store.Read("task-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"v":2}`, string(state))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Write("task-1", []byte(`{"v":1}`)))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	state, found, err := reopened.Read("task-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"v":1}`, string(state))
}

func TestSQLiteStoreClosedErrors(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	require.NoError(t, store.Close())

	assert.Error(t, store.Write("task-1", []byte("{}")))
	_, _, err := store.Read("task-1")
	assert.Error(t, err)
}

func TestSQLiteStoreIsolatesTasks(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	require.NoError(t, store.Write("task-1", []byte(`{"v":1}`)))
	require.NoError(t, store.Write("task-2", []byte(`{"v":2}`)))

	state, found, err := store.Read("task-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"v":1}`, string(state))
}
