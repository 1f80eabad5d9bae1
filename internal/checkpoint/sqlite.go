package checkpoint

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite checkpoint store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		task_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_updated_at ON checkpoints(updated_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Read returns the persisted state for a task id
func (s *SQLiteStore) Read(taskID string) ([]byte, bool, error) {
	if s.closed {
		return nil, false, fmt.Errorf("checkpoint store is closed")
	}

	var state []byte
	var found bool
	err := s.retryOnBusy(func() error {
		var raw string
		row := s.db.QueryRow(`SELECT state FROM checkpoints WHERE task_id = ?`, taskID)
		err := row.Scan(&raw)
		if err == sql.ErrNoRows {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		state = []byte(raw)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read checkpoint %s: %w", taskID, err)
	}
	return state, found, nil
}

// Write persists the full state for a task id, replacing any previous record
func (s *SQLiteStore) Write(taskID string, state []byte) error {
	if s.closed {
		return fmt.Errorf("checkpoint store is closed")
	}

	// Serialize writes to avoid SQLITE_BUSY from concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.retryOnBusy(func() error {
		query := `
		INSERT INTO checkpoints (task_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
		`
		_, err := s.db.Exec(query, taskID, string(state), time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", taskID, err)
	}
	return nil
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		if isSQLiteBusyError(err) && attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			time.Sleep(delay)
			continue
		}

		return err
	}

	return err
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.closed = true
	return s.db.Close()
}
