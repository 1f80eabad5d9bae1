package checkpoint

import "sync"

// MemoryStore implements Store in memory. State does not survive a process
// restart; intended for tests and rehearsal runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Read(taskID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.records[taskID]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(state))
	copy(cp, state)
	return cp, true, nil
}

func (s *MemoryStore) Write(taskID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(state))
	copy(cp, state)
	s.records[taskID] = cp
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
