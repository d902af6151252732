package rules

import (
	"fmt"
	"sync"
)

// HistoryStore persists execution history. Entries are append-only: nothing
// updates or deletes them, they exist for audit and troubleshooting.
type HistoryStore interface {
	// Append persists one execution entry.
	Append(entry *ExecutionEntry) error

	// List returns entries newest first. An empty ruleID returns entries for
	// all rules; limit <= 0 means no limit.
	List(ruleID string, limit int) ([]*ExecutionEntry, error)
}

// InMemoryHistoryStore implements HistoryStore with a mutex-guarded slice.
type InMemoryHistoryStore struct {
	entries []*ExecutionEntry
	mu      sync.RWMutex
}

// NewInMemoryHistoryStore creates an empty in-memory history store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{}
}

// Append persists one entry.
func (s *InMemoryHistoryStore) Append(entry *ExecutionEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("execution entry requires an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

// List returns entries newest first, optionally filtered by rule ID.
func (s *InMemoryHistoryStore) List(ruleID string, limit int) ([]*ExecutionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ExecutionEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if ruleID != "" && e.RuleID != ruleID {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
