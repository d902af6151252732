package rules

import (
	"fmt"
	"sync"
	"time"
)

// RuleStore manages rule persistence. The store owns audit metadata:
// CreatedAt is stamped on Add, UpdatedAt on every mutation thereafter.
type RuleStore interface {
	// Add persists a new rule.
	Add(rule *Rule) error

	// Get retrieves a rule by ID.
	Get(id string) (*Rule, error)

	// List returns all rules, oldest first.
	List() ([]*Rule, error)

	// ListEnabled returns all enabled rules, oldest first.
	ListEnabled() ([]*Rule, error)

	// Update replaces an existing rule, preserving creation metadata.
	Update(rule *Rule) error

	// SetEnabled flips the enabled toggle without touching the rest of the
	// definition.
	SetEnabled(id string, enabled bool) error

	// Delete removes a rule. Irreversible; history entries referencing the
	// rule keep their ruleId for audit.
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore with a mutex-guarded map plus an
// insertion-order index so listings are deterministic.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	order []string
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add persists a new rule, stamping CreatedAt. UpdatedAt stays nil until the
// first edit.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	stored := *rule
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = nil
	s.rules[rule.ID] = &stored
	s.order = append(s.order, rule.ID)

	rule.CreatedAt = stored.CreatedAt
	rule.UpdatedAt = nil
	return nil
}

// Get retrieves a rule by ID.
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	cp := *rule
	return &cp, nil
}

// List returns all rules in insertion order.
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.rules[id]
		out = append(out, &cp)
	}
	return out, nil
}

// ListEnabled returns enabled rules in insertion order.
func (s *InMemoryRuleStore) ListEnabled() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, id := range s.order {
		if s.rules[id].Enabled {
			cp := *s.rules[id]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Update replaces an existing rule, preserving CreatedAt/CreatedBy and
// stamping UpdatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s not found", rule.ID)
	}

	now := time.Now()
	stored := *rule
	stored.CreatedAt = existing.CreatedAt
	stored.CreatedBy = existing.CreatedBy
	stored.UpdatedAt = &now
	s.rules[rule.ID] = &stored

	rule.CreatedAt = stored.CreatedAt
	rule.CreatedBy = stored.CreatedBy
	rule.UpdatedAt = &now
	return nil
}

// SetEnabled flips the enabled toggle.
func (s *InMemoryRuleStore) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("rule %s not found", id)
	}

	now := time.Now()
	rule.Enabled = enabled
	rule.UpdatedAt = &now
	return nil
}

// Delete removes a rule.
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s not found", id)
	}

	delete(s.rules, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
