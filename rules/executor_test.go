package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// flakyCatalog wraps the in-memory catalog with failure injection, standing
// in for an unreachable or contended record store.
type flakyCatalog struct {
	*InMemoryCatalog
	failUpdates map[string]bool
	failList    bool
}

func (c *flakyCatalog) ContributorProjects(ctx context.Context) ([]ContributorProject, error) {
	if c.failList {
		return nil, errors.New("record store unavailable")
	}
	return c.InMemoryCatalog.ContributorProjects(ctx)
}

func (c *flakyCatalog) UpdateQueueStatus(ctx context.Context, id, from, to string) error {
	if c.failUpdates[id] {
		return fmt.Errorf("write conflict on %s", id)
	}
	return c.InMemoryCatalog.UpdateQueueStatus(ctx, id, from, to)
}

func mustStatus(t *testing.T, c *InMemoryCatalog, id, want string) {
	t.Helper()
	rec, ok := c.Record(id)
	if !ok {
		t.Fatalf("record %s not found", id)
	}
	if rec.QueueStatus != want {
		t.Errorf("record %s status = %q, want %q", id, rec.QueueStatus, want)
	}
}

// TestExecuteSafetyGate verifies a batch containing a disabled rule performs
// zero mutations and writes no history until the caller confirms.
func TestExecuteSafetyGate(t *testing.T) {
	now := time.Now()
	catalog := seededCatalog(now)
	rule := validTimeRule()
	en := newTestEngine(t, catalog, rule)
	if err := en.SetEnabled(rule.ID, false); err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}

	history := NewInMemoryHistoryStore()
	coord := NewCoordinator(en, history)

	result, err := coord.Execute(context.Background(), ExecutionRequest{
		RuleIDs:     []string{rule.ID},
		TriggeredBy: TriggeredManually,
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !result.ConfirmationRequired {
		t.Error("ConfirmationRequired should be set")
	}
	if len(result.DisabledRules) != 1 || result.DisabledRules[0].ID != rule.ID {
		t.Errorf("DisabledRules = %v, want [%s]", result.DisabledRules, rule.ID)
	}
	if result.Processed != 0 || result.Updated != 0 {
		t.Errorf("gated batch mutated: processed=%d updated=%d", result.Processed, result.Updated)
	}

	mustStatus(t, catalog, "cp1", "Calibration Queue")
	mustStatus(t, catalog, "cp2", "Calibration Queue")

	entries, err := history.List("", 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("gated batch wrote %d history entries, want 0", len(entries))
	}

	// The disabled rule stays disabled.
	stored, _ := en.Rule(rule.ID)
	if stored.Enabled {
		t.Error("gated batch must not enable the rule")
	}
}

// TestExecuteConfirmationEnablesAndRuns verifies the confirmed path: the
// disabled rule is enabled first, then executed like any other.
func TestExecuteConfirmationEnablesAndRuns(t *testing.T) {
	now := time.Now()
	catalog := seededCatalog(now)
	rule := validTimeRule()
	en := newTestEngine(t, catalog, rule)
	if err := en.SetEnabled(rule.ID, false); err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}

	history := NewInMemoryHistoryStore()
	coord := NewCoordinator(en, history)

	result, err := coord.Execute(context.Background(), ExecutionRequest{
		RuleIDs:        []string{rule.ID},
		TriggeredBy:    TriggeredManually,
		EnableDisabled: true,
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if result.ConfirmationRequired {
		t.Error("confirmed batch should not ask again")
	}
	if result.Processed != 2 || result.Updated != 2 {
		t.Errorf("processed=%d updated=%d, want 2/2", result.Processed, result.Updated)
	}

	mustStatus(t, catalog, "cp1", "Production Queue")
	mustStatus(t, catalog, "cp2", "Production Queue")

	stored, _ := en.Rule(rule.ID)
	if !stored.Enabled {
		t.Error("rule should remain enabled after a confirmed run")
	}

	entries, _ := history.List(rule.ID, 0)
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].TriggeredBy != TriggeredManually {
		t.Errorf("TriggeredBy = %s, want %s", entries[0].TriggeredBy, TriggeredManually)
	}
}

// TestExecutePartialFailure verifies one record's write failure never blocks
// the rest of the plan and lands in the entry's error list.
func TestExecutePartialFailure(t *testing.T) {
	now := time.Now()
	catalog := &flakyCatalog{
		InMemoryCatalog: seededCatalog(now),
		failUpdates:     map[string]bool{"cp1": true},
	}
	rule := validTimeRule()
	en := newTestEngine(t, catalog, rule)
	history := NewInMemoryHistoryStore()
	coord := NewCoordinator(en, history)

	result, err := coord.Execute(context.Background(), ExecutionRequest{
		RuleIDs:     []string{rule.ID},
		TriggeredBy: TriggeredManually,
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if result.Processed != 2 || result.Updated != 1 {
		t.Errorf("processed=%d updated=%d, want 2/1", result.Processed, result.Updated)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one", result.Errors)
	}
	if result.Errors[0].RecordID != "cp1" || result.Errors[0].RuleID != rule.ID {
		t.Errorf("error = %+v, want rule %s record cp1", result.Errors[0], rule.ID)
	}

	mustStatus(t, catalog.InMemoryCatalog, "cp1", "Calibration Queue")
	mustStatus(t, catalog.InMemoryCatalog, "cp2", "Production Queue")

	entries, _ := history.List(rule.ID, 0)
	if len(entries) != 1 || len(entries[0].Errors) != 1 {
		t.Errorf("history should carry the per-record error, got %+v", entries)
	}
}

// TestExecuteSequentialRulesSeePriorMutations verifies rules in a batch run
// in order against live state: a record moved by the first rule is picked up
// by the second.
func TestExecuteSequentialRulesSeePriorMutations(t *testing.T) {
	now := time.Now()
	catalog := seededCatalog(now)
	promote := validTimeRule() // Calibration Queue -> Production Queue

	archive := validConditionRule()
	archive.ID = "r-archive"
	archive.FromStatus = "Production Queue"
	archive.ToStatus = "Archive Queue"
	archive.Condition = &Condition{Field: "queue_status", Operator: OpEquals, Value: "Production Queue"}

	en := newTestEngine(t, catalog, promote, archive)
	history := NewInMemoryHistoryStore()
	coord := NewCoordinator(en, history)

	result, err := coord.Execute(context.Background(), ExecutionRequest{
		RuleIDs:     []string{promote.ID, archive.ID},
		TriggeredBy: TriggeredManually,
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	// cp1/cp2 promoted by the first rule, then archived together with cp3
	// by the second. Updated counts both hops.
	if result.Updated != 5 {
		t.Errorf("Updated = %d, want 5", result.Updated)
	}
	for _, id := range []string{"cp1", "cp2", "cp3"} {
		mustStatus(t, catalog, id, "Archive Queue")
	}
}

// TestExecutePerRuleHistory verifies each rule in a batch gets its own
// entry, and listing returns newest first.
func TestExecutePerRuleHistory(t *testing.T) {
	now := time.Now()
	catalog := seededCatalog(now)
	first := validTimeRule()
	second := validConditionRule()
	second.FromStatus = "Production Queue"
	second.ToStatus = "Archive Queue"
	second.Condition = &Condition{Field: "contributor_name", Operator: OpContains, Value: "nguyen"}

	en := newTestEngine(t, catalog, first, second)
	history := NewInMemoryHistoryStore()
	coord := NewCoordinator(en, history)

	if _, err := coord.Execute(context.Background(), ExecutionRequest{
		RuleIDs:     []string{first.ID, second.ID},
		TriggeredBy: TriggeredByScheduler,
	}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	entries, err := history.List("", 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want one per rule", len(entries))
	}
	if entries[0].RuleID != second.ID || entries[1].RuleID != first.ID {
		t.Errorf("entries ordered %s, %s; want newest first", entries[0].RuleID, entries[1].RuleID)
	}
	for _, e := range entries {
		if e.ID == "" {
			t.Error("entry is missing an ID")
		}
		if e.TriggeredBy != TriggeredByScheduler {
			t.Errorf("TriggeredBy = %s, want %s", e.TriggeredBy, TriggeredByScheduler)
		}
	}

	scoped, _ := history.List(first.ID, 0)
	if len(scoped) != 1 || scoped[0].RuleID != first.ID {
		t.Errorf("List(%s) = %+v, want only that rule's entry", first.ID, scoped)
	}
}

// TestExecuteRunLevelFailure verifies an unreachable record store aborts the
// batch with a partial result; history written before the failure is kept.
func TestExecuteRunLevelFailure(t *testing.T) {
	now := time.Now()
	catalog := &flakyCatalog{InMemoryCatalog: seededCatalog(now), failList: true}
	rule := validTimeRule()
	en := newTestEngine(t, catalog, rule)
	history := NewInMemoryHistoryStore()
	coord := NewCoordinator(en, history)

	result, err := coord.Execute(context.Background(), ExecutionRequest{
		RuleIDs:     []string{rule.ID},
		TriggeredBy: TriggeredManually,
	})
	if err == nil {
		t.Fatal("Execute() should surface the run-level failure")
	}
	if result == nil {
		t.Fatal("partial result should still be returned")
	}
	if len(result.Errors) == 0 {
		t.Error("run-level failure should be recorded in the result errors")
	}

	entries, _ := history.List(rule.ID, 0)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want the partial entry", len(entries))
	}
	if len(entries[0].Errors) == 0 {
		t.Error("partial entry should record the failure")
	}
}

// TestExecuteCanceledContext verifies cancellation stops issuing mutations.
func TestExecuteCanceledContext(t *testing.T) {
	now := time.Now()
	catalog := seededCatalog(now)
	rule := validTimeRule()
	en := newTestEngine(t, catalog, rule)
	coord := NewCoordinator(en, NewInMemoryHistoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := coord.Execute(ctx, ExecutionRequest{
		RuleIDs:     []string{rule.ID},
		TriggeredBy: TriggeredManually,
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if result.Updated != 0 {
		t.Errorf("Updated = %d, want 0 after cancellation", result.Updated)
	}
	mustStatus(t, catalog, "cp1", "Calibration Queue")
	mustStatus(t, catalog, "cp2", "Calibration Queue")
}

// TestExecuteUnknownRule verifies a batch naming a missing rule fails whole.
func TestExecuteUnknownRule(t *testing.T) {
	en := newTestEngine(t, NewInMemoryCatalog(), validTimeRule())
	coord := NewCoordinator(en, NewInMemoryHistoryStore())

	if _, err := coord.Execute(context.Background(), ExecutionRequest{
		RuleIDs:     []string{"r-time", "r-missing"},
		TriggeredBy: TriggeredManually,
	}); err == nil {
		t.Error("Execute() should reject a batch naming an unknown rule")
	}
}

// TestExecuteEnabled verifies the scheduler entry point runs every enabled
// rule and nothing when there are none.
func TestExecuteEnabled(t *testing.T) {
	now := time.Now()
	catalog := seededCatalog(now)
	rule := validTimeRule()
	paused := validConditionRule()
	en := newTestEngine(t, catalog, rule, paused)
	if err := en.SetEnabled(paused.ID, false); err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}

	history := NewInMemoryHistoryStore()
	coord := NewCoordinator(en, history)

	result, err := coord.ExecuteEnabled(context.Background(), TriggeredByScheduler)
	if err != nil {
		t.Fatalf("ExecuteEnabled() failed: %v", err)
	}
	if result.ConfirmationRequired {
		t.Error("scheduled runs must never trip the confirmation gate")
	}
	if result.Updated != 2 {
		t.Errorf("Updated = %d, want 2", result.Updated)
	}

	entries, _ := history.List("", 0)
	if len(entries) != 1 || entries[0].RuleID != rule.ID {
		t.Errorf("entries = %+v, want one entry for the enabled rule only", entries)
	}

	// Empty store: nothing runs, nothing is recorded.
	emptyEngine := newTestEngine(t, NewInMemoryCatalog())
	emptyHistory := NewInMemoryHistoryStore()
	emptyResult, err := NewCoordinator(emptyEngine, emptyHistory).ExecuteEnabled(context.Background(), TriggeredByScheduler)
	if err != nil {
		t.Fatalf("ExecuteEnabled() on empty store failed: %v", err)
	}
	if emptyResult.Processed != 0 || emptyResult.Updated != 0 {
		t.Errorf("empty store result = %+v, want zeros", emptyResult)
	}
	if empties, _ := emptyHistory.List("", 0); len(empties) != 0 {
		t.Error("empty run should write no history")
	}
}
