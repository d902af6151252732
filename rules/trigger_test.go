package rules

import (
	"testing"
	"time"
)

func newTestEvaluator(t *testing.T, rulesToCompile ...*Rule) *Evaluator {
	t.Helper()

	e, err := NewEvaluator(DefaultFieldSchema())
	if err != nil {
		t.Fatalf("NewEvaluator() failed: %v", err)
	}
	for _, rule := range rulesToCompile {
		if err := e.Compile(rule); err != nil {
			t.Fatalf("Compile(%s) failed: %v", rule.ID, err)
		}
	}
	return e
}

func recordInStatus(status string, changedAgo time.Duration, now time.Time) *ContributorProject {
	changed := now.Add(-changedAgo)
	return &ContributorProject{
		ID:              "cp-1",
		ProjectID:       "p-1",
		QueueStatus:     status,
		StatusChangedAt: &changed,
		CreatedAt:       now.Add(-30 * 24 * time.Hour),
		UpdatedAt:       changed,
	}
}

// TestTimeTriggerDays verifies the elapsed-days trigger: fires only when
// the record has sat in fromStatus for at least the configured days.
func TestTimeTriggerDays(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	rule := validTimeRule() // 7 days, Calibration Queue -> Production Queue
	e := newTestEvaluator(t, rule)

	testCases := []struct {
		name   string
		record *ContributorProject
		want   bool
	}{
		{"8 days elapsed", recordInStatus("Calibration Queue", 8*24*time.Hour, now), true},
		{"exactly 7 days", recordInStatus("Calibration Queue", 7*24*time.Hour, now), true},
		{"6 days elapsed", recordInStatus("Calibration Queue", 6*24*time.Hour, now), false},
		{"wrong status", recordInStatus("Production Queue", 8*24*time.Hour, now), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.Fires(rule, tc.record, now); got != tc.want {
				t.Errorf("Fires() = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestTimeTriggerDaysClockFallback verifies the elapsed clock falls back to
// last-modified, then creation time, when the store never tracked a status
// change.
func TestTimeTriggerDaysClockFallback(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	rule := validTimeRule()
	e := newTestEvaluator(t, rule)

	rec := &ContributorProject{
		ID:          "cp-1",
		QueueStatus: "Calibration Queue",
		CreatedAt:   now.Add(-20 * 24 * time.Hour),
		UpdatedAt:   now.Add(-2 * 24 * time.Hour),
	}
	if e.Fires(rule, rec, now) {
		t.Error("recently modified record should not fire via fallback clock")
	}

	rec.UpdatedAt = now.Add(-9 * 24 * time.Hour)
	if !e.Fires(rule, rec, now) {
		t.Error("record untouched for 9 days should fire via fallback clock")
	}

	rec.UpdatedAt = time.Time{}
	if !e.Fires(rule, rec, now) {
		t.Error("record should fall back to creation time when never modified")
	}
}

// TestTimeTriggerDate verifies the fixed-date trigger and its natural
// idempotence: once the status moved, the record no longer matches.
func TestTimeTriggerDate(t *testing.T) {
	rule := validTimeRule()
	rule.Time = &TimeTrigger{TimeType: TimeDate, SpecificDate: "2026-06-01", SpecificTime: "09:00"}
	e := newTestEvaluator(t, rule)

	before := time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)
	after := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)
	rec := recordInStatus("Calibration Queue", 24*time.Hour, after)

	if e.Fires(rule, rec, before) {
		t.Error("date trigger should not fire before the configured instant")
	}
	if !e.Fires(rule, rec, after) {
		t.Error("date trigger should fire after the configured instant")
	}

	// Apply the transition: the record leaves fromStatus and can never
	// re-fire, however far past the date now is.
	rec.QueueStatus = "Production Queue"
	if e.Fires(rule, rec, after.Add(365*24*time.Hour)) {
		t.Error("date trigger should be idempotent once the status moved")
	}
}

// TestConditionTriggers verifies operator evaluation per field type,
// including case-insensitive contains and boolean equality.
func TestConditionTriggers(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name      string
		condition Condition
		attrs     map[string]any
		record    func(*ContributorProject)
		want      bool
	}{
		{
			name:      "number greater_than fires",
			condition: Condition{Field: "accuracy_score", Operator: OpGreaterThan, Value: "95"},
			attrs:     map[string]any{"accuracy_score": 97.5},
			want:      true,
		},
		{
			name:      "number greater_than below threshold",
			condition: Condition{Field: "accuracy_score", Operator: OpGreaterThan, Value: "95"},
			attrs:     map[string]any{"accuracy_score": 91.0},
			want:      false,
		},
		{
			name:      "number less_than with integer-typed value",
			condition: Condition{Field: "tasks_completed", Operator: OpLessThan, Value: "10"},
			attrs:     map[string]any{"tasks_completed": 3},
			want:      true,
		},
		{
			name:      "number equals with string-typed value",
			condition: Condition{Field: "hours_worked", Operator: OpEquals, Value: "40"},
			attrs:     map[string]any{"hours_worked": "40"},
			want:      true,
		},
		{
			name:      "text contains is case-insensitive",
			condition: Condition{Field: "contributor_name", Operator: OpContains, Value: "GARCIA"},
			record:    func(r *ContributorProject) { r.ContributorName = "Ana Garcia" },
			want:      true,
		},
		{
			name:      "text contains no match",
			condition: Condition{Field: "contributor_name", Operator: OpContains, Value: "smith"},
			record:    func(r *ContributorProject) { r.ContributorName = "Ana Garcia" },
			want:      false,
		},
		{
			name:      "text not_equals",
			condition: Condition{Field: "email", Operator: OpNotEquals, Value: "a@example.com"},
			attrs:     map[string]any{"email": "b@example.com"},
			want:      true,
		},
		{
			name:      "boolean is true",
			condition: Condition{Field: "active", Operator: OpEquals, Value: "true"},
			attrs:     map[string]any{"active": true},
			want:      true,
		},
		{
			name:      "boolean is false",
			condition: Condition{Field: "active", Operator: OpNotEquals, Value: "true"},
			attrs:     map[string]any{"active": true},
			want:      false,
		},
		{
			name:      "boolean from string value",
			condition: Condition{Field: "onboarding_complete", Operator: OpEquals, Value: "false"},
			attrs:     map[string]any{"onboarding_complete": "false"},
			want:      true,
		},
		{
			name:      "date less_than",
			condition: Condition{Field: "start_date", Operator: OpLessThan, Value: "2026-01-01"},
			attrs:     map[string]any{"start_date": "2025-03-10"},
			want:      true,
		},
		{
			name:      "date greater_than",
			condition: Condition{Field: "last_activity_date", Operator: OpGreaterThan, Value: "2026-06-01"},
			attrs:     map[string]any{"last_activity_date": "2026-05-01"},
			want:      false,
		},
		{
			name:      "missing field fails closed",
			condition: Condition{Field: "accuracy_score", Operator: OpGreaterThan, Value: "50"},
			attrs:     nil,
			want:      false,
		},
		{
			name:      "uncoercible value fails closed",
			condition: Condition{Field: "accuracy_score", Operator: OpGreaterThan, Value: "50"},
			attrs:     map[string]any{"accuracy_score": "n/a"},
			want:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rule := validConditionRule()
			rule.ID = "r-" + tc.name
			rule.Condition = &tc.condition

			e := newTestEvaluator(t, rule)

			rec := recordInStatus(rule.FromStatus, time.Hour, now)
			rec.Attributes = tc.attrs
			if tc.record != nil {
				tc.record(rec)
			}

			if got := e.Fires(rule, rec, now); got != tc.want {
				t.Errorf("Fires() = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestConditionRequiresFromStatus verifies a matching condition still does
// not fire when the record is not in fromStatus.
func TestConditionRequiresFromStatus(t *testing.T) {
	rule := validConditionRule()
	e := newTestEvaluator(t, rule)

	rec := recordInStatus("Production Queue", time.Hour, time.Now())
	rec.Attributes = map[string]any{"accuracy_score": 99.0}

	if e.Fires(rule, rec, time.Now()) {
		t.Error("condition should not fire for a record outside fromStatus")
	}
}

// TestUncompiledConditionFailsClosed verifies a condition rule with no
// compiled program reads as not fired rather than panicking.
func TestUncompiledConditionFailsClosed(t *testing.T) {
	rule := validConditionRule()
	e := newTestEvaluator(t) // nothing compiled

	rec := recordInStatus(rule.FromStatus, time.Hour, time.Now())
	rec.Attributes = map[string]any{"accuracy_score": 99.0}

	if e.Fires(rule, rec, time.Now()) {
		t.Error("uncompiled condition rule should not fire")
	}
}

// TestCompileTypeChangeDropsProgram verifies switching a rule to time-based
// discards its stale condition program.
func TestCompileTypeChangeDropsProgram(t *testing.T) {
	rule := validConditionRule()
	e := newTestEvaluator(t, rule)

	asTime := validTimeRule()
	asTime.ID = rule.ID
	if err := e.Compile(asTime); err != nil {
		t.Fatalf("Compile(time-based) failed: %v", err)
	}

	e.mu.RLock()
	_, exists := e.programs[rule.ID]
	e.mu.RUnlock()
	if exists {
		t.Error("stale condition program should have been dropped")
	}
}

// TestEvaluatorDoesNotMutateRecord verifies evaluation is read-only.
func TestEvaluatorDoesNotMutateRecord(t *testing.T) {
	now := time.Now()
	rule := validConditionRule()
	e := newTestEvaluator(t, rule)

	rec := recordInStatus(rule.FromStatus, time.Hour, now)
	rec.Attributes = map[string]any{"accuracy_score": 97.0}
	statusBefore := rec.QueueStatus
	changedBefore := *rec.StatusChangedAt

	e.Fires(rule, rec, now)

	if rec.QueueStatus != statusBefore {
		t.Error("evaluation mutated the record status")
	}
	if !rec.StatusChangedAt.Equal(changedBefore) {
		t.Error("evaluation mutated the record timestamp")
	}
	if rec.Attributes["accuracy_score"] != 97.0 {
		t.Error("evaluation mutated the record attributes")
	}
}
