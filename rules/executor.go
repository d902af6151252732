package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/queueshift/queueshift/internal/logger"
)

// defaultMutationWorkers bounds concurrent record mutations within one plan.
const defaultMutationWorkers = 4

// ExecutionRequest describes one execution batch. EnableDisabled is the
// caller's explicit confirmation to enable any disabled rules in the set
// before executing them; without it, a batch containing disabled rules is
// answered with a confirmation request and nothing is mutated.
type ExecutionRequest struct {
	RuleIDs        []string
	TriggeredBy    TriggerSource
	EnableDisabled bool
}

// Coordinator applies transition plans against the record store. Batches
// are serialized by an internal mutex so a manual run can never race a
// scheduled one; rules within a batch run strictly in order, so a later
// rule always plans against the post-mutation state.
type Coordinator struct {
	engine  *Engine
	history HistoryStore
	workers int
	mu      sync.Mutex
}

// NewCoordinator creates a coordinator over an engine and a history store.
func NewCoordinator(engine *Engine, history HistoryStore) *Coordinator {
	return &Coordinator{
		engine:  engine,
		history: history,
		workers: defaultMutationWorkers,
	}
}

// Execute runs one batch: safety gate, then per-rule plan/apply/record.
// Per-record mutation failures are collected, never fatal. A run-level
// failure (catalog unreachable) aborts the remaining rules but the history
// written so far is kept, and a partial entry records the failed rule.
func (c *Coordinator) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rules := make([]*Rule, 0, len(req.RuleIDs))
	var disabled []RuleRef
	for _, id := range req.RuleIDs {
		rule, err := c.engine.Rule(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load rule %s: %w", id, err)
		}
		rules = append(rules, rule)
		if !rule.Enabled {
			disabled = append(disabled, RuleRef{ID: rule.ID, Name: rule.Name})
		}
	}

	if len(disabled) > 0 && !req.EnableDisabled {
		// Deferred action, not an error: the caller must confirm enabling
		// the paused rules. Zero mutations, no history entry.
		return &ExecutionResult{
			ConfirmationRequired: true,
			DisabledRules:        disabled,
		}, nil
	}

	for _, ref := range disabled {
		if err := c.engine.SetEnabled(ref.ID, true); err != nil {
			return nil, fmt.Errorf("failed to enable rule %s: %w", ref.ID, err)
		}
		logger.Info("rule enabled before execution", "ruleId", ref.ID, "name", ref.Name)
	}

	start := time.Now()
	result := &ExecutionResult{Errors: []ExecutionError{}}

	for _, rule := range rules {
		entry, err := c.executeRule(ctx, rule, req.TriggeredBy)
		if entry != nil {
			result.Processed += entry.RulesProcessed
			result.Updated += entry.RulesUpdated
			result.Errors = append(result.Errors, entry.Errors...)
			if histErr := c.history.Append(entry); histErr != nil {
				logger.Error("failed to persist execution entry", "ruleId", rule.ID, "error", histErr)
				result.Errors = append(result.Errors, ExecutionError{
					RuleID:  rule.ID,
					Message: fmt.Sprintf("history write failed: %v", histErr),
				})
			}
		}
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("execution aborted at rule %s: %w", rule.ID, err)
		}
	}

	result.Duration = time.Since(start)
	logger.Info("execution batch complete",
		"triggeredBy", req.TriggeredBy,
		"rules", len(rules),
		"processed", result.Processed,
		"updated", result.Updated,
		"errors", len(result.Errors),
		"duration", result.Duration)
	return result, nil
}

// executeRule plans and applies one rule, returning its history entry. The
// returned error is run-level (planning infrastructure failure); per-record
// failures live inside the entry.
func (c *Coordinator) executeRule(ctx context.Context, rule *Rule, src TriggerSource) (*ExecutionEntry, error) {
	ruleStart := time.Now()

	entry := &ExecutionEntry{
		ID:            uuid.New().String(),
		RuleID:        rule.ID,
		ExecutionTime: ruleStart,
		TriggeredBy:   src,
		Errors:        []ExecutionError{},
	}

	plan, err := c.engine.Plan(ctx, rule, ruleStart)
	if err != nil {
		entry.DurationMS = time.Since(ruleStart).Milliseconds()
		entry.Errors = append(entry.Errors, ExecutionError{
			RuleID:  rule.ID,
			Message: err.Error(),
		})
		return entry, err
	}

	entry.RulesProcessed = plan.Evaluated

	// Records in a plan are independent, so mutations run on a bounded
	// worker pool. Results land in an index-stable slice to keep the error
	// list deterministic. Cancellation stops issuing new mutations; those
	// already in flight complete and are counted.
	results := make([]error, len(plan.RecordIDs))
	issued := 0

	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, recordID := range plan.RecordIDs {
		if ctx.Err() != nil {
			break
		}
		issued++
		i, recordID := i, recordID
		g.Go(func() error {
			results[i] = c.engine.catalog.UpdateQueueStatus(ctx, recordID, plan.FromStatus, plan.ToStatus)
			return nil
		})
	}
	_ = g.Wait()

	for i := 0; i < issued; i++ {
		if results[i] != nil {
			entry.Errors = append(entry.Errors, ExecutionError{
				RuleID:   rule.ID,
				RecordID: plan.RecordIDs[i],
				Message:  results[i].Error(),
			})
			continue
		}
		entry.RulesUpdated++
	}

	entry.DurationMS = time.Since(ruleStart).Milliseconds()
	return entry, nil
}

// ExecuteEnabled runs every currently-enabled rule. This is the entry point
// for scheduled runs; disabled rules are never candidates, so the safety
// gate cannot trip.
func (c *Coordinator) ExecuteEnabled(ctx context.Context, src TriggerSource) (*ExecutionResult, error) {
	enabled, err := c.engine.EnabledRules()
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}

	if len(enabled) == 0 {
		return &ExecutionResult{Errors: []ExecutionError{}}, nil
	}

	ids := make([]string, len(enabled))
	for i, rule := range enabled {
		ids[i] = rule.ID
	}

	return c.Execute(ctx, ExecutionRequest{
		RuleIDs:     ids,
		TriggeredBy: src,
	})
}
