package rules

import (
	"context"
	"fmt"
	"time"
)

// Engine owns rule definitions and planning. Rule mutations pass through it
// so validation, condition compilation, and cache invalidation happen in one
// place; Plan is pure with respect to the record store and may run
// concurrently with other Plan calls.
type Engine struct {
	store     RuleStore
	catalog   Catalog
	evaluator *Evaluator
	schema    FieldSchema
	cache     RulesCache
}

// NewEngine creates an engine over the given store and catalog, compiling
// every persisted condition-based rule up front.
func NewEngine(store RuleStore, catalog Catalog, schema FieldSchema) (*Engine, error) {
	evaluator, err := NewEvaluator(schema)
	if err != nil {
		return nil, err
	}

	en := &Engine{
		store:     store,
		catalog:   catalog,
		evaluator: evaluator,
		schema:    schema,
		cache:     NewInMemoryRulesCache(0),
	}

	if err := en.compileAll(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return en, nil
}

func (en *Engine) compileAll() error {
	rules, err := en.store.List()
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := en.evaluator.Compile(rule); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}
	return nil
}

// Schema returns the field schema the engine validates conditions against.
func (en *Engine) Schema() FieldSchema {
	return en.schema
}

// AddRule validates, compiles, and persists a new rule. If the store
// rejects it, the compiled program is rolled back.
func (en *Engine) AddRule(rule *Rule) error {
	if err := ValidateRule(rule, en.schema); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if _, err := en.store.Get(rule.ID); err == nil {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	if err := en.evaluator.Compile(rule); err != nil {
		return fmt.Errorf("rule compilation failed: %w", err)
	}

	if err := en.store.Add(rule); err != nil {
		en.evaluator.Remove(rule.ID)
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRule validates, recompiles, and persists an existing rule. A type
// change resets the other trigger payload as a consequence of validation:
// only the payload matching the new type may be present.
func (en *Engine) UpdateRule(rule *Rule) error {
	if err := ValidateRule(rule, en.schema); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.evaluator.Compile(rule); err != nil {
		return fmt.Errorf("rule compilation failed: %w", err)
	}

	if err := en.store.Update(rule); err != nil {
		return err
	}

	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule and its compiled program. Hard delete; history
// entries referencing it keep their ruleId.
func (en *Engine) DeleteRule(id string) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}
	en.evaluator.Remove(id)
	en.cache.Invalidate()
	return nil
}

// SetEnabled toggles a rule without touching its definition.
func (en *Engine) SetEnabled(id string, enabled bool) error {
	if err := en.store.SetEnabled(id, enabled); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// Rule retrieves one rule.
func (en *Engine) Rule(id string) (*Rule, error) {
	return en.store.Get(id)
}

// Rules lists all rules.
func (en *Engine) Rules() ([]*Rule, error) {
	return en.store.List()
}

// EnabledRules lists enabled rules, served from cache when warm.
func (en *Engine) EnabledRules() ([]*Rule, error) {
	if cached := en.cache.Get(); cached != nil {
		return cached, nil
	}

	rules, err := en.store.ListEnabled()
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	return rules, nil
}

// Plan computes the transition plan for one rule: resolve each filter
// dimension against its own catalog, admit contributor projects that pass
// every active dimension, evaluate the trigger per admitted record, and
// collect the firing records in catalog order.
func (en *Engine) Plan(ctx context.Context, rule *Rule, now time.Time) (*TransitionPlan, error) {
	records, err := en.catalog.ContributorProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contributor projects: %w", err)
	}

	var admittedProjects, admittedObjectives, admittedRecords map[string]bool

	if rule.Filters.Projects.active() {
		projects, err := en.catalog.Projects(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load projects: %w", err)
		}
		ids := make([]string, len(projects))
		for i, p := range projects {
			ids[i] = p.ID
		}
		admittedProjects = toSet(ResolveFilter(rule.Filters.Projects, ids))
	}

	if rule.Filters.ProjectObjectives.active() {
		objectives, err := en.catalog.ProjectObjectives(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load objectives: %w", err)
		}
		ids := make([]string, len(objectives))
		for i, o := range objectives {
			ids[i] = o.ID
		}
		admittedObjectives = toSet(ResolveFilter(rule.Filters.ProjectObjectives, ids))
	}

	if rule.Filters.ContributorProjects.active() {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		admittedRecords = toSet(ResolveFilter(rule.Filters.ContributorProjects, ids))
	}

	plan := &TransitionPlan{
		RuleID:     rule.ID,
		FromStatus: rule.FromStatus,
		ToStatus:   rule.ToStatus,
	}

	for i := range records {
		rec := &records[i]

		// All three dimensions are conjunctive; an inactive dimension
		// imposes nothing.
		if admittedProjects != nil && !admittedProjects[rec.ProjectID] {
			continue
		}
		if admittedObjectives != nil && !admittedObjectives[rec.ObjectiveID] {
			continue
		}
		if admittedRecords != nil && !admittedRecords[rec.ID] {
			continue
		}

		plan.Evaluated++
		if en.evaluator.Fires(rule, rec, now) {
			plan.RecordIDs = append(plan.RecordIDs, rec.ID)
		}
	}

	return plan, nil
}
