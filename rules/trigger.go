package rules

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/queueshift/queueshift/internal/logger"
)

// Evaluator decides whether a rule's trigger fires for a contributor project
// at a given instant. Condition-based rules are compiled to CEL programs
// once, at rule-save time, and cached per rule ID. The evaluator never
// mutates records; every failure mode reads as "does not fire".
type Evaluator struct {
	env      *cel.Env
	schema   FieldSchema
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewEvaluator creates an evaluator over the given field schema.
func NewEvaluator(schema FieldSchema) (*Evaluator, error) {
	// Facts are presented as a single dynamic Record map. The strings
	// extension supplies lowerAscii for case-insensitive contains.
	env, err := cel.NewEnv(
		cel.Variable("Record", cel.DynType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{
		env:      env,
		schema:   schema,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile prepares a rule for evaluation. Condition-based rules have their
// condition rendered to a CEL expression and compiled; time-based rules need
// no program, and any stale one from a type change is dropped.
func (e *Evaluator) Compile(rule *Rule) error {
	if rule.Type != RuleConditionBased {
		e.Remove(rule.ID)
		return nil
	}

	spec, ok := e.schema.Field(rule.Condition.Field)
	if !ok {
		return fmt.Errorf("unknown condition field %q", rule.Condition.Field)
	}

	expr, err := conditionExpr(*rule.Condition, spec)
	if err != nil {
		return err
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error for rule %s: %w", rule.ID, issues.Err())
	}

	prog, err := e.env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return fmt.Errorf("program creation error for rule %s: %w", rule.ID, err)
	}

	e.mu.Lock()
	e.programs[rule.ID] = prog
	e.mu.Unlock()

	return nil
}

// Remove discards the compiled program for a rule, if any.
func (e *Evaluator) Remove(ruleID string) {
	e.mu.Lock()
	delete(e.programs, ruleID)
	e.mu.Unlock()
}

// Fires reports whether the rule's trigger fires for the record at now.
// Every variant first requires the record to currently sit in FromStatus,
// which also makes date triggers naturally idempotent: once transitioned,
// the record no longer matches.
func (e *Evaluator) Fires(rule *Rule, rec *ContributorProject, now time.Time) bool {
	if rec.QueueStatus != rule.FromStatus {
		return false
	}

	switch rule.Type {
	case RuleTimeBased:
		return e.timeFires(rule, rec, now)
	case RuleConditionBased:
		return e.conditionFires(rule, rec)
	}
	return false
}

func (e *Evaluator) timeFires(rule *Rule, rec *ContributorProject, now time.Time) bool {
	t := rule.Time
	if t == nil {
		return false
	}

	switch t.TimeType {
	case TimeDays:
		return now.Sub(statusClock(rec)) >= time.Duration(t.Days)*24*time.Hour
	case TimeDate:
		at, err := combineDateTime(t.SpecificDate, t.SpecificTime)
		if err != nil {
			return false
		}
		return !now.Before(at)
	}
	return false
}

// statusClock is the reference instant for elapsed-time triggers: the moment
// the record entered its current status. Records from stores that never
// tracked status transitions fall back to last-modified, then creation time,
// which is looser (an unrelated edit resets the clock).
func statusClock(rec *ContributorProject) time.Time {
	if rec.StatusChangedAt != nil {
		return *rec.StatusChangedAt
	}
	if !rec.UpdatedAt.IsZero() {
		return rec.UpdatedAt
	}
	return rec.CreatedAt
}

func (e *Evaluator) conditionFires(rule *Rule, rec *ContributorProject) bool {
	e.mu.RLock()
	prog, ok := e.programs[rule.ID]
	e.mu.RUnlock()

	if !ok {
		logger.Warn("rule has no compiled condition, treating as not fired", "ruleId", rule.ID)
		return false
	}

	out, _, err := prog.Eval(map[string]any{"Record": e.facts(rec)})
	if err != nil {
		// Missing or uncoercible field: fail closed, skip the record.
		logger.Debug("condition evaluation skipped", "ruleId", rule.ID, "recordId", rec.ID, "error", err)
		return false
	}

	b, ok := out.Value().(bool)
	return ok && b
}

// facts builds the typed fact map for one record. Values are coerced to the
// schema's declared types; a value that cannot be coerced is omitted, so the
// generated expression errors at evaluation and the record is skipped.
func (e *Evaluator) facts(rec *ContributorProject) map[string]any {
	facts := make(map[string]any, len(e.schema.fields))
	for _, spec := range e.schema.fields {
		raw, ok := fieldValue(rec, spec.Name)
		if !ok {
			continue
		}
		if v, ok := coerce(raw, spec.Type); ok {
			facts[spec.Name] = v
		}
	}
	return facts
}

// fieldValue resolves a schema field name against the record: built-in
// fields come from the struct, everything else from Attributes.
func fieldValue(rec *ContributorProject, name string) (any, bool) {
	switch name {
	case "queue_status":
		return rec.QueueStatus, true
	case "contributor_name":
		return rec.ContributorName, true
	}
	v, ok := rec.Attributes[name]
	return v, ok
}

func coerce(raw any, t FieldType) (any, bool) {
	switch t {
	case FieldText, FieldPicklist:
		switch v := raw.(type) {
		case string:
			return v, true
		case bool, int, int64, float64:
			return fmt.Sprint(v), true
		}

	case FieldNumber:
		switch v := raw.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}

	case FieldBoolean:
		switch v := raw.(type) {
		case bool:
			return v, true
		case string:
			if v == "true" || v == "false" {
				return v == "true", true
			}
		}

	case FieldDate:
		switch v := raw.(type) {
		case time.Time:
			return v, true
		case *time.Time:
			if v != nil {
				return *v, true
			}
		case string:
			if d, err := parseDateValue(v); err == nil {
				return d, true
			}
		}
	}

	return nil, false
}

// conditionExpr renders a validated condition to CEL source. The operator
// table guarantees the operator fits the field type by the time a rule
// reaches compilation.
func conditionExpr(c Condition, spec FieldSpec) (string, error) {
	field := fmt.Sprintf("Record[%s]", strconv.Quote(c.Field))

	if c.Operator == OpContains {
		// Case-insensitive substring match on the stringified value.
		return fmt.Sprintf("%s.lowerAscii().contains(%s)",
			field, strconv.Quote(strings.ToLower(c.Value))), nil
	}

	lit, err := literalFor(c.Value, spec.Type)
	if err != nil {
		return "", err
	}

	switch c.Operator {
	case OpEquals:
		return fmt.Sprintf("%s == %s", field, lit), nil
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", field, lit), nil
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", field, lit), nil
	case OpLessThan:
		return fmt.Sprintf("%s < %s", field, lit), nil
	}

	return "", fmt.Errorf("unsupported operator %q", c.Operator)
}

func literalFor(value string, t FieldType) (string, error) {
	switch t {
	case FieldText, FieldPicklist:
		return strconv.Quote(value), nil

	case FieldNumber:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("condition value %q is not a number", value)
		}
		lit := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.ContainsAny(lit, ".eE") {
			// Force a double literal; facts coerce numbers to float64.
			lit += ".0"
		}
		return lit, nil

	case FieldBoolean:
		if value != "true" && value != "false" {
			return "", fmt.Errorf("condition value %q is not a boolean", value)
		}
		return value, nil

	case FieldDate:
		d, err := parseDateValue(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("timestamp(%s)", strconv.Quote(d.UTC().Format(time.RFC3339))), nil
	}

	return "", fmt.Errorf("unsupported field type %q", t)
}
