package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const maxRuleNameLength = 200

// ValidateRule checks a rule definition against the field schema before it
// is persisted. The engine rejects invalid rules here so that planning and
// execution never have to re-check them.
func ValidateRule(r *Rule, schema FieldSchema) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(r.Name) > maxRuleNameLength {
		return fmt.Errorf("rule name length %d exceeds maximum of %d characters", len(r.Name), maxRuleNameLength)
	}

	if r.Type != RuleTimeBased && r.Type != RuleConditionBased {
		return fmt.Errorf("invalid rule type %q (must be %q or %q)", r.Type, RuleTimeBased, RuleConditionBased)
	}

	if r.FromStatus == "" {
		return fmt.Errorf("fromStatus is required")
	}
	if r.ToStatus == "" {
		return fmt.Errorf("toStatus is required")
	}
	if r.FromStatus == r.ToStatus {
		return fmt.Errorf("fromStatus and toStatus must differ (both are %q)", r.FromStatus)
	}

	switch r.Type {
	case RuleTimeBased:
		if r.Condition != nil {
			return fmt.Errorf("time-based rule must not carry a condition")
		}
		if err := validateTimeTrigger(r.Time); err != nil {
			return err
		}
	case RuleConditionBased:
		if r.Time != nil {
			return fmt.Errorf("condition-based rule must not carry a time trigger")
		}
		if err := validateCondition(r.Condition, schema); err != nil {
			return err
		}
	}

	return validateFilterSet(r.Filters)
}

func validateTimeTrigger(t *TimeTrigger) error {
	if t == nil {
		return fmt.Errorf("time-based rule requires a time trigger")
	}

	switch t.TimeType {
	case TimeDays:
		if t.Days <= 0 {
			return fmt.Errorf("days must be a positive integer, got %d", t.Days)
		}
	case TimeDate:
		if _, err := combineDateTime(t.SpecificDate, t.SpecificTime); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid time type %q (must be %q or %q)", t.TimeType, TimeDays, TimeDate)
	}

	return nil
}

func validateCondition(c *Condition, schema FieldSchema) error {
	if c == nil {
		return fmt.Errorf("condition-based rule requires exactly one condition")
	}

	spec, ok := schema.Field(c.Field)
	if !ok {
		return fmt.Errorf("unknown condition field %q", c.Field)
	}

	if !OperatorAllowed(spec.Type, c.Operator) {
		return fmt.Errorf("operator %q is not applicable to %s field %q (allowed: %v)",
			c.Operator, spec.Type, c.Field, OperatorsFor(spec.Type))
	}

	// The value must coerce to the field's declared type now, not at
	// evaluation time.
	switch spec.Type {
	case FieldNumber:
		if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
			return fmt.Errorf("condition value %q is not a number", c.Value)
		}
	case FieldDate:
		if _, err := parseDateValue(c.Value); err != nil {
			return fmt.Errorf("condition value %q is not a date: %w", c.Value, err)
		}
	case FieldBoolean:
		if c.Value != "true" && c.Value != "false" {
			return fmt.Errorf("condition value %q is not a boolean (must be \"true\" or \"false\")", c.Value)
		}
	case FieldText, FieldPicklist:
		if c.Value == "" {
			return fmt.Errorf("condition value is required for field %q", c.Field)
		}
	}

	return nil
}

func validateFilterSet(fs FilterSet) error {
	dims := []struct {
		name string
		f    Filter
	}{
		{"projects", fs.Projects},
		{"projectObjectives", fs.ProjectObjectives},
		{"contributorProjects", fs.ContributorProjects},
	}

	for _, d := range dims {
		switch d.f.Mode {
		case FilterNone, FilterInclude, FilterExclude:
		case "":
			// Omitted mode reads as no restriction.
		default:
			return fmt.Errorf("invalid filter mode %q on dimension %q", d.f.Mode, d.name)
		}
	}

	return nil
}

// parseDateValue accepts a bare calendar date or a full RFC 3339 timestamp,
// the two shapes the record store emits for date fields.
func parseDateValue(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected 2006-01-02 or RFC 3339, got %q", v)
	}
	return t, nil
}

// combineDateTime merges a rule's specific date ("2006-01-02") and time
// ("15:04") into a single UTC instant.
func combineDateTime(date, clock string) (time.Time, error) {
	if date == "" {
		return time.Time{}, fmt.Errorf("specificDate is required for date triggers")
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid specificDate %q: %w", date, err)
	}

	if clock == "" {
		return d, nil
	}
	c, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid specificTime %q: %w", clock, err)
	}

	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, time.UTC), nil
}
