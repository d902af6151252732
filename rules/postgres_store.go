package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. Filters are
// stored as a JSONB document; trigger payloads are flattened into nullable
// columns so either variant round-trips without a second table.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, name, rule_type, enabled, from_status, to_status,
	time_type, days, specific_date, specific_time,
	condition_field, condition_operator, condition_value,
	filters, created_at, created_by, updated_at`

// Add inserts a new rule.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM schedule_rules WHERE id = $1)`, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	filtersJSON, err := json.Marshal(rule.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	rule.CreatedAt = time.Now()
	rule.UpdatedAt = nil

	_, err = s.db.Exec(`
		INSERT INTO schedule_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULL)
	`, rule.ID, rule.Name, rule.Type, rule.Enabled, rule.FromStatus, rule.ToStatus,
		timeType(rule), days(rule), specificDate(rule), specificTime(rule),
		conditionField(rule), conditionOperator(rule), conditionValue(rule),
		filtersJSON, rule.CreatedAt, rule.CreatedBy)

	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`SELECT `+ruleColumns+` FROM schedule_rules WHERE id = $1`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns all rules, oldest first.
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.list(`SELECT ` + ruleColumns + ` FROM schedule_rules ORDER BY created_at ASC`)
}

// ListEnabled returns all enabled rules, oldest first.
func (s *PostgresRuleStore) ListEnabled() ([]*Rule, error) {
	return s.list(`SELECT ` + ruleColumns + ` FROM schedule_rules WHERE enabled = true ORDER BY created_at ASC`)
}

func (s *PostgresRuleStore) list(query string) ([]*Rule, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

// Update replaces an existing rule, preserving creation metadata.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	existing, err := s.Get(rule.ID)
	if err != nil {
		return err
	}

	filtersJSON, err := json.Marshal(rule.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	now := time.Now()
	rule.CreatedAt = existing.CreatedAt
	rule.CreatedBy = existing.CreatedBy
	rule.UpdatedAt = &now

	result, err := s.db.Exec(`
		UPDATE schedule_rules
		SET name = $1, rule_type = $2, enabled = $3, from_status = $4, to_status = $5,
			time_type = $6, days = $7, specific_date = $8, specific_time = $9,
			condition_field = $10, condition_operator = $11, condition_value = $12,
			filters = $13, updated_at = $14
		WHERE id = $15
	`, rule.Name, rule.Type, rule.Enabled, rule.FromStatus, rule.ToStatus,
		timeType(rule), days(rule), specificDate(rule), specificTime(rule),
		conditionField(rule), conditionOperator(rule), conditionValue(rule),
		filtersJSON, now, rule.ID)

	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return checkAffected(result, rule.ID)
}

// SetEnabled flips the enabled toggle.
func (s *PostgresRuleStore) SetEnabled(id string, enabled bool) error {
	result, err := s.db.Exec(`
		UPDATE schedule_rules SET enabled = $1, updated_at = NOW() WHERE id = $2
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set enabled: %w", err)
	}
	return checkAffected(result, id)
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM schedule_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return checkAffected(result, id)
}

func checkAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule        Rule
		timeTyp     sql.NullString
		daysVal     sql.NullInt64
		specDate    sql.NullString
		specTime    sql.NullString
		condField   sql.NullString
		condOp      sql.NullString
		condValue   sql.NullString
		filtersJSON []byte
		updatedAt   sql.NullTime
	)

	err := row.Scan(&rule.ID, &rule.Name, &rule.Type, &rule.Enabled,
		&rule.FromStatus, &rule.ToStatus,
		&timeTyp, &daysVal, &specDate, &specTime,
		&condField, &condOp, &condValue,
		&filtersJSON, &rule.CreatedAt, &rule.CreatedBy, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(filtersJSON, &rule.Filters); err != nil {
		return nil, fmt.Errorf("invalid filters document: %w", err)
	}

	switch rule.Type {
	case RuleTimeBased:
		rule.Time = &TimeTrigger{
			TimeType:     TimeType(timeTyp.String),
			Days:         int(daysVal.Int64),
			SpecificDate: specDate.String,
			SpecificTime: specTime.String,
		}
	case RuleConditionBased:
		rule.Condition = &Condition{
			Field:    condField.String,
			Operator: Operator(condOp.String),
			Value:    condValue.String,
		}
	}

	if updatedAt.Valid {
		rule.UpdatedAt = &updatedAt.Time
	}
	return &rule, nil
}

// Column helpers: nullable trigger columns are only populated for the
// matching rule type.

func timeType(r *Rule) any {
	if r.Time == nil {
		return nil
	}
	return string(r.Time.TimeType)
}

func days(r *Rule) any {
	if r.Time == nil || r.Time.TimeType != TimeDays {
		return nil
	}
	return r.Time.Days
}

func specificDate(r *Rule) any {
	if r.Time == nil || r.Time.SpecificDate == "" {
		return nil
	}
	return r.Time.SpecificDate
}

func specificTime(r *Rule) any {
	if r.Time == nil || r.Time.SpecificTime == "" {
		return nil
	}
	return r.Time.SpecificTime
}

func conditionField(r *Rule) any {
	if r.Condition == nil {
		return nil
	}
	return r.Condition.Field
}

func conditionOperator(r *Rule) any {
	if r.Condition == nil {
		return nil
	}
	return string(r.Condition.Operator)
}

func conditionValue(r *Rule) any {
	if r.Condition == nil {
		return nil
	}
	return r.Condition.Value
}
