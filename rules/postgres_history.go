package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresHistoryStore implements HistoryStore backed by PostgreSQL. The
// table is insert-only; the error list is a JSONB array.
type PostgresHistoryStore struct {
	db *sql.DB
}

// NewPostgresHistoryStore creates a PostgreSQL-backed HistoryStore.
func NewPostgresHistoryStore(db *sql.DB) *PostgresHistoryStore {
	return &PostgresHistoryStore{db: db}
}

// Append persists one execution entry.
func (s *PostgresHistoryStore) Append(entry *ExecutionEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("execution entry requires an ID")
	}

	errsJSON, err := json.Marshal(entry.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO execution_history
			(id, rule_id, execution_time, triggered_by, rules_processed, rules_updated, duration_ms, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.RuleID, entry.ExecutionTime, entry.TriggeredBy,
		entry.RulesProcessed, entry.RulesUpdated, entry.DurationMS, errsJSON)

	if err != nil {
		return fmt.Errorf("failed to insert execution entry: %w", err)
	}
	return nil
}

// List returns entries newest first, optionally filtered by rule ID.
func (s *PostgresHistoryStore) List(ruleID string, limit int) ([]*ExecutionEntry, error) {
	query := `
		SELECT id, rule_id, execution_time, triggered_by, rules_processed, rules_updated, duration_ms, errors
		FROM execution_history`
	var args []any
	if ruleID != "" {
		query += ` WHERE rule_id = $1`
		args = append(args, ruleID)
	}
	query += ` ORDER BY execution_time DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution history: %w", err)
	}
	defer rows.Close()

	var out []*ExecutionEntry
	for rows.Next() {
		var (
			entry    ExecutionEntry
			errsJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.RuleID, &entry.ExecutionTime, &entry.TriggeredBy,
			&entry.RulesProcessed, &entry.RulesUpdated, &entry.DurationMS, &errsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan execution entry: %w", err)
		}
		if err := json.Unmarshal(errsJSON, &entry.Errors); err != nil {
			return nil, fmt.Errorf("invalid errors document: %w", err)
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution history: %w", err)
	}
	return out, nil
}

var _ HistoryStore = (*PostgresHistoryStore)(nil)
