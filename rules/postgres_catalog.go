package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresCatalog implements Catalog over a local mirror of the record
// store's Projects, Project Objectives, and Contributor Projects. The
// status transition is guarded by the expected current status so a racing
// writer surfaces as a per-record error instead of a silent double move.
type PostgresCatalog struct {
	db *sql.DB
}

// NewPostgresCatalog creates a PostgreSQL-backed Catalog.
func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Projects returns all projects.
func (c *PostgresCatalog) Projects(ctx context.Context) ([]Project, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProjectObjectives returns all objectives.
func (c *PostgresCatalog) ProjectObjectives(ctx context.Context) ([]ProjectObjective, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, name FROM project_objectives ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list objectives: %w", err)
	}
	defer rows.Close()

	var out []ProjectObjective
	for rows.Next() {
		var o ProjectObjective
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.Name); err != nil {
			return nil, fmt.Errorf("failed to scan objective: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const contributorProjectColumns = `id, project_id, objective_id, contributor_name,
	queue_status, status_changed_at, created_at, updated_at, attributes`

// ContributorProjects returns all contributor projects, oldest first.
func (c *PostgresCatalog) ContributorProjects(ctx context.Context) ([]ContributorProject, error) {
	return c.listContributorProjects(ctx, `
		SELECT `+contributorProjectColumns+`
		FROM contributor_projects ORDER BY created_at ASC, id ASC`)
}

// ContributorProjectsPage returns a window of contributor projects.
func (c *PostgresCatalog) ContributorProjectsPage(ctx context.Context, limit, offset int) ([]ContributorProject, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return c.listContributorProjects(ctx, fmt.Sprintf(`
		SELECT `+contributorProjectColumns+`
		FROM contributor_projects ORDER BY created_at ASC, id ASC
		LIMIT %d OFFSET %d`, limit, offset))
}

func (c *PostgresCatalog) listContributorProjects(ctx context.Context, query string) ([]ContributorProject, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributor projects: %w", err)
	}
	defer rows.Close()

	var out []ContributorProject
	for rows.Next() {
		var (
			rec       ContributorProject
			objective sql.NullString
			changedAt sql.NullTime
			attrsJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &objective, &rec.ContributorName,
			&rec.QueueStatus, &changedAt, &rec.CreatedAt, &rec.UpdatedAt, &attrsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan contributor project: %w", err)
		}
		rec.ObjectiveID = objective.String
		if changedAt.Valid {
			t := changedAt.Time
			rec.StatusChangedAt = &t
		}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &rec.Attributes); err != nil {
				return nil, fmt.Errorf("invalid attributes document for %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributor projects: %w", err)
	}
	return out, nil
}

// UpdateQueueStatus transitions one record, guarded by its expected current
// status.
func (c *PostgresCatalog) UpdateQueueStatus(ctx context.Context, id, from, to string) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE contributor_projects
		SET queue_status = $1, status_changed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND queue_status = $3
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update queue status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("contributor project %s not found in status %q", id, from)
	}
	return nil
}

var _ Catalog = (*PostgresCatalog)(nil)
