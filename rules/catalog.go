package rules

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Catalog is the engine's window onto the external record store: read access
// to the three filterable catalogs plus the one mutation the engine ever
// performs, a queue-status transition on a contributor project.
type Catalog interface {
	// Projects returns all projects.
	Projects(ctx context.Context) ([]Project, error)

	// ProjectObjectives returns all project objectives.
	ProjectObjectives(ctx context.Context) ([]ProjectObjective, error)

	// ContributorProjects returns all contributor projects in stable order.
	ContributorProjects(ctx context.Context) ([]ContributorProject, error)

	// ContributorProjectsPage returns a window of contributor projects for
	// read-only listing.
	ContributorProjectsPage(ctx context.Context, limit, offset int) ([]ContributorProject, error)

	// UpdateQueueStatus transitions one contributor project from one queue
	// status to another. It fails if the record is missing or its current
	// status no longer matches from.
	UpdateQueueStatus(ctx context.Context, id, from, to string) error
}

// InMemoryCatalog implements Catalog with in-process maps. Thread-safe.
// Iteration order is insertion order, so plans built against it are
// deterministic.
type InMemoryCatalog struct {
	projects   []Project
	objectives []ProjectObjective
	records    []ContributorProject
	recordIdx  map[string]int
	mu         sync.RWMutex
	now        func() time.Time
}

// NewInMemoryCatalog creates an empty in-memory catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{
		recordIdx: make(map[string]int),
		now:       time.Now,
	}
}

// AddProject registers a project.
func (c *InMemoryCatalog) AddProject(p Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = append(c.projects, p)
}

// AddObjective registers a project objective.
func (c *InMemoryCatalog) AddObjective(o ProjectObjective) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objectives = append(c.objectives, o)
}

// AddContributorProject registers a contributor project.
func (c *InMemoryCatalog) AddContributorProject(cp ContributorProject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = c.now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	c.recordIdx[cp.ID] = len(c.records)
	c.records = append(c.records, cp)
}

// Projects returns all projects.
func (c *InMemoryCatalog) Projects(ctx context.Context) ([]Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Project, len(c.projects))
	copy(out, c.projects)
	return out, nil
}

// ProjectObjectives returns all objectives.
func (c *InMemoryCatalog) ProjectObjectives(ctx context.Context) ([]ProjectObjective, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ProjectObjective, len(c.objectives))
	copy(out, c.objectives)
	return out, nil
}

// ContributorProjects returns all contributor projects in insertion order.
func (c *InMemoryCatalog) ContributorProjects(ctx context.Context) ([]ContributorProject, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ContributorProject, len(c.records))
	copy(out, c.records)
	return out, nil
}

// ContributorProjectsPage returns a window of contributor projects.
func (c *InMemoryCatalog) ContributorProjectsPage(ctx context.Context, limit, offset int) ([]ContributorProject, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if offset < 0 || offset >= len(c.records) {
		return []ContributorProject{}, nil
	}
	end := len(c.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]ContributorProject, end-offset)
	copy(out, c.records[offset:end])
	return out, nil
}

// UpdateQueueStatus transitions a record's queue status and stamps
// StatusChangedAt.
func (c *InMemoryCatalog) UpdateQueueStatus(ctx context.Context, id, from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.recordIdx[id]
	if !ok {
		return fmt.Errorf("contributor project %s not found", id)
	}

	rec := &c.records[idx]
	if rec.QueueStatus != from {
		return fmt.Errorf("contributor project %s is in status %q, expected %q", id, rec.QueueStatus, from)
	}

	now := c.now()
	rec.QueueStatus = to
	rec.StatusChangedAt = &now
	rec.UpdatedAt = now
	return nil
}

// Record returns a copy of one contributor project, for tests and handlers.
func (c *InMemoryCatalog) Record(id string) (ContributorProject, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.recordIdx[id]
	if !ok {
		return ContributorProject{}, false
	}
	return c.records[idx], true
}
