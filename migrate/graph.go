// Package migrate applies dependency-ordered schema migrations across
// tenant schemas, keeping a per-schema ledger of what has been applied.
// Each migration runs in its own transaction together with its ledger
// entry, so a schema is always in a state the ledger describes.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/getpup/pgtenancy"
)

// Migration is a single unit of schema change. Migrations are identified
// by a stable ID and ordered by their declared dependencies.
type Migration struct {
	// ID uniquely identifies the migration, e.g. "0002_add_orders_index".
	ID string

	// DependsOn lists migration IDs that must be applied first.
	DependsOn []string

	// Statements is SQL executed in order inside the migration's
	// transaction, with search_path set to the target schema.
	Statements []string

	// Run is an optional Go hook executed after Statements, inside the
	// same transaction. Useful for data backfills that SQL alone cannot
	// express.
	Run func(ctx context.Context, tx *sql.Tx) error
}

// Graph is a set of migrations with dependency edges between them.
type Graph struct {
	migrations map[string]Migration
}

// NewGraph creates an empty migration graph.
func NewGraph() *Graph {
	return &Graph{migrations: make(map[string]Migration)}
}

// Add registers a migration in the graph.
// Returns pgtenancy.ErrMigrationConflict if the ID is already registered.
func (g *Graph) Add(m Migration) error {
	if m.ID == "" {
		return fmt.Errorf("migration id must not be empty")
	}
	if _, ok := g.migrations[m.ID]; ok {
		return fmt.Errorf("%w: duplicate migration %q", pgtenancy.ErrMigrationConflict, m.ID)
	}

	g.migrations[m.ID] = m
	return nil
}

// Get returns the migration with the given ID.
func (g *Graph) Get(id string) (Migration, bool) {
	m, ok := g.migrations[id]
	return m, ok
}

// Len returns the number of migrations in the graph.
func (g *Graph) Len() int {
	return len(g.migrations)
}

// IDs returns all migration IDs in lexicographic order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.migrations))
	for id := range g.migrations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sort returns the migrations in an order that satisfies every
// dependency. The order is deterministic: among migrations whose
// dependencies are satisfied, lower IDs run first.
// Returns pgtenancy.ErrMigrationConflict if a dependency is missing from
// the graph or the dependencies form a cycle.
func (g *Graph) Sort() ([]Migration, error) {
	indegree := make(map[string]int, len(g.migrations))
	dependents := make(map[string][]string)

	for id := range g.migrations {
		indegree[id] = 0
	}
	for id, m := range g.migrations {
		for _, dep := range m.DependsOn {
			if _, ok := g.migrations[dep]; !ok {
				return nil, fmt.Errorf("%w: migration %q depends on unknown migration %q", pgtenancy.ErrMigrationConflict, id, dep)
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, degree := range indegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	ordered := make([]Migration, 0, len(g.migrations))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, g.migrations[id])

		freed := false
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				freed = true
			}
		}
		if freed {
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(g.migrations) {
		placed := make(map[string]bool, len(ordered))
		for _, m := range ordered {
			placed[m.ID] = true
		}
		var remaining []string
		for id := range g.migrations {
			if !placed[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, fmt.Errorf("%w: dependency cycle involving %s", pgtenancy.ErrMigrationConflict, strings.Join(remaining, ", "))
	}

	return ordered, nil
}
