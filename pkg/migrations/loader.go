package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/getpup/pgtenancy/migrate"
)

// LoadDir reads every .sql migration in dir into a graph the migrate
// package can apply.
func LoadDir(dir string) (*migrate.Graph, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	graph := migrate.NewGraph()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file: %w", err)
		}

		migration := parseMigration(strings.TrimSuffix(entry.Name(), ".sql"), string(content))
		if err := graph.Add(migration); err != nil {
			return nil, err
		}
	}

	return graph, nil
}

// parseMigration reads dependencies from the file's leading comment block.
// The body executes as a single script, so a file can hold several
// statements; a file with no statements is a no-op marker.
func parseMigration(id, content string) migrate.Migration {
	m := migrate.Migration{ID: id}

	inHeader := true
	hasSQL := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if inHeader {
			if deps, ok := strings.CutPrefix(trimmed, "-- depends:"); ok {
				for _, dep := range strings.Split(deps, ",") {
					if dep = strings.TrimSpace(dep); dep != "" {
						m.DependsOn = append(m.DependsOn, dep)
					}
				}
				continue
			}
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			inHeader = false
		}

		if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
			hasSQL = true
		}
	}

	if hasSQL {
		m.Statements = []string{content}
	}
	return m
}
