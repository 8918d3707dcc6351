package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	nameRegex          = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	migrationFileRegex = regexp.MustCompile(`^(\d{4})_[a-z][a-z0-9_]*\.sql$`)
)

// validateName ensures a migration name is safe to embed in a migration ID.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("migration name cannot be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("migration name must start with a letter and contain only lowercase letters, numbers, and underscores (got: %s)", name)
	}
	return nil
}

// Config configures skeleton migration generation.
type Config struct {
	// Dir is the directory the migration file is written to.
	Dir string

	// Name is the descriptive part of the migration ID.
	Name string

	// DependsOn lists migration IDs the new migration depends on. When
	// empty, the generator depends the file on the newest migration
	// already in Dir, so sequential work chains by default.
	DependsOn []string
}

// Generate writes a numbered skeleton migration file and returns its path.
// The file is empty apart from its header; applying it before statements
// are added records a no-op in the ledger.
func Generate(config Config) (string, error) {
	if err := validateName(config.Name); err != nil {
		return "", err
	}
	if config.Dir == "" {
		return "", fmt.Errorf("migration directory cannot be empty")
	}

	seq, newest, err := nextSequence(config.Dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migration directory: %w", err)
	}

	dependsOn := config.DependsOn
	if len(dependsOn) == 0 && newest != "" {
		dependsOn = []string{newest}
	}

	id := fmt.Sprintf("%04d_%s", seq, config.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "-- Migration: %s\n", id)
	fmt.Fprintf(&b, "-- Generated: %s\n", time.Now().Format(time.RFC3339))
	if len(dependsOn) > 0 {
		fmt.Fprintf(&b, "-- depends: %s\n", strings.Join(dependsOn, ", "))
	}
	b.WriteString("\n-- Statements below run in one transaction with search_path pointed\n")
	b.WriteString("-- at the target schema. Keep identifiers unqualified.\n")

	outputPath := filepath.Join(config.Dir, id+".sql")
	if err := os.WriteFile(outputPath, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}

	return outputPath, nil
}

// nextSequence returns the next migration sequence number for dir and the
// ID of the newest migration already there.
func nextSequence(dir string) (int, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, "", nil
		}
		return 0, "", fmt.Errorf("failed to read migration directory: %w", err)
	}

	seq := 0
	newest := ""
	for _, entry := range entries {
		m := migrationFileRegex.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= seq {
			continue
		}
		seq = n
		newest = strings.TrimSuffix(entry.Name(), ".sql")
	}

	return seq + 1, newest, nil
}
