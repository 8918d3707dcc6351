package pgtenancy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// MaxSchemaNameLength is the PostgreSQL identifier length bound.
const MaxSchemaNameLength = 63

var schemaNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateSchemaName ensures name is safe to interpolate into
// schema-qualifying SQL. Schema names are restricted to lowercase letters,
// digits and underscores, must not start with a digit, must not use the
// reserved pg_ prefix, and must fit the PostgreSQL identifier length bound.
// Everything that touches a schema name in SQL goes through this check first.
func ValidateSchemaName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidSchemaName)
	}
	if len(name) > MaxSchemaNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidSchemaName, name, MaxSchemaNameLength)
	}
	if !schemaNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q may contain only lowercase letters, digits and underscores and must not start with a digit", ErrInvalidSchemaName, name)
	}
	if strings.HasPrefix(name, "pg_") {
		return fmt.Errorf("%w: %q uses the reserved pg_ prefix", ErrInvalidSchemaName, name)
	}
	return nil
}

// QuoteSchema returns name as a quoted SQL identifier. Callers must validate
// name first; quoting is a second layer, not the safety mechanism.
func QuoteSchema(name string) string {
	return pq.QuoteIdentifier(name)
}
