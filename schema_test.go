package pgtenancy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchemaName_Valid(t *testing.T) {
	valid := []string{
		"acme",
		"acme_corp",
		"tenant_42",
		"_private",
		"a",
		"public",
		strings.Repeat("a", 63),
	}

	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, ValidateSchemaName(name))
		})
	}
}

func TestValidateSchemaName_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{"empty", ""},
		{"uppercase", "Acme"},
		{"dash", "acme-corp"},
		{"space", "acme corp"},
		{"dot", "acme.corp"},
		{"leading digit", "1acme"},
		{"semicolon injection", "acme; DROP TABLE tenants"},
		{"quote injection", `acme"`},
		{"comment injection", "acme--"},
		{"reserved pg_ prefix", "pg_acme"},
		{"too long", strings.Repeat("a", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaName(tt.schema)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchemaName)
		})
	}
}

func TestQuoteSchema(t *testing.T) {
	assert.Equal(t, `"acme"`, QuoteSchema("acme"))
	assert.Equal(t, `"tenant_42"`, QuoteSchema("tenant_42"))
}
