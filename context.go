package pgtenancy

import "context"

type schemaContextKey struct{}

// WithActiveSchema returns a context with schema bound as the active schema
// for the unit of work. Binding is strictly local to the derived context:
// the parent keeps its own binding, so nested calls behave as a stack and
// concurrent units of work never observe each other's value.
func WithActiveSchema(ctx context.Context, schema string) context.Context {
	return context.WithValue(ctx, schemaContextKey{}, schema)
}

// ActiveSchema returns the schema bound to ctx, if any.
func ActiveSchema(ctx context.Context) (string, bool) {
	schema, ok := ctx.Value(schemaContextKey{}).(string)
	if !ok || schema == "" {
		return "", false
	}
	return schema, true
}
