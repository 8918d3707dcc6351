package pgtenancy

import (
	"context"
	"fmt"
)

// RouterConfig configures entity classification.
type RouterConfig struct {
	// SharedSchema is the schema holding cross-tenant data.
	// Defaults to "public".
	SharedSchema string

	// SharedEntities lists entity types routed to the shared schema.
	SharedEntities []string

	// TenantEntities lists entity types routed to the active tenant's schema.
	TenantEntities []string
}

// Router decides, per entity type, whether an operation targets the shared
// schema or the active tenant's schema. The classification is built once at
// startup and is immutable afterwards, so lookups are safe for concurrent use.
type Router struct {
	sharedSchema string
	classes      map[string]EntityClass
}

// NewRouter builds a Router from cfg. An entity type listed as both shared
// and tenant is a configuration error, reported here rather than at query
// time.
func NewRouter(cfg RouterConfig) (*Router, error) {
	sharedSchema := cfg.SharedSchema
	if sharedSchema == "" {
		sharedSchema = "public"
	}
	if err := ValidateSchemaName(sharedSchema); err != nil {
		return nil, fmt.Errorf("shared schema: %w", err)
	}

	classes := make(map[string]EntityClass, len(cfg.SharedEntities)+len(cfg.TenantEntities))
	for _, entity := range cfg.SharedEntities {
		if entity == "" {
			return nil, fmt.Errorf("%w: empty entity type in shared set", ErrConfiguration)
		}
		classes[entity] = ClassShared
	}
	for _, entity := range cfg.TenantEntities {
		if entity == "" {
			return nil, fmt.Errorf("%w: empty entity type in tenant set", ErrConfiguration)
		}
		if _, ok := classes[entity]; ok {
			return nil, fmt.Errorf("%w: entity %q classified as both shared and tenant", ErrConfiguration, entity)
		}
		classes[entity] = ClassTenant
	}

	return &Router{sharedSchema: sharedSchema, classes: classes}, nil
}

// SharedSchema returns the configured shared schema name.
func (r *Router) SharedSchema() string {
	return r.sharedSchema
}

// Classify returns the class of entityType. An entity type missing from the
// classification is a configuration error; classification never guesses.
func (r *Router) Classify(entityType string) (EntityClass, error) {
	class, ok := r.classes[entityType]
	if !ok {
		return 0, fmt.Errorf("%w: entity %q is not classified", ErrConfiguration, entityType)
	}
	return class, nil
}

// ResolveSchema returns the schema an operation on entityType must target.
// Shared entities resolve to the shared schema regardless of activeSchema.
// Tenant entities resolve to activeSchema; an empty activeSchema fails with
// ErrNoActiveSchema so tenant data can never silently land in the shared
// schema.
func (r *Router) ResolveSchema(entityType, activeSchema string) (string, error) {
	class, err := r.Classify(entityType)
	if err != nil {
		return "", err
	}
	if class == ClassShared {
		return r.sharedSchema, nil
	}
	if activeSchema == "" {
		return "", fmt.Errorf("%w: entity %q is tenant-scoped", ErrNoActiveSchema, entityType)
	}
	return activeSchema, nil
}

// ResolveSchemaContext resolves entityType against the schema bound to ctx.
func (r *Router) ResolveSchemaContext(ctx context.Context, entityType string) (string, error) {
	active, _ := ActiveSchema(ctx)
	return r.ResolveSchema(entityType, active)
}

// ValidateEntities verifies that every given entity type is classified.
// Called at startup with the application's full entity universe so that an
// unclassified entity is caught before any query runs.
func (r *Router) ValidateEntities(entityTypes ...string) error {
	for _, entity := range entityTypes {
		if _, err := r.Classify(entity); err != nil {
			return err
		}
	}
	return nil
}
