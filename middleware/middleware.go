// Package middleware binds incoming HTTP requests to tenant schemas. A
// Resolver extracts the tenant identifier from the request, the registry
// maps it to an active schema, and the schema is attached to the request
// context for the handlers downstream. The binding unwinds with the
// request context, so no teardown hook is needed.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/registry"
)

// Config holds configuration for the tenant Middleware.
type Config struct {
	// Registry resolves tenant identifiers to schemas (required).
	Registry *registry.Registry

	// Resolver extracts the tenant identifier from each request
	// (default: HeaderResolver reading "X-Tenant-ID").
	Resolver Resolver

	// ExemptPaths are path prefixes served without tenant resolution.
	// Exempt requests run bound to the shared schema (optional).
	ExemptPaths []string

	// Logger is used for structured logging (optional).
	Logger *zap.Logger
}

// Middleware resolves the tenant for each request and binds its schema
// to the request context. Requests without a usable credential get 401,
// requests for an unknown or non-active tenant get 404.
type Middleware struct {
	config Config
}

// New creates a new Middleware with the given configuration.
func New(config Config) (*Middleware, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("%w: middleware requires a registry", pgtenancy.ErrConfiguration)
	}
	if config.Resolver == nil {
		config.Resolver = &HeaderResolver{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Middleware{config: config}, nil
}

// Wrap returns a handler that resolves the tenant before calling next.
// It satisfies mux.MiddlewareFunc, so it can be passed to Router.Use.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)

		if m.exempt(r.URL.Path) {
			ctx := pgtenancy.WithActiveSchema(r.Context(), m.config.Registry.SharedSchema())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		identifier, err := m.config.Resolver.Resolve(r)
		if err != nil {
			m.config.Logger.Warn("tenant resolution failed",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			http.Error(w, "invalid tenant credentials", http.StatusUnauthorized)
			return
		}
		if identifier == "" {
			http.Error(w, "missing tenant identifier", http.StatusUnauthorized)
			return
		}

		record, err := m.config.Registry.Lookup(r.Context(), identifier)
		if err != nil {
			if errors.Is(err, pgtenancy.ErrTenantNotFound) {
				m.config.Logger.Warn("unknown tenant",
					zap.String("request_id", requestID),
					zap.String("identifier", identifier))
				http.Error(w, "unknown tenant", http.StatusNotFound)
				return
			}
			m.config.Logger.Error("tenant lookup failed",
				zap.String("request_id", requestID),
				zap.String("identifier", identifier),
				zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		m.config.Logger.Debug("request bound to tenant schema",
			zap.String("request_id", requestID),
			zap.String("identifier", identifier),
			zap.String("schema", record.SchemaName))

		ctx := pgtenancy.WithActiveSchema(r.Context(), record.SchemaName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) exempt(path string) bool {
	for _, prefix := range m.config.ExemptPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
