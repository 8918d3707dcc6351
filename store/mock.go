package store

import (
	"context"
	"sync"

	"github.com/getpup/pgtenancy"
)

// MockTenantStore is a configurable mock implementation of TenantStore for
// use in tests. It allows setting up return values, tracking method calls,
// and injecting errors for testing error paths.
type MockTenantStore struct {
	mu sync.RWMutex

	// CreateFunc is called by Create if set.
	CreateFunc func(ctx context.Context, record pgtenancy.TenantRecord) (pgtenancy.TenantRecord, error)

	// GetByIdentifierFunc is called by GetByIdentifier if set.
	GetByIdentifierFunc func(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error)

	// GetBySchemaFunc is called by GetBySchema if set.
	GetBySchemaFunc func(ctx context.Context, schemaName string) (pgtenancy.TenantRecord, error)

	// UpdateStatusFunc is called by UpdateStatus if set.
	UpdateStatusFunc func(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error

	// ListActiveFunc is called by ListActive if set.
	ListActiveFunc func(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error)

	// Call tracking
	CreateCalls          []CreateCall
	GetByIdentifierCalls []GetByIdentifierCall
	GetBySchemaCalls     []GetBySchemaCall
	UpdateStatusCalls    []UpdateStatusCall
	ListActiveCalls      []ListActiveCall
}

// Call tracking structs
type CreateCall struct {
	Record pgtenancy.TenantRecord
}

type GetByIdentifierCall struct {
	Identifier string
}

type GetBySchemaCall struct {
	SchemaName string
}

type UpdateStatusCall struct {
	Identifier string
	Status     pgtenancy.TenantStatus
}

type ListActiveCall struct {
	AfterIdentifier string
	Limit           int
}

// NewMockTenantStore creates a new mock tenant store.
func NewMockTenantStore() *MockTenantStore {
	return &MockTenantStore{}
}

// Create implements TenantStore.
func (m *MockTenantStore) Create(ctx context.Context, record pgtenancy.TenantRecord) (pgtenancy.TenantRecord, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, CreateCall{Record: record})
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, record)
	}

	return record, nil
}

// GetByIdentifier implements TenantStore.
func (m *MockTenantStore) GetByIdentifier(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
	m.mu.Lock()
	m.GetByIdentifierCalls = append(m.GetByIdentifierCalls, GetByIdentifierCall{Identifier: identifier})
	m.mu.Unlock()

	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, identifier)
	}

	return pgtenancy.TenantRecord{}, pgtenancy.ErrTenantNotFound
}

// GetBySchema implements TenantStore.
func (m *MockTenantStore) GetBySchema(ctx context.Context, schemaName string) (pgtenancy.TenantRecord, error) {
	m.mu.Lock()
	m.GetBySchemaCalls = append(m.GetBySchemaCalls, GetBySchemaCall{SchemaName: schemaName})
	m.mu.Unlock()

	if m.GetBySchemaFunc != nil {
		return m.GetBySchemaFunc(ctx, schemaName)
	}

	return pgtenancy.TenantRecord{}, pgtenancy.ErrTenantNotFound
}

// UpdateStatus implements TenantStore.
func (m *MockTenantStore) UpdateStatus(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error {
	m.mu.Lock()
	m.UpdateStatusCalls = append(m.UpdateStatusCalls, UpdateStatusCall{Identifier: identifier, Status: status})
	m.mu.Unlock()

	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, identifier, status)
	}

	return nil
}

// ListActive implements TenantStore.
func (m *MockTenantStore) ListActive(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error) {
	m.mu.Lock()
	m.ListActiveCalls = append(m.ListActiveCalls, ListActiveCall{AfterIdentifier: afterIdentifier, Limit: limit})
	m.mu.Unlock()

	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, afterIdentifier, limit)
	}

	return []pgtenancy.TenantRecord{}, nil
}

// Reset clears all call tracking data.
func (m *MockTenantStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = nil
	m.GetByIdentifierCalls = nil
	m.GetBySchemaCalls = nil
	m.UpdateStatusCalls = nil
	m.ListActiveCalls = nil
}

var _ TenantStore = (*MockTenantStore)(nil)
