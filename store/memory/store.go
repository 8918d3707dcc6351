package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/store"
)

// defaultListLimit caps ListActive pages when the caller passes no limit.
const defaultListLimit = 100

// Store is an in-memory implementation of TenantStore for testing.
// It provides thread-safe access to tenant records using a sync.RWMutex.
// Like the PostgreSQL store it retains dropped records, so an identifier
// or schema name becomes reusable once its previous owner is dropped.
type Store struct {
	mu      sync.RWMutex
	records map[string]pgtenancy.TenantRecord // identifier -> live record
	schemas map[string]string                 // schema name -> owning identifier
	dropped []pgtenancy.TenantRecord          // retained for audit, newest last
}

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		records: make(map[string]pgtenancy.TenantRecord),
		schemas: make(map[string]string),
	}
}

// Create persists a new tenant record and returns it with timestamps set.
// An empty status defaults to provisioning.
// Returns pgtenancy.ErrDuplicateTenant if the identifier or the schema
// name is already owned by a live record.
func (s *Store) Create(ctx context.Context, record pgtenancy.TenantRecord) (pgtenancy.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.Identifier]; ok {
		return pgtenancy.TenantRecord{}, pgtenancy.ErrDuplicateTenant
	}
	if _, ok := s.schemas[record.SchemaName]; ok {
		return pgtenancy.TenantRecord{}, pgtenancy.ErrDuplicateTenant
	}

	if record.Status == "" {
		record.Status = pgtenancy.StatusProvisioning
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	s.records[record.Identifier] = record
	s.schemas[record.SchemaName] = record.Identifier

	return record, nil
}

// GetByIdentifier returns the record for an identifier, regardless of
// status. When an identifier has been reused, the live record wins over
// retained dropped ones.
// Returns pgtenancy.ErrTenantNotFound if no record exists.
func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.records[identifier]; ok {
		return record, nil
	}

	// Newest dropped record wins.
	for i := len(s.dropped) - 1; i >= 0; i-- {
		if s.dropped[i].Identifier == identifier {
			return s.dropped[i], nil
		}
	}

	return pgtenancy.TenantRecord{}, pgtenancy.ErrTenantNotFound
}

// GetBySchema returns the live record owning a schema name.
// Returns pgtenancy.ErrTenantNotFound if no live record owns it.
func (s *Store) GetBySchema(ctx context.Context, schemaName string) (pgtenancy.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identifier, ok := s.schemas[schemaName]
	if !ok {
		return pgtenancy.TenantRecord{}, pgtenancy.ErrTenantNotFound
	}

	record, ok := s.records[identifier]
	if !ok {
		return pgtenancy.TenantRecord{}, pgtenancy.ErrTenantNotFound
	}

	return record, nil
}

// UpdateStatus sets the status of the live record for an identifier and
// stamps its UpdatedAt. Setting the dropped status retires the record:
// it moves to the audit trail and frees its identifier and schema name.
// Returns pgtenancy.ErrTenantNotFound if no record exists and
// pgtenancy.ErrTenantDropped if only dropped records remain.
func (s *Store) UpdateStatus(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identifier]
	if !ok {
		for i := len(s.dropped) - 1; i >= 0; i-- {
			if s.dropped[i].Identifier == identifier {
				return pgtenancy.ErrTenantDropped
			}
		}
		return pgtenancy.ErrTenantNotFound
	}

	record.Status = status
	record.UpdatedAt = time.Now()

	if status == pgtenancy.StatusDropped {
		delete(s.records, identifier)
		delete(s.schemas, record.SchemaName)
		s.dropped = append(s.dropped, record)
		return nil
	}

	s.records[identifier] = record
	return nil
}

// ListActive returns up to limit active records ordered by identifier,
// starting after afterIdentifier. An empty afterIdentifier starts from
// the beginning; callers page by passing the last identifier they saw.
// Returns an empty slice when no further records exist.
func (s *Store) ListActive(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	records := []pgtenancy.TenantRecord{}
	for _, record := range s.records {
		if record.Status == pgtenancy.StatusActive && record.Identifier > afterIdentifier {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Identifier < records[j].Identifier
	})

	if len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

var _ store.TenantStore = (*Store)(nil)
