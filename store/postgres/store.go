package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/store"
)

// uniqueViolation is the PostgreSQL error code raised when an insert
// collides with one of the partial unique indexes on live records.
const uniqueViolation = "23505"

// defaultListLimit caps ListActive pages when the caller passes no limit.
const defaultListLimit = 100

// Store is a PostgreSQL implementation of TenantStore.
// Dropped records are never modified or deleted; the partial unique
// indexes let an identifier or schema name be reused once its previous
// owner is dropped.
type Store struct {
	db    *sql.DB
	table string
	idCol string
}

// New creates a new PostgreSQL store with default table names.
func New(db *sql.DB) *Store {
	config := DefaultTableConfig()
	return NewWithConfig(db, config)
}

// NewWithConfig creates a new PostgreSQL store with custom table names.
// Identifiers from the config are quoted before being interpolated into
// queries.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	config = config.withDefaults()
	return &Store{
		db:    db,
		table: config.qualifiedTable(),
		idCol: pq.QuoteIdentifier(config.IdentifierColumn),
	}
}

// Create persists a new tenant record and returns it with the
// database-assigned timestamps. An empty status defaults to provisioning.
// Returns pgtenancy.ErrDuplicateTenant if the identifier or the schema
// name is already owned by a non-dropped record.
func (s *Store) Create(ctx context.Context, record pgtenancy.TenantRecord) (pgtenancy.TenantRecord, error) {
	if record.Status == "" {
		record.Status = pgtenancy.StatusProvisioning
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, %s, schema_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`, s.table, s.idCol)

	err := s.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		record.Identifier,
		record.SchemaName,
		string(record.Status),
	).Scan(&record.CreatedAt, &record.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pgtenancy.TenantRecord{}, pgtenancy.ErrDuplicateTenant
	}
	if err != nil {
		return pgtenancy.TenantRecord{}, fmt.Errorf("failed to create tenant: %w", err)
	}

	return record, nil
}

// GetByIdentifier returns the record for an identifier, regardless of
// status. When an identifier has been reused, the live record wins over
// retained dropped ones.
// Returns pgtenancy.ErrTenantNotFound if no record exists.
func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s, schema_name, status, created_at, updated_at
		FROM %s
		WHERE %s = $1
		ORDER BY (status = 'dropped'), updated_at DESC
		LIMIT 1
	`, s.idCol, s.table, s.idCol)

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, identifier))
	if err == sql.ErrNoRows {
		return pgtenancy.TenantRecord{}, pgtenancy.ErrTenantNotFound
	}
	if err != nil {
		return pgtenancy.TenantRecord{}, fmt.Errorf("failed to get tenant by identifier: %w", err)
	}

	return record, nil
}

// GetBySchema returns the non-dropped record owning a schema name.
// Returns pgtenancy.ErrTenantNotFound if no non-dropped record owns it.
func (s *Store) GetBySchema(ctx context.Context, schemaName string) (pgtenancy.TenantRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s, schema_name, status, created_at, updated_at
		FROM %s
		WHERE schema_name = $1 AND status <> 'dropped'
		LIMIT 1
	`, s.idCol, s.table)

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, schemaName))
	if err == sql.ErrNoRows {
		return pgtenancy.TenantRecord{}, pgtenancy.ErrTenantNotFound
	}
	if err != nil {
		return pgtenancy.TenantRecord{}, fmt.Errorf("failed to get tenant by schema: %w", err)
	}

	return record, nil
}

// UpdateStatus sets the status of the live record for an identifier and
// stamps its updated_at. Dropped records are never modified.
// Returns pgtenancy.ErrTenantNotFound if no record exists and
// pgtenancy.ErrTenantDropped if only dropped records remain.
func (s *Store) UpdateStatus(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, updated_at = NOW()
		WHERE %s = $1 AND status <> 'dropped'
	`, s.table, s.idCol)

	result, err := s.db.ExecContext(ctx, query, identifier, string(status))
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish an unknown identifier from one whose record is dropped.
		if _, err := s.GetByIdentifier(ctx, identifier); err != nil {
			return err
		}
		return pgtenancy.ErrTenantDropped
	}

	return nil
}

// ListActive returns up to limit active records ordered by identifier,
// starting after afterIdentifier. An empty afterIdentifier starts from
// the beginning; callers page by passing the last identifier they saw.
// Returns an empty slice when no further records exist.
func (s *Store) ListActive(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := fmt.Sprintf(`
		SELECT %s, schema_name, status, created_at, updated_at
		FROM %s
		WHERE status = 'active' AND %s > $1
		ORDER BY %s
		LIMIT $2
	`, s.idCol, s.table, s.idCol, s.idCol)

	rows, err := s.db.QueryContext(ctx, query, afterIdentifier, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	records := []pgtenancy.TenantRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return records, nil
}

// scanTarget is satisfied by both *sql.Row and *sql.Rows.
type scanTarget interface {
	Scan(dest ...any) error
}

func scanRecord(row scanTarget) (pgtenancy.TenantRecord, error) {
	var record pgtenancy.TenantRecord
	var status string
	err := row.Scan(
		&record.Identifier,
		&record.SchemaName,
		&status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return pgtenancy.TenantRecord{}, err
	}
	record.Status = pgtenancy.TenantStatus(status)
	return record, nil
}

var _ store.TenantStore = (*Store)(nil)
