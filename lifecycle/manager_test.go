package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/migrate"
	"github.com/getpup/pgtenancy/registry"
	"github.com/getpup/pgtenancy/store"
	"github.com/getpup/pgtenancy/store/memory"
)

type mockApplier struct {
	ApplyFunc  func(ctx context.Context, schema string) (migrate.SchemaResult, error)
	ApplyCalls []string
}

func (m *mockApplier) Apply(ctx context.Context, schema string) (migrate.SchemaResult, error) {
	m.ApplyCalls = append(m.ApplyCalls, schema)
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, schema)
	}
	return migrate.SchemaResult{Schema: schema, Applied: []string{"0001_init"}}, nil
}

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, *registry.Registry, *mockApplier) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := registry.New(registry.Config{Store: memory.New()})
	require.NoError(t, err)

	applier := &mockApplier{}
	manager, err := New(Config{DB: db, Registry: reg, Applier: applier})
	require.NoError(t, err)

	return manager, mock, reg, applier
}

func registerTenant(t *testing.T, reg *registry.Registry, identifier string) {
	t.Helper()
	_, err := reg.Register(context.Background(), identifier, identifier)
	require.NoError(t, err)
}

func TestNewManager(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg, err := registry.New(registry.Config{Store: memory.New()})
	require.NoError(t, err)

	t.Run("requires a database handle", func(t *testing.T) {
		_, err := New(Config{Registry: reg, Applier: &mockApplier{}})
		assert.ErrorIs(t, err, pgtenancy.ErrConfiguration)
	})

	t.Run("requires a registry", func(t *testing.T) {
		_, err := New(Config{DB: db, Applier: &mockApplier{}})
		assert.ErrorIs(t, err, pgtenancy.ErrConfiguration)
	})

	t.Run("applier is optional until provisioning", func(t *testing.T) {
		manager, err := New(Config{DB: db, Registry: reg})
		require.NoError(t, err)

		_, err = manager.Provision(context.Background(), "acme")
		assert.ErrorIs(t, err, pgtenancy.ErrConfiguration)
	})
}

func TestProvision(t *testing.T) {
	t.Run("provisions a registered tenant", func(t *testing.T) {
		manager, mock, reg, applier := newTestManager(t)
		registerTenant(t, reg, "acme")

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "acme"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		record, err := manager.Provision(context.Background(), "acme")
		require.NoError(t, err)

		assert.Equal(t, "acme", record.Identifier)
		assert.Equal(t, pgtenancy.StatusActive, record.Status)
		assert.Equal(t, []string{"acme"}, applier.ApplyCalls)

		// The tenant is now routable.
		_, err = reg.Lookup(context.Background(), "acme")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("is idempotent once active", func(t *testing.T) {
		manager, mock, reg, applier := newTestManager(t)
		registerTenant(t, reg, "acme")

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "acme"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := manager.Provision(context.Background(), "acme")
		require.NoError(t, err)

		record, err := manager.Provision(context.Background(), "acme")
		require.NoError(t, err)

		assert.Equal(t, pgtenancy.StatusActive, record.Status)
		assert.Len(t, applier.ApplyCalls, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown tenant", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)

		_, err := manager.Provision(context.Background(), "ghost")
		assert.ErrorIs(t, err, pgtenancy.ErrTenantNotFound)
	})

	t.Run("refuses a suspended tenant", func(t *testing.T) {
		manager, mock, reg, applier := newTestManager(t)
		registerTenant(t, reg, "acme")

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "acme"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := manager.Provision(context.Background(), "acme")
		require.NoError(t, err)
		require.NoError(t, reg.MarkSuspended(context.Background(), "acme"))

		_, err = manager.Provision(context.Background(), "acme")
		assert.ErrorIs(t, err, pgtenancy.ErrProvisioning)
		assert.Len(t, applier.ApplyCalls, 1)
	})

	t.Run("schema creation failure", func(t *testing.T) {
		manager, mock, reg, applier := newTestManager(t)
		registerTenant(t, reg, "acme")

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "acme"`).
			WillReturnError(errors.New("permission denied"))

		_, err := manager.Provision(context.Background(), "acme")
		assert.ErrorIs(t, err, pgtenancy.ErrProvisioning)
		assert.Empty(t, applier.ApplyCalls)

		record, err := reg.Get(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, pgtenancy.StatusProvisioning, record.Status)
	})

	t.Run("migration failure removes the schema and keeps the record retryable", func(t *testing.T) {
		manager, mock, reg, applier := newTestManager(t)
		registerTenant(t, reg, "acme")

		applier.ApplyFunc = func(ctx context.Context, schema string) (migrate.SchemaResult, error) {
			return migrate.SchemaResult{Schema: schema}, errors.New("broken migration")
		}

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "acme"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DROP SCHEMA IF EXISTS "acme" CASCADE`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := manager.Provision(context.Background(), "acme")
		require.Error(t, err)
		assert.ErrorIs(t, err, pgtenancy.ErrProvisioning)
		assert.ErrorContains(t, err, "acme")

		record, err := reg.Get(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, pgtenancy.StatusProvisioning, record.Status)

		// Retrying after the failure is fixed provisions cleanly.
		applier.ApplyFunc = nil
		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "acme"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		record, err = manager.Provision(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, pgtenancy.StatusActive, record.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status update failure leaves the schema in place", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mockStore := store.NewMockTenantStore()
		mockStore.GetByIdentifierFunc = func(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
			return pgtenancy.TenantRecord{
				Identifier: identifier,
				SchemaName: "acme",
				Status:     pgtenancy.StatusProvisioning,
			}, nil
		}
		mockStore.UpdateStatusFunc = func(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error {
			return errors.New("store unavailable")
		}

		reg, err := registry.New(registry.Config{Store: mockStore})
		require.NoError(t, err)

		manager, err := New(Config{DB: db, Registry: reg, Applier: &mockApplier{}})
		require.NoError(t, err)

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "acme"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err = manager.Provision(context.Background(), "acme")
		assert.ErrorIs(t, err, pgtenancy.ErrProvisioning)

		// No DROP was issued: the migrated schema survives for the retry.
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDecommission(t *testing.T) {
	t.Run("marks the tenant dropped", func(t *testing.T) {
		manager, _, reg, _ := newTestManager(t)
		registerTenant(t, reg, "acme")

		err := manager.Decommission(context.Background(), "acme")
		require.NoError(t, err)

		record, err := reg.Get(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, pgtenancy.StatusDropped, record.Status)

		_, err = reg.Lookup(context.Background(), "acme")
		assert.ErrorIs(t, err, pgtenancy.ErrTenantNotFound)
	})

	t.Run("is idempotent", func(t *testing.T) {
		manager, _, reg, _ := newTestManager(t)
		registerTenant(t, reg, "acme")

		require.NoError(t, manager.Decommission(context.Background(), "acme"))
		require.NoError(t, manager.Decommission(context.Background(), "acme"))
	})

	t.Run("unknown tenant", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)

		err := manager.Decommission(context.Background(), "ghost")
		assert.ErrorIs(t, err, pgtenancy.ErrTenantNotFound)
	})
}

func TestDropSchema(t *testing.T) {
	t.Run("refuses while the tenant is live", func(t *testing.T) {
		manager, mock, reg, _ := newTestManager(t)
		registerTenant(t, reg, "acme")

		err := manager.DropSchema(context.Background(), "acme")
		require.Error(t, err)
		assert.ErrorContains(t, err, "decommission")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("drops the schema after decommission", func(t *testing.T) {
		manager, mock, reg, _ := newTestManager(t)
		registerTenant(t, reg, "acme")
		require.NoError(t, manager.Decommission(context.Background(), "acme"))

		mock.ExpectExec(`DROP SCHEMA IF EXISTS "acme" CASCADE`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := manager.DropSchema(context.Background(), "acme")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown tenant", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)

		err := manager.DropSchema(context.Background(), "ghost")
		assert.ErrorIs(t, err, pgtenancy.ErrTenantNotFound)
	})

	t.Run("database failure is wrapped", func(t *testing.T) {
		manager, mock, reg, _ := newTestManager(t)
		registerTenant(t, reg, "acme")
		require.NoError(t, manager.Decommission(context.Background(), "acme"))

		mock.ExpectExec(`DROP SCHEMA IF EXISTS "acme" CASCADE`).
			WillReturnError(sql.ErrConnDone)

		err := manager.DropSchema(context.Background(), "acme")
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestProvisioned(t *testing.T) {
	t.Run("returns active tenants", func(t *testing.T) {
		manager, _, reg, _ := newTestManager(t)
		ctx := context.Background()

		for _, identifier := range []string{"acme", "beta", "corp"} {
			registerTenant(t, reg, identifier)
		}
		require.NoError(t, reg.MarkActive(ctx, "acme"))
		require.NoError(t, reg.MarkActive(ctx, "corp"))

		records, err := manager.Provisioned(ctx)
		require.NoError(t, err)

		require.Len(t, records, 2)
		assert.Equal(t, "acme", records[0].Identifier)
		assert.Equal(t, "corp", records[1].Identifier)
	})

	t.Run("empty fleet", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)

		records, err := manager.Provisioned(context.Background())
		require.NoError(t, err)

		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("walks keyset pages", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		firstPage := make([]pgtenancy.TenantRecord, listPageSize)
		for i := range firstPage {
			firstPage[i] = pgtenancy.TenantRecord{
				Identifier: fmt.Sprintf("tenant-%03d", i),
				Status:     pgtenancy.StatusActive,
			}
		}
		secondPage := []pgtenancy.TenantRecord{
			{Identifier: "tenant-100", Status: pgtenancy.StatusActive},
			{Identifier: "tenant-101", Status: pgtenancy.StatusActive},
		}

		mockStore := store.NewMockTenantStore()
		mockStore.ListActiveFunc = func(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error) {
			if afterIdentifier == "" {
				return firstPage, nil
			}
			return secondPage, nil
		}

		reg, err := registry.New(registry.Config{Store: mockStore})
		require.NoError(t, err)

		manager, err := New(Config{DB: db, Registry: reg, Applier: &mockApplier{}})
		require.NoError(t, err)

		records, err := manager.Provisioned(context.Background())
		require.NoError(t, err)

		assert.Len(t, records, listPageSize+2)
		require.Len(t, mockStore.ListActiveCalls, 2)
		assert.Equal(t, "", mockStore.ListActiveCalls[0].AfterIdentifier)
		assert.Equal(t, "tenant-099", mockStore.ListActiveCalls[1].AfterIdentifier)
	})

	t.Run("store failure", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mockStore := store.NewMockTenantStore()
		mockStore.ListActiveFunc = func(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error) {
			return nil, errors.New("store unavailable")
		}

		reg, err := registry.New(registry.Config{Store: mockStore})
		require.NoError(t, err)

		manager, err := New(Config{DB: db, Registry: reg, Applier: &mockApplier{}})
		require.NoError(t, err)

		_, err = manager.Provisioned(context.Background())
		assert.ErrorContains(t, err, "failed to list tenants")
	})
}

func TestProvisionShared(t *testing.T) {
	t.Run("applies the shared set to the shared schema", func(t *testing.T) {
		manager, mock, _, _ := newTestManager(t)
		shared := &mockApplier{}

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "public"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		result, err := manager.ProvisionShared(context.Background(), shared)
		require.NoError(t, err)

		assert.Equal(t, []string{"public"}, shared.ApplyCalls)
		assert.Equal(t, []string{"0001_init"}, result.Applied)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires an applier", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t)

		_, err := manager.ProvisionShared(context.Background(), nil)
		assert.ErrorIs(t, err, pgtenancy.ErrConfiguration)
	})

	t.Run("schema creation failure", func(t *testing.T) {
		manager, mock, _, _ := newTestManager(t)

		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "public"`).
			WillReturnError(errors.New("permission denied"))

		result, err := manager.ProvisionShared(context.Background(), &mockApplier{})
		require.Error(t, err)
		assert.Error(t, result.Err)
	})
}
