package migrate

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pgtenancy"
)

func newTestRunner(t *testing.T, graph *Graph) (*Runner, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner, err := New(Config{DB: db, Graph: graph, Workers: 1})
	require.NoError(t, err)

	return runner, mock
}

// expectSchemaPrelude expects the lock, ledger bootstrap, and applied-set
// read that every Apply performs before running migrations.
func expectSchemaPrelude(mock sqlmock.Sqlmock, schema string, applied ...string) {
	mock.ExpectExec("pg_advisory_lock").
		WithArgs("pgtenancy:migrate:" + schema).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range applied {
		rows.AddRow(id)
	}
	mock.ExpectQuery("SELECT id FROM").WillReturnRows(rows)
}

// expectMigration expects one migration's transaction: search_path,
// statements, ledger insert, commit.
func expectMigration(mock sqlmock.Sqlmock, m Migration) {
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, stmt := range m.Statements {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO").
		WithArgs(m.ID).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func expectUnlock(mock sqlmock.Sqlmock, schema string) {
	mock.ExpectExec("pg_advisory_unlock").
		WithArgs("pgtenancy:migrate:" + schema).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestNewRunner(t *testing.T) {
	t.Run("requires a database handle", func(t *testing.T) {
		_, err := New(Config{Graph: NewGraph()})
		assert.ErrorIs(t, err, pgtenancy.ErrConfiguration)
	})

	t.Run("requires a migration graph", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		_, err = New(Config{DB: db})
		assert.ErrorIs(t, err, pgtenancy.ErrConfiguration)
	})

	t.Run("applies defaults", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		runner, err := New(Config{DB: db, Graph: NewGraph()})
		require.NoError(t, err)

		assert.Equal(t, `"schema_migrations"`, runner.ledger)
		assert.Equal(t, 4, runner.config.Workers)
		assert.Equal(t, time.Minute, runner.config.LockTimeout)
	})
}

func TestApply_AppliesPendingInOrder(t *testing.T) {
	init := Migration{ID: "0001_init", Statements: []string{"CREATE TABLE orders (id BIGSERIAL PRIMARY KEY)"}}
	index := Migration{ID: "0002_index", DependsOn: []string{"0001_init"}, Statements: []string{"CREATE INDEX idx_orders ON orders (id)"}}
	runner, mock := newTestRunner(t, buildGraph(t, index, init))

	expectSchemaPrelude(mock, "acme")
	expectMigration(mock, init)
	expectMigration(mock, index)
	expectUnlock(mock, "acme")

	result, err := runner.Apply(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, result.OK())
	assert.Equal(t, "acme", result.Schema)
	assert.Equal(t, []string{"0001_init", "0002_index"}, result.Applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_SkipsAppliedAndResumes(t *testing.T) {
	init := Migration{ID: "0001_init", Statements: []string{"CREATE TABLE orders (id BIGSERIAL PRIMARY KEY)"}}
	index := Migration{ID: "0002_index", DependsOn: []string{"0001_init"}, Statements: []string{"CREATE INDEX idx_orders ON orders (id)"}}
	runner, mock := newTestRunner(t, buildGraph(t, init, index))

	expectSchemaPrelude(mock, "acme", "0001_init")
	expectMigration(mock, index)
	expectUnlock(mock, "acme")

	result, err := runner.Apply(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, []string{"0002_index"}, result.Applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_NothingPending(t *testing.T) {
	init := Migration{ID: "0001_init"}
	runner, mock := newTestRunner(t, buildGraph(t, init))

	expectSchemaPrelude(mock, "acme", "0001_init")
	expectUnlock(mock, "acme")

	result, err := runner.Apply(context.Background(), "acme")
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	assert.True(t, result.OK())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_StatementFailureRollsBack(t *testing.T) {
	broken := Migration{ID: "0001_broken", Statements: []string{"CREATE TABLE nope"}}
	after := Migration{ID: "0002_after", DependsOn: []string{"0001_broken"}}
	runner, mock := newTestRunner(t, buildGraph(t, broken, after))

	expectSchemaPrelude(mock, "acme")
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE nope")).
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	expectUnlock(mock, "acme")

	result, err := runner.Apply(context.Background(), "acme")
	require.Error(t, err)

	assert.ErrorContains(t, err, "0001_broken")
	assert.False(t, result.OK())
	assert.Empty(t, result.Applied)
	// The dependent migration never started and the lock was released.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_RunHookInsideTransaction(t *testing.T) {
	hookRan := false
	backfill := Migration{
		ID: "0001_backfill",
		Run: func(ctx context.Context, tx *sql.Tx) error {
			hookRan = true
			_, err := tx.ExecContext(ctx, "UPDATE orders SET total = 0")
			return err
		},
	}
	runner, mock := newTestRunner(t, buildGraph(t, backfill))

	expectSchemaPrelude(mock, "acme")
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO").
		WithArgs("0001_backfill").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectUnlock(mock, "acme")

	result, err := runner.Apply(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, hookRan)
	assert.Equal(t, []string{"0001_backfill"}, result.Applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_RunHookFailureRollsBack(t *testing.T) {
	failing := Migration{
		ID: "0001_failing",
		Run: func(ctx context.Context, tx *sql.Tx) error {
			return errors.New("backfill went wrong")
		},
	}
	runner, mock := newTestRunner(t, buildGraph(t, failing))

	expectSchemaPrelude(mock, "acme")
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	expectUnlock(mock, "acme")

	_, err := runner.Apply(context.Background(), "acme")
	require.Error(t, err)
	assert.ErrorContains(t, err, "hook failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_InvalidSchemaName(t *testing.T) {
	runner, mock := newTestRunner(t, NewGraph())

	_, err := runner.Apply(context.Background(), "bad-schema")
	assert.ErrorIs(t, err, pgtenancy.ErrInvalidSchemaName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_GraphConflictFailsBeforeConnecting(t *testing.T) {
	g := buildGraph(t, Migration{ID: "0002_orders", DependsOn: []string{"0001_missing"}})
	runner, mock := newTestRunner(t, g)

	_, err := runner.Apply(context.Background(), "acme")
	assert.ErrorIs(t, err, pgtenancy.ErrMigrationConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_LockFailure(t *testing.T) {
	runner, mock := newTestRunner(t, buildGraph(t, Migration{ID: "0001_init"}))

	mock.ExpectExec("pg_advisory_lock").
		WithArgs("pgtenancy:migrate:acme").
		WillReturnError(errors.New("lock wait timeout"))

	_, err := runner.Apply(context.Background(), "acme")
	require.Error(t, err)
	assert.ErrorContains(t, err, "migration lock")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplied(t *testing.T) {
	t.Run("returns ledger entries oldest first", func(t *testing.T) {
		runner, mock := newTestRunner(t, NewGraph())

		appliedAt := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT id, applied_at FROM").
			WillReturnRows(sqlmock.NewRows([]string{"id", "applied_at"}).
				AddRow("0001_init", appliedAt).
				AddRow("0002_index", appliedAt.Add(time.Minute)))

		entries, err := runner.Applied(context.Background(), "acme")
		require.NoError(t, err)

		require.Len(t, entries, 2)
		assert.Equal(t, "0001_init", entries[0].ID)
		assert.Equal(t, appliedAt, entries[0].AppliedAt)
		assert.Equal(t, "0002_index", entries[1].ID)
	})

	t.Run("missing ledger table reads as empty", func(t *testing.T) {
		runner, mock := newTestRunner(t, NewGraph())

		mock.ExpectQuery("SELECT id, applied_at FROM").
			WillReturnError(&pq.Error{Code: "42P01"})

		entries, err := runner.Applied(context.Background(), "fresh")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("invalid schema name", func(t *testing.T) {
		runner, _ := newTestRunner(t, NewGraph())

		_, err := runner.Applied(context.Background(), "bad-schema")
		assert.ErrorIs(t, err, pgtenancy.ErrInvalidSchemaName)
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		runner, mock := newTestRunner(t, NewGraph())

		mock.ExpectQuery("SELECT id, applied_at FROM").
			WillReturnError(sql.ErrConnDone)

		_, err := runner.Applied(context.Background(), "acme")
		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestApplyAll_BestEffort(t *testing.T) {
	init := Migration{ID: "0001_init", Statements: []string{"CREATE TABLE orders (id BIGSERIAL PRIMARY KEY)"}}
	runner, mock := newTestRunner(t, buildGraph(t, init))

	// alpha fails, beta and gamma complete. Workers is 1, so the
	// schemas run sequentially in request order.
	expectSchemaPrelude(mock, "alpha")
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE orders").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()
	expectUnlock(mock, "alpha")

	expectSchemaPrelude(mock, "beta")
	expectMigration(mock, init)
	expectUnlock(mock, "beta")

	expectSchemaPrelude(mock, "gamma")
	expectMigration(mock, init)
	expectUnlock(mock, "gamma")

	report := runner.ApplyAll(context.Background(), []string{"alpha", "beta", "gamma"})

	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.OK())
	assert.Equal(t, 2, report.TotalApplied())

	require.Len(t, report.Results, 3)
	assert.Equal(t, "alpha", report.Results[0].Schema)
	assert.Error(t, report.Results[0].Err)
	assert.True(t, report.Results[1].OK())
	assert.True(t, report.Results[2].OK())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "alpha", failed[0].Schema)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAll_CancelledBeforeStart(t *testing.T) {
	runner, mock := newTestRunner(t, buildGraph(t, Migration{ID: "0001_init"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := runner.ApplyAll(ctx, []string{"alpha", "beta"})

	require.Len(t, report.Results, 2)
	for _, result := range report.Results {
		assert.ErrorIs(t, result.Err, context.Canceled)
		assert.Empty(t, result.Applied)
	}
	assert.False(t, report.OK())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAll_CancellationStopsAtSchemaBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// The first schema's migration cancels the bulk run mid-flight. The
	// schema still completes, and the remaining schema is never started.
	cancelling := Migration{
		ID: "0001_cancelling",
		Run: func(runCtx context.Context, tx *sql.Tx) error {
			cancel()
			return nil
		},
	}
	runner, mock := newTestRunner(t, buildGraph(t, cancelling))

	expectSchemaPrelude(mock, "alpha")
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO").
		WithArgs("0001_cancelling").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectUnlock(mock, "alpha")

	report := runner.ApplyAll(ctx, []string{"alpha", "beta"})

	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].OK())
	assert.Equal(t, []string{"0001_cancelling"}, report.Results[0].Applied)
	assert.ErrorIs(t, report.Results[1].Err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}
