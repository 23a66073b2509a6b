package migrate

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/oorabona/duckdialect/duckdb"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newMockDriver(t *testing.T) (*duckdb.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return duckdb.OpenDB(db), mock
}

func mustSQL(t *testing.T, name, up, down string) *Migration {
	t.Helper()
	m, err := FromSQL(name, up, down)
	require.NoError(t, err)
	return m
}

func sourceOf(ms ...*Migration) Source {
	return SourceFunc(func() ([]*Migration, error) { return ms, nil })
}

func expectEnsure(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "schema_migrations" (name VARCHAR PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectApplied(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"name", "applied_at"})
	for i, name := range names {
		rows.AddRow(name, time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC))
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, applied_at FROM "schema_migrations" ORDER BY name`)).
		WillReturnRows(rows)
}

func expectApply(mock sqlmock.Sqlmock, name string, stmts ...string) {
	mock.ExpectBegin()
	for _, s := range stmts {
		mock.ExpectExec(regexp.QuoteMeta(s)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "schema_migrations" (name, applied_at) VALUES ($param1, $param2)`)).
		WithArgs(name, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func expectRevert(mock sqlmock.Sqlmock, name string, stmts ...string) {
	mock.ExpectBegin()
	for _, s := range stmts {
		mock.ExpectExec(regexp.QuoteMeta(s)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "schema_migrations" WHERE name = $param1`)).
		WithArgs(name).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func petsSource(t *testing.T) Source {
	t.Helper()
	return sourceOf(
		mustSQL(t, "0001_users", "CREATE TABLE users (id BIGINT)", "DROP TABLE users"),
		mustSQL(t, "0002_pets", "CREATE TABLE pets (id BIGINT)", "DROP TABLE pets"),
	)
}

func TestMigratorUp(t *testing.T) {
	ctx := context.Background()
	t.Run("applies_all_pending", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock)
		expectApply(mock, "0001_users", "CREATE TABLE users (id BIGINT)")
		expectApply(mock, "0002_pets", "CREATE TABLE pets (id BIGINT)")

		n, err := New(drv, petsSource(t), WithLogger(discard)).Up(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("skips_applied", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0001_users")
		expectApply(mock, "0002_pets", "CREATE TABLE pets (id BIGINT)")

		n, err := New(drv, petsSource(t), WithLogger(discard)).Up(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("nothing_pending", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0001_users", "0002_pets")

		n, err := New(drv, petsSource(t), WithLogger(discard)).Up(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("out_of_order_detected", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0002_pets")

		n, err := New(drv, petsSource(t), WithLogger(discard)).Up(ctx)
		require.ErrorIs(t, err, ErrOutOfOrder)
		assert.Contains(t, err.Error(), "0001_users sorts before applied 0002_pets")
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("out_of_order_allowed", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0002_pets")
		expectApply(mock, "0001_users", "CREATE TABLE users (id BIGINT)")

		n, err := New(drv, petsSource(t), WithLogger(discard), WithAllowOutOfOrder()).Up(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("failure_rolls_back", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock)
		expectApply(mock, "0001_users", "CREATE TABLE users (id BIGINT)")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE pets (id BIGINT)")).
			WillReturnError(errors.New(`Catalog Error: Table with name "pets" already exists!`))
		mock.ExpectRollback()

		n, err := New(drv, petsSource(t), WithLogger(discard)).Up(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "apply 0002_pets")
		assert.True(t, duckdb.IsCatalogError(err))
		assert.Equal(t, 1, n, "first migration stays applied")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("record_failure_rolls_back", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0001_users")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE pets (id BIGINT)")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "schema_migrations"`)).
			WillReturnError(errors.New("Constraint Error: Duplicate key"))
		mock.ExpectRollback()

		n, err := New(drv, petsSource(t), WithLogger(discard)).Up(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "record 0002_pets")
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("ensure_failure", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "schema_migrations"`)).
			WillReturnError(errors.New("IO Error: disk full"))

		_, err := New(drv, petsSource(t), WithLogger(discard)).Up(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ensure schema_migrations")
	})
	t.Run("custom_table", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "app_migrations" (name VARCHAR PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, applied_at FROM "app_migrations" ORDER BY name`)).
			WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}))

		n, err := New(drv, sourceOf(), WithLogger(discard), WithTable("app_migrations")).Up(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigratorUpTo(t *testing.T) {
	ctx := context.Background()
	t.Run("stops_at_target", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock)
		expectApply(mock, "0001_users", "CREATE TABLE users (id BIGINT)")
		expectApply(mock, "0002_pets", "CREATE TABLE pets (id BIGINT)")

		src := sourceOf(
			mustSQL(t, "0001_users", "CREATE TABLE users (id BIGINT)", ""),
			mustSQL(t, "0002_pets", "CREATE TABLE pets (id BIGINT)", ""),
			mustSQL(t, "0003_toys", "CREATE TABLE toys (id BIGINT)", ""),
		)
		n, err := New(drv, src, WithLogger(discard)).UpTo(ctx, "0002_pets")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("unknown_target", func(t *testing.T) {
		drv, _ := newMockDriver(t)
		_, err := New(drv, petsSource(t), WithLogger(discard)).UpTo(ctx, "0009_nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown migration "0009_nope"`)
	})
	t.Run("empty_target", func(t *testing.T) {
		drv, _ := newMockDriver(t)
		_, err := New(drv, petsSource(t), WithLogger(discard)).UpTo(ctx, "")
		require.Error(t, err)
	})
}

func TestMigratorDown(t *testing.T) {
	ctx := context.Background()
	t.Run("reverts_last", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0001_users", "0002_pets")
		expectRevert(mock, "0002_pets", "DROP TABLE pets")

		n, err := New(drv, petsSource(t), WithLogger(discard)).Down(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("nothing_applied", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock)

		n, err := New(drv, petsSource(t), WithLogger(discard)).Down(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
	t.Run("irreversible", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0001_users", "0002_seed")

		src := sourceOf(
			mustSQL(t, "0001_users", "CREATE TABLE users (id BIGINT)", "DROP TABLE users"),
			mustSQL(t, "0002_seed", "INSERT INTO users VALUES (1)", ""),
		)
		n, err := New(drv, src, WithLogger(discard)).Down(ctx)
		require.ErrorIs(t, err, ErrIrreversible)
		assert.Contains(t, err.Error(), "0002_seed")
		assert.Zero(t, n)
	})
	t.Run("applied_missing_from_source", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0009_ghost")

		_, err := New(drv, petsSource(t), WithLogger(discard)).Down(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `applied migration "0009_ghost" not found in source`)
	})
}

func TestMigratorDownTo(t *testing.T) {
	ctx := context.Background()
	src := func(t *testing.T) Source {
		return sourceOf(
			mustSQL(t, "0001_users", "CREATE TABLE users (id BIGINT)", "DROP TABLE users"),
			mustSQL(t, "0002_pets", "CREATE TABLE pets (id BIGINT)", "DROP TABLE pets"),
			mustSQL(t, "0003_toys", "CREATE TABLE toys (id BIGINT)", "DROP TABLE toys"),
		)
	}
	t.Run("reverts_above_target", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0001_users", "0002_pets", "0003_toys")
		expectRevert(mock, "0003_toys", "DROP TABLE toys")
		expectRevert(mock, "0002_pets", "DROP TABLE pets")

		n, err := New(drv, src(t), WithLogger(discard)).DownTo(ctx, "0001_users")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("empty_name_reverts_all", func(t *testing.T) {
		drv, mock := newMockDriver(t)
		expectEnsure(mock)
		expectApplied(mock, "0001_users", "0002_pets")
		expectRevert(mock, "0002_pets", "DROP TABLE pets")
		expectRevert(mock, "0001_users", "DROP TABLE users")

		n, err := New(drv, src(t), WithLogger(discard)).DownTo(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("unknown_target", func(t *testing.T) {
		drv, _ := newMockDriver(t)
		_, err := New(drv, src(t), WithLogger(discard)).DownTo(ctx, "0009_nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown migration")
	})
}

func TestMigratorStatus(t *testing.T) {
	ctx := context.Background()
	drv, mock := newMockDriver(t)
	src := sourceOf(
		mustSQL(t, "0001_users", "CREATE TABLE users (id BIGINT)", "DROP TABLE users"),
		mustSQL(t, "0002_pets", "CREATE TABLE pets (id BIGINT)", ""),
	)
	m := New(drv, src, WithLogger(discard))

	expectEnsure(mock)
	expectApplied(mock, "0001_users", "0999_gone")
	sts, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, sts, 3)
	assert.Equal(t, "0001_users", sts[0].Name)
	assert.True(t, sts[0].Applied)
	assert.True(t, sts[0].Reversible)
	assert.False(t, sts[0].AppliedAt.IsZero())
	assert.Equal(t, "0002_pets", sts[1].Name)
	assert.False(t, sts[1].Applied)
	assert.False(t, sts[1].Reversible)
	// Records with no matching source migration still show up.
	assert.Equal(t, "0999_gone", sts[2].Name)
	assert.True(t, sts[2].Applied)
	assert.False(t, sts[2].Reversible)

	expectEnsure(mock)
	expectApplied(mock, "0001_users", "0999_gone")
	pend, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pend, 1)
	assert.Equal(t, "0002_pets", pend[0].Name)

	expectEnsure(mock)
	expectApplied(mock, "0001_users")
	recs, err := m.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "0001_users", recs[0].Name)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), recs[0].AppliedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorSourceValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		src     Source
		wantErr string
	}{
		{
			name: "duplicate_names",
			src: sourceOf(
				&Migration{Name: "0001", Up: execAll([]string{"SELECT 1"})},
				&Migration{Name: "0001", Up: execAll([]string{"SELECT 1"})},
			),
			wantErr: `duplicate migration name "0001"`,
		},
		{
			name:    "nil_migration",
			src:     sourceOf(nil),
			wantErr: "nil migration",
		},
		{
			name:    "empty_name",
			src:     sourceOf(&Migration{Up: execAll([]string{"SELECT 1"})}),
			wantErr: "empty name",
		},
		{
			name:    "missing_up",
			src:     sourceOf(&Migration{Name: "0001"}),
			wantErr: "0001: missing Up",
		},
		{
			name:    "source_error",
			src:     SourceFunc(func() ([]*Migration, error) { return nil, errors.New("boom") }),
			wantErr: "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, _ := newMockDriver(t)
			_, err := New(drv, tt.src, WithLogger(discard)).Up(ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestMigratorSQLite runs the whole lifecycle against a real embedded
// engine that speaks database/sql.
func TestMigratorSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	drv := duckdb.OpenDB(db)
	t.Cleanup(func() { _ = drv.Close() })
	ctx := context.Background()

	fsys := fstest.MapFS{
		"0001_users.sql": {Data: []byte(`-- +migrate Up
CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR NOT NULL);
INSERT INTO users (id, name) VALUES (1, 'alice');
-- +migrate Down
DROP TABLE users;
`)},
		"0002_pets.sql": {Data: []byte(`-- +migrate Up
CREATE TABLE pets (id INTEGER PRIMARY KEY, owner_id INTEGER, name VARCHAR);
-- +migrate Down
DROP TABLE pets;
`)},
	}
	m := New(drv, DirSource(fsys, "."), WithLogger(discard))

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A second run finds nothing to do.
	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The seed row landed and parameters bind through the rewriter.
	var rows duckdb.Rows
	require.NoError(t, drv.Query(ctx, "SELECT name FROM users WHERE id = ?", []any{1}, &rows))
	row, err := duckdb.CollectOneRow(&rows)
	require.NoError(t, rows.Close())
	require.NoError(t, err)
	assert.Equal(t, "alice", row["name"])

	sts, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, sts, 2)
	assert.True(t, sts[0].Applied)
	assert.True(t, sts[1].Applied)
	assert.False(t, sts[0].AppliedAt.IsZero())

	// One step back drops pets and leaves it pending again.
	n, err = m.Down(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	pend, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pend, 1)
	assert.Equal(t, "0002_pets", pend[0].Name)
	err = drv.Query(ctx, "SELECT count(*) FROM pets", []any{}, &rows)
	require.Error(t, err)

	// And forward again.
	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
