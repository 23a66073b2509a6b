package duckdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := NewStatsDriver(OpenDB(db), WithSlowThreshold(time.Hour))

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"2"}).AddRow(int64(2)))
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT boom").WillReturnError(errors.New("Parser Error: syntax error"))

	for _, q := range []string{"SELECT 1", "SELECT 2"} {
		rows := &Rows{}
		require.NoError(t, drv.Query(context.Background(), q, []any{}, rows))
		require.NoError(t, rows.Close())
	}
	require.NoError(t, drv.Exec(context.Background(), "INSERT INTO t DEFAULT VALUES", []any{}, nil))
	require.Error(t, drv.Query(context.Background(), "SELECT boom", []any{}, &Rows{}))

	snap := drv.QueryStats().Stats()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.TotalExecs)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(0), snap.SlowQueries)
	assert.Positive(t, snap.TotalDuration)
	assert.Positive(t, snap.AvgQueryDuration())
	assert.Contains(t, snap.String(), "queries=3 execs=1")

	drv.QueryStats().Reset()
	assert.Equal(t, StatsSnapshot{}, drv.QueryStats().Stats())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsDriverSlowQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var (
		hookQuery string
		hookArgs  []any
	)
	// A zero threshold marks every statement as slow.
	drv := NewStatsDriver(OpenDB(db),
		WithSlowThreshold(0),
		WithSlowQueryHook(func(_ context.Context, query string, args []any, d time.Duration) {
			hookQuery = query
			hookArgs = args
			assert.Positive(t, d)
		}),
	)

	mock.ExpectQuery(`SELECT name FROM users WHERE id = \$param1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("slow"))

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT name FROM users WHERE id = ?", []any{int64(9)}, rows))
	require.NoError(t, rows.Close())

	assert.Equal(t, int64(1), drv.QueryStats().Stats().SlowQueries)
	assert.Equal(t, "SELECT name FROM users WHERE id = ?", hookQuery, "the hook sees the statement as written")
	assert.Equal(t, []any{int64(9)}, hookArgs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsDriverThreshold(t *testing.T) {
	drv := NewStatsDriver(&Driver{})
	assert.Equal(t, 100*time.Millisecond, drv.SlowThreshold())
	drv.SetSlowThreshold(time.Second)
	assert.Equal(t, time.Second, drv.SlowThreshold())

	logging := NewStatsDriver(&Driver{}, WithSlowQueryLog())
	assert.NotNil(t, logging.slowHook)
}

func TestStatsTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := NewStatsDriver(OpenDB(db), WithSlowThreshold(time.Hour))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectCommit()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "UPDATE t SET a = 1", []any{}, nil))
	rows := &Rows{}
	require.NoError(t, tx.Query(context.Background(), "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())
	require.NoError(t, tx.Commit())

	snap := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.TotalExecs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var logs []string
	drv := NewDebugDriver(OpenDB(db), DebugWithLog(func(_ context.Context, v ...any) {
		logs = append(logs, fmt.Sprint(v...))
	}))

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())
	require.NoError(t, drv.Exec(context.Background(), "INSERT INTO t DEFAULT VALUES", []any{}, nil))

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	tx, err = drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	joined := strings.Join(logs, "\n")
	assert.Contains(t, joined, "query: SELECT 1")
	assert.Contains(t, joined, "exec: INSERT INTO t DEFAULT VALUES")
	assert.Contains(t, joined, "begin transaction")
	assert.Contains(t, joined, "commit transaction")
	assert.Contains(t, joined, "rollback transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}
