package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallExtensions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(db)

	t.Run("install_and_load_in_order", func(t *testing.T) {
		mock.ExpectExec("INSTALL json").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("LOAD json").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSTALL spatial").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("LOAD spatial").WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, InstallExtensions(context.Background(), drv, "json", "spatial"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_name", func(t *testing.T) {
		err := InstallExtensions(context.Background(), drv, "json; DROP TABLE t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid extension name")
	})

	t.Run("install_failure_names_extension", func(t *testing.T) {
		mock.ExpectExec("INSTALL h3").WillReturnError(errors.New("IO Error: extension not found"))

		err := InstallExtensions(context.Background(), drv, "h3")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extension h3")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateMappedViews(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(db)

	t.Run("sorted_order", func(t *testing.T) {
		mock.ExpectExec(`CREATE OR REPLACE VIEW "people" AS SELECT \* FROM read_json_auto\('people.json'\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`CREATE OR REPLACE VIEW "trips" AS SELECT \* FROM read_parquet\('trips/\*.parquet'\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := CreateMappedViews(context.Background(), drv, map[string]string{
			"trips":  "read_parquet('trips/*.parquet')",
			"people": "read_json_auto('people.json')",
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_view_name", func(t *testing.T) {
		err := CreateMappedViews(context.Background(), drv, map[string]string{"people raw": "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table mapping name")
	})

	t.Run("failure_names_mapping", func(t *testing.T) {
		mock.ExpectExec("CREATE OR REPLACE VIEW").
			WillReturnError(errors.New("IO Error: No files found that match the pattern"))

		err := CreateMappedViews(context.Background(), drv, map[string]string{"trips": "read_parquet('missing/*.parquet')"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `map table "trips"`)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_mappings", func(t *testing.T) {
		require.NoError(t, CreateMappedViews(context.Background(), drv, nil))
	})
}

func TestBootstrap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(db)

	// Bootstrap order: extensions, autoload settings, mapped views, boot
	// queries.
	mock.ExpectExec("INSTALL json").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOAD json").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET autoinstall_known_extensions = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET autoload_known_extensions = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE OR REPLACE VIEW "people"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS staging").WillReturnResult(sqlmock.NewResult(0, 0))

	cfg := defaultConfig()
	for _, opt := range []Option{
		WithExtensions("json"),
		WithAutoloadKnownExtensions(),
		WithTableMapping("people", "read_json_auto('people.json')"),
		WithBootQueries("CREATE SCHEMA IF NOT EXISTS staging"),
	} {
		opt(&cfg)
	}
	require.NoError(t, drv.bootstrap(context.Background(), cfg))
	require.NoError(t, mock.ExpectationsWereMet())

	t.Run("boot_query_failure", func(t *testing.T) {
		mock.ExpectExec("CREATE SCHEMA").
			WillReturnError(errors.New("Catalog Error: Schema with name staging already exists!"))

		err := drv.bootstrap(context.Background(), Config{BootQueries: []string{"CREATE SCHEMA staging"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boot query")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExtensionsCatalog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(db)

	mock.ExpectQuery(`FROM duckdb_extensions\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"extension_name", "loaded", "installed"}).
			AddRow("json", true, true).
			AddRow("parquet", true, true).
			AddRow("spatial", false, false))

	exts, err := Extensions(context.Background(), drv)
	require.NoError(t, err)
	require.Len(t, exts, 3)
	assert.Equal(t, Extension{Name: "json", Loaded: true, Installed: true}, exts[0])
	assert.Equal(t, Extension{Name: "spatial"}, exts[2])
	require.NoError(t, mock.ExpectationsWereMet())
}
