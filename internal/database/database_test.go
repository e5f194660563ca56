package database

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogCPT/internal/config"
	"blogCPT/internal/logger"
)

func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	wrapped := NewDB(sqlx.NewDb(db, "postgres"), logger.Discard())
	t.Cleanup(func() { wrapped.CloseDB() })

	return wrapped, mock
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DB{
		DbHOST:     "db",
		DbPORT:     "5432",
		DbUSER:     "blog",
		DbPASSWORD: "pw",
		DbNAME:     "blog",
		DbSSLMODE:  "disable",
	})
	assert.Equal(t, "host=db port=5432 user=blog password=pw dbname=blog sslmode=disable", dsn)
}

func TestRunMigrations(t *testing.T) {
	db, mock := setupMockDB(t)

	path := filepath.Join(t.TempDir(), "001.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE documents (id TEXT)"), 0o600))

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE documents (id TEXT)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.RunMigrations(path))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_MissingFile(t *testing.T) {
	db, _ := setupMockDB(t)

	err := db.RunMigrations(filepath.Join(t.TempDir(), "missing.sql"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "файл миграций не найден")
}

func TestHealthCheck(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectPing()
	assert.NoError(t, db.HealthCheck())

	var nilDB *DB
	assert.Error(t, nilDB.HealthCheck())
}
