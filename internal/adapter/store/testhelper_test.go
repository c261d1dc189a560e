package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// A unique name derived from t.Name() keeps tests isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	db, err := openSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db))
	return db
}

// setupPostgresDB connects to GITSUM_TEST_DATABASE_URL, skipping the test when unset.
func setupPostgresDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("GITSUM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GITSUM_TEST_DATABASE_URL not set")
	}

	db, err := NewPostgresDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db))
	_, err = db.Writer.ExecContext(context.Background(), `TRUNCATE chat_messages, chat_sessions, repositories RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}
