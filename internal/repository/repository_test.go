package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// Repositories run against postgres in production; tests exercise the same
// SQL on sqlite, which shares the placeholder style and RETURNING-free
// statements used here.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema := []string{
		`CREATE TABLE users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			cpf TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE notes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			access_key_hash TEXT NOT NULL,
			establishment_name TEXT NOT NULL,
			establishment_tax_id TEXT NOT NULL DEFAULT '',
			establishment_address TEXT NOT NULL DEFAULT '',
			issued_at TIMESTAMP NOT NULL,
			total_value TEXT NOT NULL,
			total_tax TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, access_key_hash)
		)`,
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			quantity TEXT NOT NULL,
			unit TEXT NOT NULL,
			unit_price TEXT NOT NULL,
			line_total TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (note_id, position)
		)`,
	}
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}
