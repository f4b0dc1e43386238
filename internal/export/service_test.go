package export

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"

	"github.com/vamojunto/nfce-tracker/internal/entity"
	"github.com/vamojunto/nfce-tracker/internal/repository"
)

func newTestStore(t *testing.T) (repository.UserRepository, repository.NoteRepository) {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema := []string{
		`CREATE TABLE users (
			id TEXT PRIMARY KEY, name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE, cpf TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE notes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			access_key_hash TEXT NOT NULL,
			establishment_name TEXT NOT NULL,
			establishment_tax_id TEXT NOT NULL DEFAULT '',
			establishment_address TEXT NOT NULL DEFAULT '',
			issued_at TIMESTAMP NOT NULL,
			total_value TEXT NOT NULL, total_tax TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, access_key_hash)
		)`,
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL, code TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL, quantity TEXT NOT NULL,
			unit TEXT NOT NULL, unit_price TEXT NOT NULL, line_total TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (note_id, position)
		)`,
	}
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return repository.NewUserRepository(db, nil), repository.NewNoteRepository(db, nil)
}

func TestExportNotesXLSX(t *testing.T) {
	users, notes := newTestStore(t)
	ctx := context.Background()

	u, err := users.Create(ctx, &entity.User{
		Name: "Maria Silva", Email: "maria@example.com", CPF: "111.444.777-35", PasswordHash: "x",
	})
	require.NoError(t, err)

	_, err = notes.CreateWithProducts(ctx, &entity.Note{
		UserID:             u.ID,
		AccessKeyHash:      "a86c5f51d7e6c7f807eebe09fc86b472a82b18da2ee0442d4601912722259905",
		EstablishmentName:  "MERCADO TESTE LTDA",
		EstablishmentTaxID: "14.200.166/0001-87",
		IssuedAt:           time.Date(2020, 1, 11, 14, 30, 25, 0, time.UTC),
		TotalValue:         decimal.RequireFromString("45.90"),
		TotalTax:           decimal.RequireFromString("3.17"),
	}, []*entity.Product{
		{Position: 0, Description: "ARROZ BRANCO 5KG", Quantity: decimal.NewFromInt(1),
			Unit: "UN", UnitPrice: decimal.RequireFromString("22.50"), LineTotal: decimal.RequireFromString("22.50")},
		{Position: 1, Description: "BANANA PRATA", Quantity: decimal.RequireFromString("0.325"),
			Unit: "KG", UnitPrice: decimal.RequireFromString("8.00"), LineTotal: decimal.RequireFromString("2.60")},
	})
	require.NoError(t, err)

	svc := NewService(notes, nil)
	out, err := svc.ExportNotesXLSX(ctx, u.ID, repository.NoteFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Notes")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Issued At", rows[0][0])
	assert.Equal(t, "MERCADO TESTE LTDA", rows[1][1])
	assert.Equal(t, "45.9", rows[1][3])

	products, err := f.GetRows("Products")
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "ARROZ BRANCO 5KG", products[1][2])
	assert.Equal(t, "BANANA PRATA", products[2][2])
}

func TestExportEmptyAccount(t *testing.T) {
	users, notes := newTestStore(t)
	ctx := context.Background()

	u, err := users.Create(ctx, &entity.User{
		Name: "Maria Silva", Email: "maria@example.com", CPF: "111.444.777-35", PasswordHash: "x",
	})
	require.NoError(t, err)

	svc := NewService(notes, nil)
	out, err := svc.ExportNotesXLSX(ctx, u.ID, repository.NoteFilter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Notes")
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}
