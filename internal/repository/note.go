package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/entity"
)

// ErrDuplicateNote is returned when an insert collides with the
// (user_id, access_key_hash) unique constraint. Callers treat it as a
// successful duplicate detection, not a failure.
var ErrDuplicateNote = errors.New("note already exists for this access key")

// NoteFilter narrows List results. IssuedFrom is inclusive, IssuedBefore
// exclusive, so a whole-day window is [day, day+24h).
type NoteFilter struct {
	Establishment string
	IssuedFrom    *time.Time
	IssuedBefore  *time.Time
	Limit         int
	Offset        int
}

// NoteRepository persists notes and their product lines. A note and its
// full product set are written in one transaction; readers never observe a
// partial set.
type NoteRepository interface {
	// FindByHash returns the note with the given identity hash for a user,
	// or common.ErrNotFound. Products are not loaded.
	FindByHash(ctx context.Context, userID uuid.UUID, accessKeyHash string) (*entity.Note, error)
	// CreateWithProducts atomically inserts the note and all its products.
	// Returns ErrDuplicateNote when the unique constraint fires.
	CreateWithProducts(ctx context.Context, note *entity.Note, products []*entity.Product) (*entity.Note, error)
	// GetByID returns one note with products in position order.
	GetByID(ctx context.Context, userID, noteID uuid.UUID) (*entity.Note, error)
	// List returns a user's notes, newest issue date first, products included.
	List(ctx context.Context, userID uuid.UUID, filter NoteFilter) ([]*entity.Note, error)
	// Delete removes a note and, via cascade, its products.
	Delete(ctx context.Context, userID, noteID uuid.UUID) error
}

type noteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewNoteRepository(db *sql.DB, logger *slog.Logger) NoteRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &noteRepository{db: db, logger: logger}
}

const noteColumns = `id, user_id, access_key_hash, establishment_name, establishment_tax_id,
	establishment_address, issued_at, total_value, total_tax, created_at`

func (r *noteRepository) FindByHash(ctx context.Context, userID uuid.UUID, accessKeyHash string) (*entity.Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = $1 AND access_key_hash = $2`,
		userID, accessKeyHash)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to query note by hash", "user_id", userID, "error", err)
		return nil, err
	}
	return note, nil
}

func (r *noteRepository) CreateWithProducts(ctx context.Context, note *entity.Note, products []*entity.Product) (*entity.Note, error) {
	if len(products) == 0 {
		return nil, fmt.Errorf("refusing to create note without products: %w", common.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("failed to begin transaction", "error", err)
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	note.ID = uuid.New()
	note.CreatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, access_key_hash, establishment_name, establishment_tax_id,
			establishment_address, issued_at, total_value, total_tax, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		note.ID, note.UserID, note.AccessKeyHash, note.EstablishmentName, note.EstablishmentTaxID,
		note.EstablishmentAddress, note.IssuedAt, note.TotalValue.String(), note.TotalTax.String(), note.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateNote
		}
		r.logger.Error("failed to insert note", "user_id", note.UserID, "error", err)
		return nil, err
	}

	for _, p := range products {
		p.ID = uuid.New()
		p.NoteID = note.ID
		p.CreatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO products (id, note_id, position, code, description, quantity, unit, unit_price, line_total, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.NoteID, p.Position, p.Code, p.Description, p.Quantity.String(), p.Unit,
			p.UnitPrice.String(), p.LineTotal.String(), p.CreatedAt)
		if err != nil {
			r.logger.Error("failed to insert product", "note_id", note.ID, "position", p.Position, "error", err)
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateNote
		}
		r.logger.Error("failed to commit note transaction", "note_id", note.ID, "error", err)
		return nil, err
	}

	note.Products = products
	return note, nil
}

func (r *noteRepository) GetByID(ctx context.Context, userID, noteID uuid.UUID) (*entity.Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = $1 AND id = $2`,
		userID, noteID)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to query note", "note_id", noteID, "error", err)
		return nil, err
	}
	if note.Products, err = r.productsOf(ctx, note.ID); err != nil {
		return nil, err
	}
	return note, nil
}

func (r *noteRepository) List(ctx context.Context, userID uuid.UUID, filter NoteFilter) ([]*entity.Note, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + noteColumns + ` FROM notes WHERE user_id = $1`
	args := []any{userID}
	next := 2
	if filter.Establishment != "" {
		query += fmt.Sprintf(` AND LOWER(establishment_name) LIKE $%d`, next)
		args = append(args, "%"+strings.ToLower(filter.Establishment)+"%")
		next++
	}
	if filter.IssuedFrom != nil {
		query += fmt.Sprintf(` AND issued_at >= $%d`, next)
		args = append(args, *filter.IssuedFrom)
		next++
	}
	if filter.IssuedBefore != nil {
		query += fmt.Sprintf(` AND issued_at < $%d`, next)
		args = append(args, *filter.IssuedBefore)
		next++
	}
	query += fmt.Sprintf(` ORDER BY issued_at DESC, created_at DESC LIMIT $%d OFFSET $%d`, next, next+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list notes", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var notes []*entity.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, note := range notes {
		if note.Products, err = r.productsOf(ctx, note.ID); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

func (r *noteRepository) Delete(ctx context.Context, userID, noteID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE user_id = $1 AND id = $2`, userID, noteID)
	if err != nil {
		r.logger.Error("failed to delete note", "note_id", noteID, "error", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *noteRepository) productsOf(ctx context.Context, noteID uuid.UUID) ([]*entity.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, note_id, position, code, description, quantity, unit, unit_price, line_total, created_at
		 FROM products WHERE note_id = $1 ORDER BY position`, noteID)
	if err != nil {
		r.logger.Error("failed to query products", "note_id", noteID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var products []*entity.Product
	for rows.Next() {
		var (
			p                            entity.Product
			quantity, unitPrice, lineTot string
		)
		if err := rows.Scan(&p.ID, &p.NoteID, &p.Position, &p.Code, &p.Description,
			&quantity, &p.Unit, &unitPrice, &lineTot, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("corrupt quantity on product %s: %w", p.ID, err)
		}
		if p.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("corrupt unit price on product %s: %w", p.ID, err)
		}
		if p.LineTotal, err = decimal.NewFromString(lineTot); err != nil {
			return nil, fmt.Errorf("corrupt line total on product %s: %w", p.ID, err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*entity.Note, error) {
	var (
		note            entity.Note
		total, totalTax string
	)
	err := row.Scan(&note.ID, &note.UserID, &note.AccessKeyHash, &note.EstablishmentName,
		&note.EstablishmentTaxID, &note.EstablishmentAddress, &note.IssuedAt,
		&total, &totalTax, &note.CreatedAt)
	if err != nil {
		return nil, err
	}
	if note.TotalValue, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("corrupt total on note %s: %w", note.ID, err)
	}
	if note.TotalTax, err = decimal.NewFromString(totalTax); err != nil {
		return nil, fmt.Errorf("corrupt tax on note %s: %w", note.ID, err)
	}
	return &note, nil
}

// isUniqueViolation detects unique constraint errors from both backends the
// repository runs against: postgres in production (SQLSTATE 23505) and
// sqlite in tests.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
