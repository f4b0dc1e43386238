package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/entity"
)

// ErrUserExists is returned when a registration collides with an existing
// email or CPF.
var ErrUserExists = errors.New("user with this email or CPF already exists")

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
}

type userRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewUserRepository(db *sql.DB, logger *slog.Logger) UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &userRepository{db: db, logger: logger}
}

const userColumns = `id, name, email, cpf, password_hash, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *entity.User) (*entity.User, error) {
	now := time.Now().UTC()
	user.ID = uuid.New()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, cpf, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Name, user.Email, user.CPF, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		r.logger.Error("failed to insert user", "email", user.Email, "error", err)
		return nil, err
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (*entity.User, error) {
	var user entity.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.CPF, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to query user", "error", err)
		return nil, err
	}
	return &user, nil
}
