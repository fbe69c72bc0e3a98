package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
)

// userColumns — список столбцов таблицы users.
const userColumns = `id, username, password_hash, is_active, created_at`

// UserRepository — учётные записи пользователей.
type UserRepository interface {
	// Create сохраняет пользователя и заполняет ID, IsActive и CreatedAt.
	Create(ctx context.Context, u *model.User) error
	// GetByUsername возвращает пользователя по имени или ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, is_active, created_at`

	err := r.db.QueryRow(ctx, query, u.Username, u.PasswordHash).Scan(&u.ID, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь %s уже существует", ErrConflict, u.Username)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)

	u := &model.User{}
	err := r.db.QueryRow(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
