package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/domain/model"
)

// UserRepository — интерфейс чтения пользователей.
// Сервису fingerprint-поиска нужны пользователи только для проекций
// author/feats в API-ответах, поэтому операций записи нет.
type UserRepository interface {
	// GetByID возвращает пользователя по UUID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByIDs возвращает пользователей по списку UUID (порядок не гарантируется).
	GetByIDs(ctx context.Context, ids []string) ([]*model.User, error)
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id::text, username, email, profile_picture, created_at`

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1::uuid`

	u := &model.User{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Email, &u.ProfilePicture, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ANY($1::uuid[])`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.ProfilePicture, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
