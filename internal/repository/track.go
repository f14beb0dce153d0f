package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/domain/model"
)

// TrackRepository — интерфейс чтения треков.
// Треки читаются только для проекции foundTrack в API-ответах.
type TrackRepository interface {
	// GetByID возвращает трек по UUID.
	GetByID(ctx context.Context, id string) (*model.Track, error)
}

// trackRepo — реализация TrackRepository.
type trackRepo struct {
	db DBTX
}

// NewTrackRepository создаёт репозиторий треков.
func NewTrackRepository(db DBTX) TrackRepository {
	return &trackRepo{db: db}
}

func (r *trackRepo) GetByID(ctx context.Context, id string) (*model.Track, error) {
	query := `
		SELECT id::text, title, file_name, author_id::text, feat_ids::text[], created_at
		FROM tracks
		WHERE id = $1::uuid`

	t := &model.Track{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Title, &t.FileName, &t.AuthorID, &t.FeatIDs, &t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения трека: %w", err)
	}
	return t, nil
}
