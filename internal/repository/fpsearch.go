package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/domain/model"
)

// FpSearchRepository — интерфейс доступа к таблице fp_searches.
// Записи создаются один раз, никогда не удаляются; единственная мутация —
// Resolve, выполняемая при получении результата от matching-worker.
type FpSearchRepository interface {
	// Create создаёт запись поиска. Вызывается внутри транзакции оркестратора.
	Create(ctx context.Context, f *model.FpSearch) error
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.FpSearch, error)
	// List возвращает записи (новые первыми) с фильтрацией и пагинацией.
	List(ctx context.Context, filters FpSearchListFilters, limit, offset int) ([]*model.FpSearch, error)
	// Count возвращает количество записей с фильтрацией.
	Count(ctx context.Context, filters FpSearchListFilters) (int, error)
	// ListPendingBefore возвращает pending записи, созданные до cutoff
	// (старые первыми). Используется republish-сверкой.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.FpSearch, error)
	// Resolve записывает результат поиска: переход pending → resolved.
	// Возвращает ErrAlreadyResolved, если результат уже записан.
	Resolve(ctx context.Context, id, trackID string, takenTimeMS int64) error
}

// FpSearchListFilters — фильтры для списка записей поиска.
type FpSearchListFilters struct {
	// PendingOnly — только записи без результата
	PendingOnly bool
	// AuthorID — только записи указанного автора
	AuthorID *string
}

// fpSearchRepo — реализация FpSearchRepository.
type fpSearchRepo struct {
	db DBTX
}

// NewFpSearchRepository создаёт репозиторий записей fingerprint-поиска.
func NewFpSearchRepository(db DBTX) FpSearchRepository {
	return &fpSearchRepo{db: db}
}

// fpSearchColumns — список колонок для SELECT (uuid приводятся к text).
const fpSearchColumns = `id::text, filename, author_id::text, found_track_id::text, taken_time_ms, created_at, updated_at`

func (r *fpSearchRepo) Create(ctx context.Context, f *model.FpSearch) error {
	query := `
		INSERT INTO fp_searches (filename, author_id)
		VALUES ($1, $2::uuid)
		RETURNING id::text, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, f.Filename, f.AuthorID).
		Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания записи поиска: %w", err)
	}
	return nil
}

func (r *fpSearchRepo) GetByID(ctx context.Context, id string) (*model.FpSearch, error) {
	query := `
		SELECT ` + fpSearchColumns + `
		FROM fp_searches
		WHERE id = $1::uuid`

	f := &model.FpSearch{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.Filename, &f.AuthorID, &f.FoundTrackID, &f.TakenTimeMS,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи поиска: %w", err)
	}
	return f, nil
}

// buildFpSearchWhere строит WHERE-условие и аргументы для фильтрации записей.
func buildFpSearchWhere(filters FpSearchListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.PendingOnly {
		conditions = append(conditions, "found_track_id IS NULL")
	}
	if filters.AuthorID != nil {
		conditions = append(conditions, fmt.Sprintf("author_id = $%d::uuid", argNum))
		args = append(args, *filters.AuthorID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + conditions[0]
		for _, c := range conditions[1:] {
			where += " AND " + c
		}
	}
	return where, args
}

func (r *fpSearchRepo) List(ctx context.Context, filters FpSearchListFilters, limit, offset int) ([]*model.FpSearch, error) {
	where, args := buildFpSearchWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT `+fpSearchColumns+`
		FROM fp_searches
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей поиска: %w", err)
	}
	defer rows.Close()

	return scanFpSearches(rows)
}

func (r *fpSearchRepo) Count(ctx context.Context, filters FpSearchListFilters) (int, error) {
	where, args := buildFpSearchWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM fp_searches %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей поиска: %w", err)
	}
	return count, nil
}

func (r *fpSearchRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.FpSearch, error) {
	query := `
		SELECT ` + fpSearchColumns + `
		FROM fp_searches
		WHERE found_track_id IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки pending записей: %w", err)
	}
	defer rows.Close()

	return scanFpSearches(rows)
}

// Resolve записывает результат поиска. Guard found_track_id IS NULL
// гарантирует единственность перехода pending → resolved: повторная запись
// результата (retry worker-а, дубликат сообщения) не перезаписывает первый.
func (r *fpSearchRepo) Resolve(ctx context.Context, id, trackID string, takenTimeMS int64) error {
	query := `
		UPDATE fp_searches
		SET found_track_id = $2::uuid, taken_time_ms = $3, updated_at = now()
		WHERE id = $1::uuid AND found_track_id IS NULL`

	tag, err := r.db.Exec(ctx, query, id, trackID, takenTimeMS)
	if err != nil {
		return fmt.Errorf("ошибка записи результата поиска: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Запись либо отсутствует, либо уже resolved — различаем отдельным запросом
		var exists bool
		if qErr := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM fp_searches WHERE id = $1::uuid)`, id,
		).Scan(&exists); qErr != nil {
			return fmt.Errorf("ошибка проверки записи поиска: %w", qErr)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyResolved
	}
	return nil
}

// scanFpSearches читает все строки результата в срез моделей.
func scanFpSearches(rows pgx.Rows) ([]*model.FpSearch, error) {
	var result []*model.FpSearch
	for rows.Next() {
		f := &model.FpSearch{}
		if err := rows.Scan(
			&f.ID, &f.Filename, &f.AuthorID, &f.FoundTrackID, &f.TakenTimeMS,
			&f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи поиска: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
