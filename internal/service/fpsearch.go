// fpsearch.go — оркестратор fingerprint-поиска.
//
// Создание поиска — сага из трёх шагов:
//  1. Запись аудио-фрагмента в File Store (до транзакции)
//  2. Транзакционная вставка записи поиска в Document Store
//  3. Публикация задания в Message Bus (после коммита, fire-and-forget)
//
// Отказ шага 2 компенсируется удалением объекта из File Store.
// Отказ шага 3 не отменяет создание: запись остаётся pending,
// republish-сверка отправит задание повторно.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/api/middleware"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/config"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/domain/model"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/mq"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/repository"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/storage/objectstore"
)

// acceptedContentTypes — допустимые MIME-типы аудио-фрагментов.
// application/octet-stream допускается: браузеры и мобильные клиенты
// часто не проставляют точный тип для записи с микрофона.
var acceptedContentTypes = map[string]bool{
	"audio/mpeg":               true,
	"audio/mp3":                true,
	"audio/wav":                true,
	"audio/wave":               true,
	"audio/x-wav":              true,
	"audio/ogg":                true,
	"audio/flac":               true,
	"audio/x-flac":             true,
	"audio/aac":                true,
	"audio/mp4":                true,
	"audio/x-m4a":              true,
	"audio/webm":               true,
	"application/octet-stream": true,
}

// CreateParams — параметры создания fingerprint-поиска.
type CreateParams struct {
	// Reader — поток данных аудио-фрагмента
	Reader io.Reader
	// OriginalFilename — имя файла, выбранное клиентом (в ключ объекта не попадает)
	OriginalFilename string
	// ContentType — MIME-тип из multipart part
	ContentType string
	// Size — размер фрагмента в байтах
	Size int64
	// AuthorID — идентификатор пользователя из JWT (nil для анонимных запросов)
	AuthorID *string
}

// txRunner — абстракция TxRunner для подмены в тестах.
type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// fpSearchRepoFactory строит FpSearchRepository поверх произвольного DBTX.
// Оркестратору нужен репозиторий и на пуле (чтение), и на транзакции (вставка).
type fpSearchRepoFactory func(db repository.DBTX) repository.FpSearchRepository

// FpSearchService — оркестратор fingerprint-поиска.
type FpSearchService struct {
	cfg       *config.Config
	runner    txRunner
	repoFor   fpSearchRepoFactory
	searches  repository.FpSearchRepository
	users     repository.UserRepository
	tracks    repository.TrackRepository
	store     objectstore.Store
	publisher mq.Publisher
	cache     *CacheService
	logger    *slog.Logger
}

// NewFpSearchService создаёт оркестратор fingerprint-поиска.
// Все коллабораторы передаются явно; глобального состояния нет.
func NewFpSearchService(
	cfg *config.Config,
	runner txRunner,
	repoFor fpSearchRepoFactory,
	searches repository.FpSearchRepository,
	users repository.UserRepository,
	tracks repository.TrackRepository,
	store objectstore.Store,
	publisher mq.Publisher,
	cache *CacheService,
	logger *slog.Logger,
) *FpSearchService {
	return &FpSearchService{
		cfg:       cfg,
		runner:    runner,
		repoFor:   repoFor,
		searches:  searches,
		users:     users,
		tracks:    tracks,
		store:     store,
		publisher: publisher,
		cache:     cache,
		logger:    logger.With(slog.String("component", "fpsearch_service")),
	}
}

// Create выполняет сагу создания fingerprint-поиска.
//
// Поток:
//  1. Валидация (размер, MIME-тип)
//  2. Put в File Store (таймаут StoreTimeout)
//  3. Транзакция Document Store: INSERT записи поиска (таймаут TxTimeout)
//  4. Публикация задания в Message Bus (после коммита, отказ не фатален)
//
// При отказе шага 3 — компенсирующее удаление объекта из File Store.
func (s *FpSearchService) Create(ctx context.Context, params CreateParams) (*model.FpSearchView, error) {
	// 1. Валидация
	if params.OriginalFilename == "" {
		return nil, fmt.Errorf("%w: имя файла не задано", ErrValidation)
	}
	if params.Size <= 0 {
		return nil, fmt.Errorf("%w: пустой файл", ErrValidation)
	}
	if params.Size > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d байт при лимите %d", ErrFileTooLarge, params.Size, s.cfg.MaxFileSize)
	}
	if !acceptedContentTypes[normalizeContentType(params.ContentType)] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, params.ContentType)
	}

	// 2. Запись фрагмента в File Store
	key := objectstore.GenerateKey(params.OriginalFilename)

	storeCtx, cancelStore := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancelStore()
	if err := s.store.Put(storeCtx, key, params.Reader, params.Size, normalizeContentType(params.ContentType)); err != nil {
		middleware.SearchesCreatedTotal.WithLabelValues("store_error").Inc()
		s.logger.Error("Ошибка записи фрагмента в File Store",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: отказ файлового хранилища", ErrSearchCreationFailed)
	}

	// 3. Транзакционная вставка записи поиска
	search := &model.FpSearch{
		Filename: key,
		AuthorID: params.AuthorID,
	}

	txCtx, cancelTx := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancelTx()
	err := s.runner.RunInTx(txCtx, func(tx pgx.Tx) error {
		return s.repoFor(tx).Create(txCtx, search)
	})
	if err != nil {
		// Компенсация: объект без записи поиска — сирота, удаляем.
		// Используем отдельный контекст: исходный мог уже истечь.
		s.compensate(key)
		middleware.SearchesCreatedTotal.WithLabelValues("db_error").Inc()
		s.logger.Error("Ошибка создания записи поиска, объект удалён",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: отказ хранилища документов", ErrSearchCreationFailed)
	}

	// 4. Публикация задания — после коммита, fire-and-forget
	if err := s.publisher.Publish(ctx, mq.SearchRequestMessage{
		ExtractURL: key,
		FpSearchID: search.ID,
	}); err != nil {
		middleware.PublishFailuresTotal.Inc()
		s.logger.Warn("Ошибка публикации задания поиска, запись останется pending до сверки",
			slog.String("fp_search_id", search.ID),
			slog.String("error", err.Error()),
		)
	}

	middleware.SearchesCreatedTotal.WithLabelValues("success").Inc()
	s.logger.Info("Запись fingerprint-поиска создана",
		slog.String("fp_search_id", search.ID),
		slog.String("key", key),
		slog.Int64("size", params.Size),
		slog.Bool("anonymous", params.AuthorID == nil),
	)

	return s.buildView(ctx, search)
}

// compensate удаляет объект File Store после отказа транзакции.
// Отказ самой компенсации только логируется: объект-сирота не нарушает
// консистентность Document Store.
func (s *FpSearchService) compensate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	middleware.CompensationsTotal.Inc()
	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.Error("Ошибка компенсирующего удаления объекта",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Get возвращает запись поиска по ID.
// Resolved записи читаются из LRU-кэша: они иммутабельны.
func (s *FpSearchService) Get(ctx context.Context, id string) (*model.FpSearchView, error) {
	if cached, ok := s.cache.Get(id); ok {
		return s.buildView(ctx, cached)
	}

	search, err := s.searches.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.cache.Set(search)
	return s.buildView(ctx, search)
}

// ListResult — страница записей поиска.
type ListResult struct {
	Items []*model.FpSearchView
	Total int
}

// List возвращает страницу записей поиска (новые первыми).
func (s *FpSearchService) List(ctx context.Context, filters repository.FpSearchListFilters, limit, offset int) (*ListResult, error) {
	searches, err := s.searches.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.searches.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	items := make([]*model.FpSearchView, 0, len(searches))
	for _, f := range searches {
		view, err := s.buildView(ctx, f)
		if err != nil {
			return nil, err
		}
		items = append(items, view)
	}
	return &ListResult{Items: items, Total: total}, nil
}

// buildView строит API-проекцию записи поиска.
// Проекции author и foundTrack — best effort: удалённый пользователь или
// трек опускается, запись поиска при этом отдаётся.
func (s *FpSearchService) buildView(ctx context.Context, f *model.FpSearch) (*model.FpSearchView, error) {
	view := &model.FpSearchView{
		ID:        f.ID,
		Filename:  f.Filename,
		TakenTime: f.TakenTimeMS,
		CreatedAt: f.CreatedAt,
	}

	if f.AuthorID != nil {
		author, err := s.lookupUser(ctx, *f.AuthorID)
		if err != nil {
			return nil, err
		}
		view.Author = author
	}

	if f.FoundTrackID != nil {
		track, err := s.buildTrackView(ctx, *f.FoundTrackID)
		if err != nil {
			return nil, err
		}
		view.FoundTrack = track
	}

	return view, nil
}

// buildTrackView строит проекцию найденного трека вместе с автором и feats.
func (s *FpSearchService) buildTrackView(ctx context.Context, trackID string) (*model.TrackView, error) {
	track, err := s.tracks.GetByID(ctx, trackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Найденный трек отсутствует в базе", slog.String("track_id", trackID))
			return nil, nil
		}
		return nil, err
	}

	view := &model.TrackView{
		ID:       track.ID,
		Title:    track.Title,
		FileName: track.FileName,
	}

	if track.AuthorID != nil {
		author, err := s.lookupUser(ctx, *track.AuthorID)
		if err != nil {
			return nil, err
		}
		view.Author = author
	}

	if len(track.FeatIDs) > 0 {
		feats, err := s.users.GetByIDs(ctx, track.FeatIDs)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения feats трека: %w", err)
		}
		for _, u := range feats {
			view.Feats = append(view.Feats, u.ToView())
		}
	}

	return view, nil
}

// lookupUser возвращает проекцию пользователя или nil, если он удалён.
func (s *FpSearchService) lookupUser(ctx context.Context, id string) (*model.UserView, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Пользователь отсутствует в базе", slog.String("user_id", id))
			return nil, nil
		}
		return nil, err
	}
	return user.ToView(), nil
}

// normalizeContentType убирает параметры MIME-типа (charset и т.д.)
// и приводит его к нижнему регистру.
func normalizeContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
