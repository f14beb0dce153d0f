package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/config"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/domain/model"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/mq"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/repository"
)

// --- Моки коллабораторов ---

// mockFpSearchRepo — мок FpSearchRepository для unit-тестов.
type mockFpSearchRepo struct {
	createFn            func(ctx context.Context, f *model.FpSearch) error
	getByIDFn           func(ctx context.Context, id string) (*model.FpSearch, error)
	listFn              func(ctx context.Context, filters repository.FpSearchListFilters, limit, offset int) ([]*model.FpSearch, error)
	countFn             func(ctx context.Context, filters repository.FpSearchListFilters) (int, error)
	listPendingBeforeFn func(ctx context.Context, cutoff time.Time, limit int) ([]*model.FpSearch, error)
	resolveFn           func(ctx context.Context, id, trackID string, takenTimeMS int64) error
}

func (m *mockFpSearchRepo) Create(ctx context.Context, f *model.FpSearch) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	f.ID = "11111111-1111-1111-1111-111111111111"
	f.CreatedAt = time.Now().UTC()
	return nil
}

func (m *mockFpSearchRepo) GetByID(ctx context.Context, id string) (*model.FpSearch, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFpSearchRepo) List(ctx context.Context, filters repository.FpSearchListFilters, limit, offset int) ([]*model.FpSearch, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filters, limit, offset)
	}
	return nil, nil
}

func (m *mockFpSearchRepo) Count(ctx context.Context, filters repository.FpSearchListFilters) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, filters)
	}
	return 0, nil
}

func (m *mockFpSearchRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.FpSearch, error) {
	if m.listPendingBeforeFn != nil {
		return m.listPendingBeforeFn(ctx, cutoff, limit)
	}
	return nil, nil
}

func (m *mockFpSearchRepo) Resolve(ctx context.Context, id, trackID string, takenTimeMS int64) error {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id, trackID, takenTimeMS)
	}
	return nil
}

// mockUserRepo — мок UserRepository.
type mockUserRepo struct {
	getByIDFn  func(ctx context.Context, id string) (*model.User, error)
	getByIDsFn func(ctx context.Context, ids []string) ([]*model.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if m.getByIDsFn != nil {
		return m.getByIDsFn(ctx, ids)
	}
	return nil, nil
}

// mockTrackRepo — мок TrackRepository.
type mockTrackRepo struct {
	getByIDFn func(ctx context.Context, id string) (*model.Track, error)
}

func (m *mockTrackRepo) GetByID(ctx context.Context, id string) (*model.Track, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

// mockStore — мок файлового хранилища.
type mockStore struct {
	putFn    func(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	removeFn func(ctx context.Context, key string) error

	putKeys    []string
	removeKeys []string
}

func (m *mockStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	m.putKeys = append(m.putKeys, key)
	if m.putFn != nil {
		return m.putFn(ctx, key, r, size, contentType)
	}
	return nil
}

func (m *mockStore) Remove(ctx context.Context, key string) error {
	m.removeKeys = append(m.removeKeys, key)
	if m.removeFn != nil {
		return m.removeFn(ctx, key)
	}
	return nil
}

func (m *mockStore) CheckReady(_ context.Context) error { return nil }

// mockPublisher — мок Publisher, запоминает опубликованные сообщения.
type mockPublisher struct {
	publishFn func(ctx context.Context, msg mq.SearchRequestMessage) error
	published []mq.SearchRequestMessage
}

func (m *mockPublisher) Publish(ctx context.Context, msg mq.SearchRequestMessage) error {
	if m.publishFn != nil {
		if err := m.publishFn(ctx, msg); err != nil {
			return err
		}
	}
	m.published = append(m.published, msg)
	return nil
}

func (m *mockPublisher) CheckReady(_ context.Context) error { return nil }
func (m *mockPublisher) Close() error                       { return nil }

// mockTxRunner — мок txRunner: выполняет fn без реальной транзакции.
type mockTxRunner struct {
	runInTxFn func(ctx context.Context, fn func(tx pgx.Tx) error) error
}

func (m *mockTxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if m.runInTxFn != nil {
		return m.runInTxFn(ctx, fn)
	}
	return fn(nil)
}

// testConfig возвращает конфигурацию для unit-тестов.
func testConfig() *config.Config {
	return &config.Config{
		MaxFileSize:  1024,
		StoreTimeout: 5 * time.Second,
		TxTimeout:    5 * time.Second,
	}
}

// newTestService собирает FpSearchService из моков.
func newTestService(
	searches *mockFpSearchRepo,
	users *mockUserRepo,
	tracks *mockTrackRepo,
	store *mockStore,
	publisher *mockPublisher,
) *FpSearchService {
	return NewFpSearchService(
		testConfig(),
		&mockTxRunner{},
		func(_ repository.DBTX) repository.FpSearchRepository { return searches },
		searches,
		users,
		tracks,
		store,
		publisher,
		NewCacheService(100, time.Minute),
		slog.Default(),
	)
}

func validParams() CreateParams {
	return CreateParams{
		Reader:           bytes.NewReader([]byte("audio-bytes")),
		OriginalFilename: "extract.mp3",
		ContentType:      "audio/mpeg",
		Size:             11,
	}
}

// --- Тесты Create ---

// TestCreate_Success проверяет полный поток саги: put → insert → publish.
func TestCreate_Success(t *testing.T) {
	searches := &mockFpSearchRepo{}
	store := &mockStore{}
	publisher := &mockPublisher{}
	svc := newTestService(searches, &mockUserRepo{}, &mockTrackRepo{}, store, publisher)

	view, err := svc.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}

	if view.ID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("view.ID = %q", view.ID)
	}
	if view.Author != nil {
		t.Error("анонимный запрос: Author должен отсутствовать")
	}
	if view.FoundTrack != nil || view.TakenTime != nil {
		t.Error("новая запись: результат должен отсутствовать")
	}

	if len(store.putKeys) != 1 {
		t.Fatalf("Put вызван %d раз, ожидался 1", len(store.putKeys))
	}
	if len(store.removeKeys) != 0 {
		t.Error("компенсация не должна выполняться при успехе")
	}

	if len(publisher.published) != 1 {
		t.Fatalf("Publish вызван %d раз, ожидался 1", len(publisher.published))
	}
	msg := publisher.published[0]
	if msg.ExtractURL != store.putKeys[0] {
		t.Errorf("extract_url = %q, ожидался ключ объекта %q", msg.ExtractURL, store.putKeys[0])
	}
	if msg.FpSearchID != view.ID {
		t.Errorf("fp_search_id = %q, ожидался %q", msg.FpSearchID, view.ID)
	}
}

// TestCreate_WithAuthor проверяет привязку автора из JWT.
func TestCreate_WithAuthor(t *testing.T) {
	authorID := "22222222-2222-2222-2222-222222222222"
	var gotAuthor *string
	searches := &mockFpSearchRepo{
		createFn: func(_ context.Context, f *model.FpSearch) error {
			gotAuthor = f.AuthorID
			f.ID = "11111111-1111-1111-1111-111111111111"
			return nil
		},
	}
	users := &mockUserRepo{
		getByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "abdou", Email: "a@x.com"}, nil
		},
	}
	svc := newTestService(searches, users, &mockTrackRepo{}, &mockStore{}, &mockPublisher{})

	params := validParams()
	params.AuthorID = &authorID

	view, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if gotAuthor == nil || *gotAuthor != authorID {
		t.Errorf("в запись передан AuthorID = %v", gotAuthor)
	}
	if view.Author == nil || view.Author.Username != "abdou" {
		t.Errorf("view.Author = %+v", view.Author)
	}
}

// TestCreate_InsertFailureCompensates проверяет компенсирующее удаление
// объекта при отказе вставки записи поиска.
func TestCreate_InsertFailureCompensates(t *testing.T) {
	searches := &mockFpSearchRepo{
		createFn: func(_ context.Context, _ *model.FpSearch) error {
			return errors.New("отказ базы данных")
		},
	}
	store := &mockStore{}
	publisher := &mockPublisher{}
	svc := newTestService(searches, &mockUserRepo{}, &mockTrackRepo{}, store, publisher)

	_, err := svc.Create(context.Background(), validParams())
	if !errors.Is(err, ErrSearchCreationFailed) {
		t.Fatalf("ожидалась ErrSearchCreationFailed, получено %v", err)
	}

	if len(store.removeKeys) != 1 {
		t.Fatalf("Remove вызван %d раз, ожидался 1 (компенсация)", len(store.removeKeys))
	}
	if store.removeKeys[0] != store.putKeys[0] {
		t.Errorf("компенсация удалила %q, сохранялся %q", store.removeKeys[0], store.putKeys[0])
	}
	if len(publisher.published) != 0 {
		t.Error("задание не должно публиковаться при отказе вставки")
	}
}

// TestCreate_StoreFailure проверяет отказ File Store: вставка и публикация
// не выполняются, компенсация не нужна.
func TestCreate_StoreFailure(t *testing.T) {
	insertCalled := false
	searches := &mockFpSearchRepo{
		createFn: func(_ context.Context, _ *model.FpSearch) error {
			insertCalled = true
			return nil
		},
	}
	store := &mockStore{
		putFn: func(_ context.Context, _ string, _ io.Reader, _ int64, _ string) error {
			return errors.New("minio недоступен")
		},
	}
	publisher := &mockPublisher{}
	svc := newTestService(searches, &mockUserRepo{}, &mockTrackRepo{}, store, publisher)

	_, err := svc.Create(context.Background(), validParams())
	if !errors.Is(err, ErrSearchCreationFailed) {
		t.Fatalf("ожидалась ErrSearchCreationFailed, получено %v", err)
	}
	if insertCalled {
		t.Error("вставка не должна выполняться при отказе File Store")
	}
	if len(store.removeKeys) != 0 {
		t.Error("компенсация не нужна: объект не был записан")
	}
	if len(publisher.published) != 0 {
		t.Error("задание не должно публиковаться")
	}
}

// TestCreate_PublishFailureStillSucceeds проверяет fire-and-forget публикацию:
// отказ Message Bus не отменяет создание записи.
func TestCreate_PublishFailureStillSucceeds(t *testing.T) {
	store := &mockStore{}
	publisher := &mockPublisher{
		publishFn: func(_ context.Context, _ mq.SearchRequestMessage) error {
			return errors.New("rabbitmq недоступен")
		},
	}
	svc := newTestService(&mockFpSearchRepo{}, &mockUserRepo{}, &mockTrackRepo{}, store, publisher)

	view, err := svc.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Create должен успешно завершиться при отказе публикации: %v", err)
	}
	if view.ID == "" {
		t.Error("view.ID пуст")
	}
	if len(store.removeKeys) != 0 {
		t.Error("объект не должен удаляться при отказе публикации")
	}
}

// TestCreate_Validation проверяет валидацию входных параметров.
func TestCreate_Validation(t *testing.T) {
	svc := newTestService(&mockFpSearchRepo{}, &mockUserRepo{}, &mockTrackRepo{}, &mockStore{}, &mockPublisher{})

	tests := []struct {
		name    string
		mutate  func(p *CreateParams)
		wantErr error
	}{
		{"пустое имя файла", func(p *CreateParams) { p.OriginalFilename = "" }, ErrValidation},
		{"пустой файл", func(p *CreateParams) { p.Size = 0 }, ErrValidation},
		{"превышение лимита", func(p *CreateParams) { p.Size = 2048 }, ErrFileTooLarge},
		{"не аудио", func(p *CreateParams) { p.ContentType = "text/html" }, ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)
			_, err := svc.Create(context.Background(), params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась %v, получено %v", tt.wantErr, err)
			}
		})
	}
}

// TestCreate_ContentTypeWithParams проверяет нормализацию MIME-типа с параметрами.
func TestCreate_ContentTypeWithParams(t *testing.T) {
	svc := newTestService(&mockFpSearchRepo{}, &mockUserRepo{}, &mockTrackRepo{}, &mockStore{}, &mockPublisher{})

	params := validParams()
	params.ContentType = "Audio/MPEG; charset=binary"
	if _, err := svc.Create(context.Background(), params); err != nil {
		t.Errorf("MIME-тип с параметрами должен приниматься: %v", err)
	}
}

// --- Тесты Get ---

// TestGet_NotFound проверяет трансляцию repository.ErrNotFound.
func TestGet_NotFound(t *testing.T) {
	svc := newTestService(&mockFpSearchRepo{}, &mockUserRepo{}, &mockTrackRepo{}, &mockStore{}, &mockPublisher{})

	_, err := svc.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestGet_ResolvedView проверяет проекцию resolved записи: foundTrack
// с автором и feats, takenTime.
func TestGet_ResolvedView(t *testing.T) {
	trackID := "33333333-3333-3333-3333-333333333333"
	authorID := "22222222-2222-2222-2222-222222222222"
	featID := "44444444-4444-4444-4444-444444444444"
	taken := int64(342)

	searches := &mockFpSearchRepo{
		getByIDFn: func(_ context.Context, id string) (*model.FpSearch, error) {
			return &model.FpSearch{
				ID:           id,
				Filename:     "key.mp3",
				FoundTrackID: &trackID,
				TakenTimeMS:  &taken,
			}, nil
		},
	}
	tracks := &mockTrackRepo{
		getByIDFn: func(_ context.Context, id string) (*model.Track, error) {
			return &model.Track{
				ID: id, Title: "Symphony", FileName: "symphony.flac",
				AuthorID: &authorID, FeatIDs: []string{featID},
			}, nil
		},
	}
	users := &mockUserRepo{
		getByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "author"}, nil
		},
		getByIDsFn: func(_ context.Context, ids []string) ([]*model.User, error) {
			return []*model.User{{ID: ids[0], Username: "feat"}}, nil
		},
	}
	svc := newTestService(searches, users, tracks, &mockStore{}, &mockPublisher{})

	view, err := svc.Get(context.Background(), "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if view.TakenTime == nil || *view.TakenTime != 342 {
		t.Errorf("TakenTime = %v", view.TakenTime)
	}
	if view.FoundTrack == nil {
		t.Fatal("FoundTrack отсутствует")
	}
	if view.FoundTrack.Title != "Symphony" {
		t.Errorf("FoundTrack.Title = %q", view.FoundTrack.Title)
	}
	if view.FoundTrack.Author == nil || view.FoundTrack.Author.Username != "author" {
		t.Errorf("FoundTrack.Author = %+v", view.FoundTrack.Author)
	}
	if len(view.FoundTrack.Feats) != 1 || view.FoundTrack.Feats[0].Username != "feat" {
		t.Errorf("FoundTrack.Feats = %+v", view.FoundTrack.Feats)
	}
}

// TestGet_CacheHit проверяет кэширование resolved записей:
// повторное чтение не обращается к repository.
func TestGet_CacheHit(t *testing.T) {
	trackID := "33333333-3333-3333-3333-333333333333"
	taken := int64(100)
	callCount := 0

	searches := &mockFpSearchRepo{
		getByIDFn: func(_ context.Context, id string) (*model.FpSearch, error) {
			callCount++
			return &model.FpSearch{
				ID: id, Filename: "key.mp3",
				FoundTrackID: &trackID, TakenTimeMS: &taken,
			}, nil
		},
	}
	tracks := &mockTrackRepo{
		getByIDFn: func(_ context.Context, id string) (*model.Track, error) {
			return &model.Track{ID: id, Title: "T", FileName: "t.mp3"}, nil
		},
	}
	svc := newTestService(searches, &mockUserRepo{}, tracks, &mockStore{}, &mockPublisher{})

	id := "11111111-1111-1111-1111-111111111111"
	for i := 0; i < 3; i++ {
		if _, err := svc.Get(context.Background(), id); err != nil {
			t.Fatalf("Get ошибка: %v", err)
		}
	}
	if callCount != 1 {
		t.Errorf("repository вызван %d раз, ожидался 1 (кэш)", callCount)
	}
}

// TestGet_PendingNotCached проверяет, что pending записи не кэшируются.
func TestGet_PendingNotCached(t *testing.T) {
	callCount := 0
	searches := &mockFpSearchRepo{
		getByIDFn: func(_ context.Context, id string) (*model.FpSearch, error) {
			callCount++
			return &model.FpSearch{ID: id, Filename: "key.mp3"}, nil
		},
	}
	svc := newTestService(searches, &mockUserRepo{}, &mockTrackRepo{}, &mockStore{}, &mockPublisher{})

	id := "11111111-1111-1111-1111-111111111111"
	for i := 0; i < 2; i++ {
		if _, err := svc.Get(context.Background(), id); err != nil {
			t.Fatalf("Get ошибка: %v", err)
		}
	}
	if callCount != 2 {
		t.Errorf("repository вызван %d раз, ожидался 2 (pending не кэшируется)", callCount)
	}
}

// --- Тесты List ---

// TestList проверяет пагинацию и построение проекций.
func TestList(t *testing.T) {
	searches := &mockFpSearchRepo{
		listFn: func(_ context.Context, _ repository.FpSearchListFilters, limit, offset int) ([]*model.FpSearch, error) {
			if limit != 20 || offset != 40 {
				t.Errorf("limit/offset = %d/%d, ожидались 20/40", limit, offset)
			}
			return []*model.FpSearch{
				{ID: "a", Filename: "a.mp3"},
				{ID: "b", Filename: "b.mp3"},
			}, nil
		},
		countFn: func(_ context.Context, _ repository.FpSearchListFilters) (int, error) {
			return 57, nil
		},
	}
	svc := newTestService(searches, &mockUserRepo{}, &mockTrackRepo{}, &mockStore{}, &mockPublisher{})

	result, err := svc.List(context.Background(), repository.FpSearchListFilters{}, 20, 40)
	if err != nil {
		t.Fatalf("List ошибка: %v", err)
	}
	if result.Total != 57 {
		t.Errorf("Total = %d, ожидался 57", result.Total)
	}
	if len(result.Items) != 2 {
		t.Errorf("Items = %d, ожидались 2", len(result.Items))
	}
}
