// fpsearches.go — HTTP handlers fingerprint-поиска.
// Create (multipart upload), Get by ID, List с пагинацией.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/uni-verse-fm/uni-verse-api-sub000/internal/api/errors"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/api/middleware"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/config"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/domain/model"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/repository"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/service"
)

// multipartMemoryLimit — буфер парсинга multipart form в памяти,
// остальное уходит во временные файлы.
const multipartMemoryLimit = 32 << 20 // 32 MB

// FpSearchProvider — операции сервиса fingerprint-поиска, нужные handler-ам.
type FpSearchProvider interface {
	Create(ctx context.Context, params service.CreateParams) (*model.FpSearchView, error)
	Get(ctx context.Context, id string) (*model.FpSearchView, error)
	List(ctx context.Context, filters repository.FpSearchListFilters, limit, offset int) (*service.ListResult, error)
}

// FpSearchHandler — обработчик endpoints fingerprint-поиска.
type FpSearchHandler struct {
	svc FpSearchProvider
	cfg *config.Config
}

// NewFpSearchHandler создаёт обработчик endpoints fingerprint-поиска.
func NewFpSearchHandler(svc FpSearchProvider, cfg *config.Config) *FpSearchHandler {
	return &FpSearchHandler{svc: svc, cfg: cfg}
}

// listResponse — envelope списка записей поиска.
type listResponse struct {
	Items   []*model.FpSearchView `json:"items"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	HasMore bool                  `json:"hasMore"`
}

// CreateSearch обрабатывает POST /api/v1/fp-searches.
// Multipart form: file (обязательно). Идентификация опциональна:
// валидный JWT привязывает запись к пользователю, иначе поиск анонимный.
func (h *FpSearchHandler) CreateSearch(w http.ResponseWriter, r *http.Request) {
	// Жёсткий лимит на тело запроса: MaxFileSize + запас на заголовки multipart
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+multipartMemoryLimit)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %d байт", h.cfg.MaxFileSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Автор из JWT контекста; пустая строка — анонимный запрос
	var authorID *string
	if sub := middleware.AuthorIDFromContext(r.Context()); sub != "" {
		authorID = &sub
	}

	view, err := h.svc.Create(r.Context(), service.CreateParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      contentType,
		Size:             header.Size,
		AuthorID:         authorID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(view)
}

// GetSearch обрабатывает GET /api/v1/fp-searches/{id}.
func (h *FpSearchHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Параметр id должен быть UUID")
		return
	}

	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(view)
}

// ListSearches обрабатывает GET /api/v1/fp-searches.
// Пагинация: limit (1-1000, по умолчанию 50), offset.
// Фильтры: pending=true — только незавершённые; mine=true — только записи
// текущего пользователя (требует валидного JWT).
func (h *FpSearchHandler) ListSearches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			apierrors.ValidationError(w, "Параметр limit должен быть от 1 до 1000")
			return
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apierrors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return
		}
		offset = n
	}

	filters := repository.FpSearchListFilters{}
	if r.URL.Query().Get("pending") == "true" {
		filters.PendingOnly = true
	}
	if r.URL.Query().Get("mine") == "true" {
		sub := middleware.AuthorIDFromContext(r.Context())
		if sub == "" {
			apierrors.Unauthorized(w, "Фильтр mine требует аутентификации")
			return
		}
		filters.AuthorID = &sub
	}

	result, err := h.svc.List(r.Context(), filters, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []*model.FpSearchView{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(listResponse{
		Items:   items,
		Total:   result.Total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < result.Total,
	})
}

// writeServiceError транслирует ошибки сервисного слоя в HTTP-ответы.
func (h *FpSearchHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrUnsupportedMediaType):
		apierrors.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Запись поиска не найдена")
	case errors.Is(err, service.ErrSearchCreationFailed):
		apierrors.SearchCreationFailed(w, "Не удалось создать запись поиска")
	default:
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
