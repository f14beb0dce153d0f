// Пакет model — доменные модели сервиса fingerprint-поиска Uni-Verse.
package model

import "time"

// FpSearch — запись одного запроса fingerprint-поиска.
// Создаётся один раз при загрузке аудио-фрагмента; результат (FoundTrackID,
// TakenTimeMS) записывает внешний matching-worker. Запись никогда не удаляется.
type FpSearch struct {
	// ID — уникальный идентификатор записи (UUID, присваивается базой данных)
	ID string
	// Filename — ключ объекта в файловом хранилище (возвращён File Store при записи)
	Filename string
	// AuthorID — идентификатор пользователя-инициатора (nil для анонимных запросов)
	AuthorID *string
	// FoundTrackID — идентификатор найденного трека (nil до завершения поиска)
	FoundTrackID *string
	// TakenTimeMS — длительность поиска в миллисекундах (nil до завершения поиска)
	TakenTimeMS *int64
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения записи
	UpdatedAt time.Time
}

// IsResolved возвращает true, если поиск завершён.
// Инвариант: FoundTrackID и TakenTimeMS либо оба отсутствуют (pending),
// либо оба присутствуют (resolved). Других состояний не существует.
func (f *FpSearch) IsResolved() bool {
	return f.FoundTrackID != nil && f.TakenTimeMS != nil
}

// FpSearchView — представление записи поиска для API-ответа.
// Опциональные поля сериализуются только при наличии значения.
type FpSearchView struct {
	ID         string     `json:"id"`
	Filename   string     `json:"filename"`
	Author     *UserView  `json:"author,omitempty"`
	FoundTrack *TrackView `json:"foundTrack,omitempty"`
	TakenTime  *int64     `json:"takenTime,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
