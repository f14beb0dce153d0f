package model

import "time"

// Track — опубликованный трек платформы Uni-Verse.
// Читается только для проекции найденного трека в ответах fingerprint-поиска.
type Track struct {
	// ID — уникальный идентификатор трека (UUID)
	ID string
	// Title — название трека
	Title string
	// FileName — ключ аудио-объекта в файловом хранилище
	FileName string
	// AuthorID — идентификатор автора (опционально)
	AuthorID *string
	// FeatIDs — идентификаторы приглашённых исполнителей
	FeatIDs []string
	// CreatedAt — время публикации
	CreatedAt time.Time
}

// TrackView — компактная проекция трека для API-ответов.
// Форма фиксирована контрактом: {id, title, fileName, author, feats}.
type TrackView struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	FileName string      `json:"fileName"`
	Author   *UserView   `json:"author,omitempty"`
	Feats    []*UserView `json:"feats,omitempty"`
}
