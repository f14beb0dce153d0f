// Пакет service — бизнес-логика сервиса fingerprint-поиска.
package service

import "errors"

// Ошибки сервисного слоя. Handler-ы транслируют их в HTTP-статусы,
// сервис про HTTP не знает.
var (
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("некорректные входные данные")
	// ErrFileTooLarge — размер фрагмента превышает лимит.
	ErrFileTooLarge = errors.New("размер файла превышает максимум")
	// ErrUnsupportedMediaType — тип файла не входит в список допустимых аудио-форматов.
	ErrUnsupportedMediaType = errors.New("неподдерживаемый тип файла")
	// ErrNotFound — запись поиска не найдена.
	ErrNotFound = errors.New("запись поиска не найдена")
	// ErrSearchCreationFailed — не удалось создать запись поиска
	// (отказ File Store или Document Store). Объект-сирота при этом
	// не остаётся: компенсация уже выполнена.
	ErrSearchCreationFailed = errors.New("не удалось создать запись поиска")
)
