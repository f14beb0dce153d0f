package model

import "time"

// User — пользователь платформы Uni-Verse.
// Сервис fingerprint-поиска читает пользователей только для проекции
// автора в API-ответах; управление пользователями — зона ответственности
// основного API.
type User struct {
	// ID — уникальный идентификатор пользователя (UUID)
	ID string
	// Username — имя пользователя
	Username string
	// Email — адрес электронной почты
	Email string
	// ProfilePicture — ключ объекта аватара в файловом хранилище (опционально)
	ProfilePicture *string
	// CreatedAt — время регистрации
	CreatedAt time.Time
}

// UserView — компактная проекция пользователя для API-ответов.
// Форма фиксирована контрактом: {id, username, email, profilePicture}.
// Отсутствующий аватар опускается целиком, а не сериализуется как null.
type UserView struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
}

// ToView строит проекцию пользователя.
func (u *User) ToView() *UserView {
	return &UserView{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
	}
}
