package model

import "time"

// User — локальная учётная запись.
type User struct {
	// ID — UUID пользователя
	ID string
	// Username — уникальное имя пользователя (subject токена)
	Username string
	// PasswordHash — bcrypt-хэш пароля
	PasswordHash string
	// IsActive — неактивные пользователи не проходят аутентификацию
	IsActive bool
	// CreatedAt — время регистрации
	CreatedAt time.Time
}
