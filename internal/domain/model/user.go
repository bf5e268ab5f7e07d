package model

import "time"

// User — учётная запись пользователя.
// Хранится в таблице users. Может быть живым пользователем (вход через OIDC)
// или синтетическим пользователем сервисного аккаунта.
type User struct {
	// ID — UUID записи
	ID string
	// Username — уникальное имя пользователя.
	// Для сервисных аккаунтов выводится детерминированно из UUID SA.
	Username string
	// FirstName — отображаемое имя (для SA совпадает с nickname)
	FirstName string
	// OIDCSubject — sub из OIDC JWT (nil для сервисных аккаунтов)
	OIDCSubject *string
	// IsServiceAccount — true для синтетических пользователей SA
	IsServiceAccount bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
}
