package model

import "time"

// ServiceAccount — сервисный аккаунт uploader identity.
// Хранится в таблице service_accounts. Связан 1:1 с синтетическим
// пользователем, от имени которого выполняются автоматизированные запросы.
type ServiceAccount struct {
	// ID — UUID записи (из него выводится username синтетического пользователя)
	ID string
	// IdentityID — UUID uploader identity, владеющей аккаунтом
	IdentityID string
	// UserID — UUID связанного синтетического пользователя
	UserID string
	// Nickname — человекочитаемое имя (не длиннее 32 символов)
	Nickname string
	// CreatedAt — время создания (неизменяемо после создания)
	CreatedAt time.Time
	// LastUsed — время последнего аутентифицированного использования токена
	// (nil, пока токен ни разу не использовался)
	LastUsed *time.Time
}

// ServiceAccountToken — opaque bearer-токен сервисного аккаунта.
// Хранится в таблице service_account_tokens. Привязан 1:1 к пользователю:
// выпуск нового токена заменяет предыдущий.
type ServiceAccountToken struct {
	// Key — 40 hex-символов, сам токен (primary key)
	Key string
	// UserID — UUID синтетического пользователя SA
	UserID string
	// CreatedAt — время выпуска
	CreatedAt time.Time
}
