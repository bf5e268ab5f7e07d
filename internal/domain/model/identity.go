package model

import "time"

// UploaderIdentity — организационная учётная запись, владеющая пакетами
// и сервисными аккаунтами. Хранится в таблице uploader_identities.
type UploaderIdentity struct {
	// ID — UUID записи
	ID string
	// Name — уникальное внешнее имя (используется в URL)
	Name string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// UploaderIdentityMember — членство пользователя в uploader identity.
// Хранится в таблице uploader_identity_members.
// Уникальность по паре (identity_id, user_id).
type UploaderIdentityMember struct {
	// ID — UUID записи
	ID string
	// IdentityID — UUID uploader identity
	IdentityID string
	// UserID — UUID пользователя
	UserID string
	// Role — роль в identity (owner, member)
	Role string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}
