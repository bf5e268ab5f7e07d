package model

import "time"

// Community — игровое сообщество, которому принадлежат листинги пакетов.
// Хранится в таблице communities. Идентифицируется внешним строковым
// идентификатором (identifier), используемым в URL API.
type Community struct {
	// ID — UUID записи
	ID string
	// Identifier — внешний идентификатор (например "riskofrain2")
	Identifier string
	// Name — отображаемое имя
	Name string
	// ShortDescription — краткое описание
	ShortDescription string
	// Description — полное описание
	Description string
	// DiscordURL — ссылка на Discord (опционально)
	DiscordURL *string
	// WikiURL — ссылка на wiki (опционально)
	WikiURL *string
	// IsListed — показывается ли сообщество в публичных списках.
	// Unlisted-сообщества всё равно доступны по прямой ссылке.
	IsListed bool
	// BackgroundImageURL — фоновое изображение (опционально)
	BackgroundImageURL *string
	// IconURL — иконка (опционально)
	IconURL *string
	// TotalPackageCount — количество пакетов в сообществе
	TotalPackageCount int64
	// TotalDownloadCount — суммарное количество загрузок
	TotalDownloadCount int64
	// DatetimeCreated — время создания записи
	DatetimeCreated time.Time
}
