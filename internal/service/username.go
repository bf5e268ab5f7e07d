package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// usernameDomain — доменная часть технических имён сервисных аккаунтов.
// Имя вида <uuid-hex>.sa@modvault.dev никогда не пересечётся с именами
// обычных пользователей из OIDC.
const usernameDomain = "modvault.dev"

// ServiceAccountUsername возвращает техническое имя пользователя для
// сервисного аккаунта с указанным UUID: hex-представление UUID без
// дефисов плюс суффикс ".sa@modvault.dev".
func ServiceAccountUsername(id uuid.UUID) string {
	hexID := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("%s.sa@%s", hexID, usernameDomain)
}

// tokenKeyLength — длина API-токена в байтах до hex-кодирования.
// Итоговый токен — 40 hex-символов.
const tokenKeyLength = 20

// generateTokenKey генерирует криптостойкий API-токен сервисного аккаунта.
func generateTokenKey() (string, error) {
	buf := make([]byte, tokenKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации токена: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
