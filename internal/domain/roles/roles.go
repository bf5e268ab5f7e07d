// Пакет roles — роли пользователей внутри uploader identity.
// Двухуровневая модель: owner управляет identity и её сервисными аккаунтами,
// member может загружать пакеты от имени identity.
package roles

// Роли в порядке возрастания привилегий.
const (
	RoleMember = "member"
	RoleOwner  = "owner"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleMember: 1,
	RoleOwner:  2,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// CanManageServiceAccounts — может ли роль создавать, изменять и удалять
// сервисные аккаунты identity и выпускать для них токены.
// Разрешено только owner.
func CanManageServiceAccounts(role string) bool {
	return role == RoleOwner
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(rs []string) string {
	if len(rs) == 0 {
		return ""
	}
	highest := rs[0]
	for _, r := range rs[1:] {
		if roleWeight[r] > roleWeight[highest] {
			highest = r
		}
	}
	return highest
}
