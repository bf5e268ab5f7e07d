// current_user.go — обработчик профиля текущего пользователя.
package handlers

import (
	"net/http"

	apierrors "github.com/dkopylov/modvault/internal/api/errors"
	"github.com/dkopylov/modvault/internal/api/middleware"
)

// currentUserResponse — представление профиля текущего пользователя в API.
type currentUserResponse struct {
	Username     string            `json:"username"`
	Capabilities []string          `json:"capabilities"`
	TeamRoles    map[string]string `json:"team_roles"`
}

// GetCurrentUser — GET /api/experimental/current-user/.
// Работает для обоих типов bearer-credentials. При аутентификации токеном
// сервисного аккаунта middleware уже обновил last_used аккаунта.
func (h *APIHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	info, err := h.users.CurrentUser(r.Context(), user)
	if err != nil {
		h.internalError(w, r, "ошибка чтения профиля пользователя", err)
		return
	}

	writeJSON(w, http.StatusOK, currentUserResponse{
		Username:     info.Username,
		Capabilities: info.Capabilities,
		TeamRoles:    info.IdentityRoles,
	})
}
