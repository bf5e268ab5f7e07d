// service_accounts.go — обработчики API сервисных аккаунтов.
// Мутации идут через формы сервисного слоя: ошибки валидации возвращаются
// клиенту с разбивкой по полям (400 VALIDATION_ERROR).
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/dkopylov/modvault/internal/api/errors"
	"github.com/dkopylov/modvault/internal/api/middleware"
	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/service"
)

// serviceAccountResponse — представление сервисного аккаунта в API.
type serviceAccountResponse struct {
	ID        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	CreatedAt string  `json:"created_at"`
	LastUsed  *string `json:"last_used"`
}

func toServiceAccountResponse(sa *model.ServiceAccount) serviceAccountResponse {
	resp := serviceAccountResponse{
		ID:        sa.ID,
		Nickname:  sa.Nickname,
		CreatedAt: sa.CreatedAt.UTC().Format(time.RFC3339),
	}
	if sa.LastUsed != nil {
		lu := sa.LastUsed.UTC().Format(time.RFC3339)
		resp.LastUsed = &lu
	}
	return resp
}

// createServiceAccountRequest — тело запроса создания сервисного аккаунта.
type createServiceAccountRequest struct {
	Identity string `json:"identity"`
	Nickname string `json:"nickname"`
}

// CreateServiceAccount — POST /api/v1/service-accounts.
func (h *APIHandler) CreateServiceAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req createServiceAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	form := h.serviceAccts.NewCreateForm(user, req.Identity, req.Nickname)
	ok, err := form.IsValid(r.Context())
	if err != nil {
		h.internalError(w, r, "ошибка валидации формы создания SA", err)
		return
	}
	if !ok {
		apierrors.FormErrors(w, form.Errors())
		return
	}

	sa, err := form.Save(r.Context())
	if err != nil {
		h.internalError(w, r, "ошибка создания сервисного аккаунта", err)
		return
	}

	writeJSON(w, http.StatusCreated, toServiceAccountResponse(sa))
}

// ListServiceAccounts — GET /api/v1/service-accounts?identity=<name>.
// Возвращает сервисные аккаунты identity, в которой состоит вызывающий.
func (h *APIHandler) ListServiceAccounts(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	identityName := r.URL.Query().Get("identity")
	if identityName == "" {
		apierrors.ValidationError(w, "Отсутствует обязательный параметр identity")
		return
	}

	accounts, err := h.serviceAccts.ListForIdentity(r.Context(), user, identityName)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Identity не найдена")
			return
		}
		h.internalError(w, r, "ошибка чтения сервисных аккаунтов", err)
		return
	}

	resp := make([]serviceAccountResponse, 0, len(accounts))
	for _, sa := range accounts {
		resp = append(resp, toServiceAccountResponse(sa))
	}
	writeJSON(w, http.StatusOK, resp)
}

// editServiceAccountRequest — тело запроса редактирования сервисного аккаунта.
type editServiceAccountRequest struct {
	Nickname string `json:"nickname"`
}

// EditServiceAccount — PUT /api/v1/service-accounts/{id}.
func (h *APIHandler) EditServiceAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req editServiceAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	form := h.serviceAccts.NewEditForm(user, chi.URLParam(r, "id"), req.Nickname)
	ok, err := form.IsValid(r.Context())
	if err != nil {
		h.internalError(w, r, "ошибка валидации формы редактирования SA", err)
		return
	}
	if !ok {
		apierrors.FormErrors(w, form.Errors())
		return
	}

	sa, err := form.Save(r.Context())
	if err != nil {
		h.internalError(w, r, "ошибка редактирования сервисного аккаунта", err)
		return
	}

	writeJSON(w, http.StatusOK, toServiceAccountResponse(sa))
}

// DeleteServiceAccount — DELETE /api/v1/service-accounts/{id}.
func (h *APIHandler) DeleteServiceAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	form := h.serviceAccts.NewDeleteForm(user, chi.URLParam(r, "id"))
	ok, err := form.IsValid(r.Context())
	if err != nil {
		h.internalError(w, r, "ошибка валидации формы удаления SA", err)
		return
	}
	if !ok {
		apierrors.FormErrors(w, form.Errors())
		return
	}

	if err := form.Save(r.Context()); err != nil {
		h.internalError(w, r, "ошибка удаления сервисного аккаунта", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// tokenResponse — ответ выпуска токена. Ключ возвращается единственный раз.
type tokenResponse struct {
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

// CreateServiceAccountToken — POST /api/v1/service-accounts/{id}/token.
// Выпускает новый токен, отзывая предыдущий.
func (h *APIHandler) CreateServiceAccountToken(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	form := h.serviceAccts.NewCreateTokenForm(user, chi.URLParam(r, "id"))
	ok, err := form.IsValid(r.Context())
	if err != nil {
		h.internalError(w, r, "ошибка валидации формы выпуска токена", err)
		return
	}
	if !ok {
		apierrors.FormErrors(w, form.Errors())
		return
	}

	token, err := form.Save(r.Context())
	if err != nil {
		h.internalError(w, r, "ошибка выпуска токена", err)
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{
		Key:       token.Key,
		CreatedAt: token.CreatedAt.UTC().Format(time.RFC3339),
	})
}
