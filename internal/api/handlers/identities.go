// identities.go — обработчики API uploader identities.
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

// identityResponse — представление uploader identity в API.
type identityResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func toIdentityResponse(identity *model.UploaderIdentity) identityResponse {
	return identityResponse{
		ID:        identity.ID,
		Name:      identity.Name,
		CreatedAt: identity.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// createIdentityRequest — тело запроса создания identity.
type createIdentityRequest struct {
	Name string `json:"name"`
}

// CreateUploaderIdentity — POST /api/v1/uploader-identities.
// Вызывающий становится owner созданной identity.
func (h *APIHandler) CreateUploaderIdentity(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req createIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	identity, err := h.identities.Create(r.Context(), user, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, "Имя identity не задано")
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, "Identity с таким именем уже существует")
		default:
			h.internalError(w, r, "ошибка создания identity", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

// ListUploaderIdentities — GET /api/v1/uploader-identities.
// Возвращает identity, в которых состоит вызывающий.
func (h *APIHandler) ListUploaderIdentities(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	identities, err := h.identities.ListForUser(r.Context(), user)
	if err != nil {
		h.internalError(w, r, "ошибка чтения identities", err)
		return
	}

	resp := make([]identityResponse, 0, len(identities))
	for _, identity := range identities {
		resp = append(resp, toIdentityResponse(identity))
	}
	writeJSON(w, http.StatusOK, resp)
}

// addMemberRequest — тело запроса добавления участника identity.
type addMemberRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// memberResponse — представление членства в API.
type memberResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

// AddUploaderIdentityMember — POST /api/v1/uploader-identities/{name}/members.
// Добавлять участников может только owner.
func (h *APIHandler) AddUploaderIdentityMember(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	member, err := h.identities.AddMember(r.Context(), user, chi.URLParam(r, "name"), req.Username, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			apierrors.ValidationError(w, "Некорректная роль: допустимые значения — owner, member")
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Identity или пользователь не найдены")
		case errors.Is(err, service.ErrForbidden):
			apierrors.Forbidden(w, "Добавлять участников может только owner")
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, "Пользователь уже состоит в identity")
		default:
			h.internalError(w, r, "ошибка добавления участника", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, memberResponse{
		ID:       member.ID,
		UserID:   member.UserID,
		Role:     member.Role,
		JoinedAt: member.CreatedAt.UTC().Format(time.RFC3339),
	})
}
