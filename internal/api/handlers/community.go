// community.go — обработчики публичного API сообществ.
// Endpoint чтения не требует аутентификации, обслуживается через LRU-кэш.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/dkopylov/modvault/internal/api/errors"
	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/service"
)

// communityResponse — представление сообщества в API.
type communityResponse struct {
	Identifier          string  `json:"identifier"`
	Name                string  `json:"name"`
	ShortDescription    string  `json:"short_description"`
	Description         string  `json:"description"`
	DiscordURL          *string `json:"discord_url"`
	WikiURL             *string `json:"wiki_url"`
	BackgroundImageURL  *string `json:"background_image_url"`
	CommunityIconURL    *string `json:"community_icon_url"`
	TotalPackageCount   int64   `json:"total_package_count"`
	TotalDownloadCount  int64   `json:"total_download_count"`
	DatetimeCreated     string  `json:"datetime_created"`
}

func toCommunityResponse(c *model.Community) communityResponse {
	return communityResponse{
		Identifier:         c.Identifier,
		Name:               c.Name,
		ShortDescription:   c.ShortDescription,
		Description:        c.Description,
		DiscordURL:         c.DiscordURL,
		WikiURL:            c.WikiURL,
		BackgroundImageURL: c.BackgroundImageURL,
		CommunityIconURL:   c.IconURL,
		TotalPackageCount:  c.TotalPackageCount,
		TotalDownloadCount: c.TotalDownloadCount,
		DatetimeCreated:    c.DatetimeCreated.UTC().Format(time.RFC3339),
	}
}

// GetCommunity — GET /api/cyberstorm/community/{community_id}/.
// Ищет сообщество по внешнему идентификатору. Unlisted-сообщества
// доступны по прямой ссылке.
func (h *APIHandler) GetCommunity(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "community_id")

	community, err := h.communities.Get(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Community не найдено")
			return
		}
		h.internalError(w, r, "ошибка чтения community", err)
		return
	}

	writeJSON(w, http.StatusOK, toCommunityResponse(community))
}

// ListCommunities — GET /api/cyberstorm/community/.
// Возвращает только listed-сообщества, постранично.
func (h *APIHandler) ListCommunities(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	communities, err := h.communities.List(r.Context(), limit, offset)
	if err != nil {
		h.internalError(w, r, "ошибка чтения списка communities", err)
		return
	}

	resp := make([]communityResponse, 0, len(communities))
	for _, c := range communities {
		resp = append(resp, toCommunityResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}
