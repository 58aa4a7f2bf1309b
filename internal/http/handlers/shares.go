package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
	"github.com/Vinsen2024/lead-funnel-back/internal/service"
)

type createShareRequest struct {
	BrokerID  string `json:"broker_id"`
	TeacherID string `json:"teacher_id"`
}

// Shares handles the broker share-link collection: POST mints (or
// reuses) a link, GET lists the broker's links.
func (api *API) Shares(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.createShare(w, r)
	case http.MethodGet:
		api.listShares(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (api *API) createShare(w http.ResponseWriter, r *http.Request) {
	var request createShareRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	request.BrokerID = strings.TrimSpace(request.BrokerID)
	request.TeacherID = strings.TrimSpace(request.TeacherID)
	if request.BrokerID == "" || request.TeacherID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "broker_id and teacher_id are required")
		return
	}

	link, err := api.sharesService.CreateOrReuseShare(r.Context(), request.BrokerID, request.TeacherID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "broker or teacher not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to create share")
		return
	}

	writeJSON(w, http.StatusCreated, shareLinkResponse(link))
}

func (api *API) listShares(w http.ResponseWriter, r *http.Request) {
	brokerID := strings.TrimSpace(r.URL.Query().Get("broker_id"))
	if brokerID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "broker_id is required")
		return
	}

	shares, err := api.sharesService.ListShares(r.Context(), brokerID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list shares")
		return
	}

	items := make([]map[string]any, 0, len(shares))
	for i := range shares {
		items = append(items, shareResponse(&shares[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": items})
}

func shareLinkResponse(link service.ShareLink) map[string]any {
	response := map[string]any{
		"share_id": link.ShareID,
		"path":     link.Path,
		"scene":    link.Scene,
	}
	if link.ExpiresAt != nil {
		response["expires_at"] = link.ExpiresAt.Format(time.RFC3339)
	}
	return response
}

func shareResponse(share *domain.Share) map[string]any {
	response := map[string]any{
		"share_id":   share.ShareID,
		"teacher_id": share.TeacherID,
		"broker_id":  share.BrokerID,
		"is_active":  share.IsActive,
		"created_at": share.CreatedAt.Format(time.RFC3339),
	}
	if share.ExpiresAt != nil {
		response["expires_at"] = share.ExpiresAt.Format(time.RFC3339)
	}
	return response
}
