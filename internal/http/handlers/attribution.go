package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/http/middleware"
)

type resolveRequest struct {
	VisitorID string `json:"visitor_id"`
	TeacherID string `json:"teacher_id"`
	ShareID   string `json:"share_id,omitempty"`
	Scene     string `json:"scene,omitempty"`
}

// ResolveAttribution answers "which broker gets credit" for a visitor
// landing on a teacher page. Called on every mini-program page load,
// so failures degrade to the unattributed shape instead of 5xx where
// the service allows it.
func (api *API) ResolveAttribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request resolveRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	request.VisitorID = strings.TrimSpace(request.VisitorID)
	request.TeacherID = strings.TrimSpace(request.TeacherID)
	if request.VisitorID == "" || len(request.VisitorID) > 64 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "visitor_id is required")
		return
	}
	if request.TeacherID == "" || len(request.TeacherID) > 64 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "teacher_id is required")
		return
	}

	shareOrScene := strings.TrimSpace(request.ShareID)
	if shareOrScene == "" {
		shareOrScene = strings.TrimSpace(request.Scene)
	}

	result, err := api.attributionService.Resolve(r.Context(), request.VisitorID, request.TeacherID, shareOrScene)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to resolve attribution")
		return
	}

	response := map[string]any{
		"request_id": middleware.GetRequestID(r.Context()),
		"attributed": result.Bound != nil,
	}
	if result.Bound != nil {
		response["broker_id"] = result.Bound.BrokerID
		response["share_id"] = result.Bound.ShareID
		response["expires_at"] = result.Bound.ExpiresAt.Format(time.RFC3339)
	}
	if result.BrokerInfo != nil {
		response["broker"] = result.BrokerInfo
	}
	writeJSON(w, http.StatusOK, response)
}
