package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
	"github.com/Vinsen2024/lead-funnel-back/internal/service"
)

type createLeadRequest struct {
	VisitorID string          `json:"visitor_id"`
	TeacherID string          `json:"teacher_id"`
	Intent    string          `json:"intent"`
	Input     json.RawMessage `json:"input,omitempty"`
	ShareID   string          `json:"share_id,omitempty"`
	Scene     string          `json:"scene,omitempty"`
}

type updateLeadStatusRequest struct {
	Status string `json:"status"`
}

// CreateLead accepts a visitor's consultation submission. The broker
// attribution is snapshotted onto the lead at this moment and never
// recomputed, even if the visitor's binding later changes.
func (api *API) CreateLead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	var request createLeadRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	request.VisitorID = strings.TrimSpace(request.VisitorID)
	request.TeacherID = strings.TrimSpace(request.TeacherID)
	request.Intent = strings.TrimSpace(request.Intent)
	if request.VisitorID == "" || request.TeacherID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "visitor_id and teacher_id are required")
		return
	}
	if request.Intent == "" || len(request.Intent) > 2000 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "intent is required and must have at most 2000 chars")
		return
	}

	payloadHash := hashPayload(request)
	if idempotencyKey != "" {
		if entry, exists := api.idempotency.Get(idempotencyKey); exists {
			if entry.PayloadHash != payloadHash {
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"lead_id":    entry.ResourceID,
				"created_at": entry.CreatedAt.Format(time.RFC3339Nano),
				"replayed":   true,
			})
			return
		}
	}

	shareOrScene := strings.TrimSpace(request.ShareID)
	if shareOrScene == "" {
		shareOrScene = strings.TrimSpace(request.Scene)
	}
	attribution, err := api.attributionService.Resolve(r.Context(), request.VisitorID, request.TeacherID, shareOrScene)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to resolve attribution")
		return
	}

	lead, err := api.leadsService.Create(r.Context(), request.VisitorID, service.LeadRequest{
		TeacherID:   request.TeacherID,
		Intent:      request.Intent,
		Input:       request.Input,
		Attribution: attribution.Bound,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "teacher not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to create lead")
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Put(idempotencyKey, payloadHash, lead.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"lead_id":              lead.ID,
		"status":               lead.Status,
		"leader_summary":       lead.LeaderSummary,
		"clarifying_questions": lead.ClarifyingQuestions,
		"coverage_score":       lead.CoverageScore,
		"broker_id":            lead.BrokerID,
		"created_at":           lead.CreatedAt.Format(time.RFC3339Nano),
	})
}

// LeadByID dispatches the /v1/leads/{id}/... subresources.
func (api *API) LeadByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/leads/")
	leadID, subresource, _ := strings.Cut(rest, "/")
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "lead id is required")
		return
	}

	switch {
	case subresource == "summary" && r.Method == http.MethodGet:
		api.leadSummary(w, r, leadID)
	case subresource == "status" && r.Method == http.MethodPatch:
		api.updateLeadStatus(w, r, leadID)
	case subresource == "summary" || subresource == "status":
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown lead resource")
	}
}

func (api *API) leadSummary(w http.ResponseWriter, r *http.Request, leadID string) {
	summary, err := api.leadsService.GetSummary(r.Context(), leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "lead not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load lead")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lead_id":              summary.LeadID,
		"leader_summary":       summary.LeaderSummary,
		"teacher_summary":      summary.TeacherSummary,
		"clarifying_questions": summary.ClarifyingQuestions,
		"coverage_score":       summary.CoverageScore,
		"status":               summary.Status,
	})
}

func (api *API) updateLeadStatus(w http.ResponseWriter, r *http.Request, leadID string) {
	var request updateLeadStatusRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	status := domain.LeadStatus(strings.ToUpper(strings.TrimSpace(request.Status)))
	if !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "status must be NEW, CONTACTED, QUALIFIED or CLOSED")
		return
	}

	if err := api.leadsService.UpdateStatus(r.Context(), leadID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "lead not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to update lead status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lead_id": leadID,
		"status":  status,
	})
}
