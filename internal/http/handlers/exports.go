package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

type createExportRequest struct {
	LeadID string `json:"lead_id"`
	Type   string `json:"type,omitempty"`
}

// CreateExport accepts a report generation request and returns 202;
// the PDF is produced by the worker pool and fetched via ExportStatus.
func (api *API) CreateExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request createExportRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	request.LeadID = strings.TrimSpace(request.LeadID)
	if request.LeadID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "lead_id is required")
		return
	}

	jobType := domain.ExportJobType(strings.TrimSpace(request.Type))
	if jobType == "" {
		jobType = domain.ExportTypeMatchReport
	}
	if jobType != domain.ExportTypeMatchReport {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "type must be MATCH_REPORT")
		return
	}

	jobID, err := api.exportsService.CreateJob(r.Context(), request.LeadID, jobType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "lead not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to create export job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     jobID,
		"status":     domain.ExportStatusPending,
		"status_url": "/v1/exports/" + jobID,
	})
}

// ExportStatus serves GET /v1/exports/{id}. A SUCCEEDED job gets a
// freshly signed result URL on every read.
func (api *API) ExportStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/exports/"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job id is required")
		return
	}

	status, err := api.exportsService.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "export job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load export job")
		return
	}

	response := map[string]any{
		"job_id": status.JobID,
		"status": status.Status,
	}
	if status.ResultURL != "" {
		response["result_url"] = status.ResultURL
	}
	if strings.TrimSpace(status.ErrorMessage) != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": status.ErrorMessage,
		}
	}
	writeJSON(w, http.StatusOK, response)
}
