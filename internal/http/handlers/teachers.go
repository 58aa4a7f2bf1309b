package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

// TeacherByID dispatches the /v1/teachers/{id}/... subresources.
func (api *API) TeacherByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/teachers/")
	teacherID, subresource, _ := strings.Cut(rest, "/")
	teacherID = strings.TrimSpace(teacherID)
	if teacherID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "teacher id is required")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	switch subresource {
	case "home":
		api.teacherHome(w, r, teacherID)
	case "leads":
		api.teacherLeads(w, r, teacherID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown teacher resource")
	}
}

// teacherHome is the visitor-facing landing page. When the request
// carries a visitor id the attribution is resolved inline, so opening
// a shared link both renders the page and records the binding.
func (api *API) teacherHome(w http.ResponseWriter, r *http.Request, teacherID string) {
	query := r.URL.Query()
	visitorID := strings.TrimSpace(query.Get("visitor_id"))
	shareOrScene := strings.TrimSpace(query.Get("share_id"))
	if shareOrScene == "" {
		shareOrScene = strings.TrimSpace(query.Get("scene"))
	}

	brokerID := ""
	if visitorID != "" {
		result, err := api.attributionService.Resolve(r.Context(), visitorID, teacherID, shareOrScene)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to resolve attribution")
			return
		}
		if result.Bound != nil {
			brokerID = result.Bound.BrokerID
		}
	}

	home, err := api.teachersService.Home(r.Context(), teacherID, brokerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "teacher not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load teacher home")
		return
	}

	response := map[string]any{
		"teacher": home.Teacher,
		"modules": home.Modules,
	}
	if home.Broker != nil {
		response["broker"] = home.Broker
	}
	writeJSON(w, http.StatusOK, response)
}

func (api *API) teacherLeads(w http.ResponseWriter, r *http.Request, teacherID string) {
	page, pageSize := parsePagination(r)
	items, total, err := api.leadsService.ListForTeacher(r.Context(), teacherID, page, pageSize)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list leads")
		return
	}
	writeJSON(w, http.StatusOK, leadListResponse(items, total, page, pageSize))
}

// BrokerLeads serves GET /v1/brokers/{id}/leads.
func (api *API) BrokerLeads(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/brokers/")
	brokerID, subresource, _ := strings.Cut(rest, "/")
	brokerID = strings.TrimSpace(brokerID)
	if brokerID == "" || subresource != "leads" {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown broker resource")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	page, pageSize := parsePagination(r)
	items, total, err := api.leadsService.ListForBroker(r.Context(), brokerID, page, pageSize)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list leads")
		return
	}
	writeJSON(w, http.StatusOK, leadListResponse(items, total, page, pageSize))
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func leadListResponse(items []domain.LeadListItem, total, page, pageSize int) map[string]any {
	leads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		leads = append(leads, map[string]any{
			"lead_id":        item.ID,
			"intent":         item.Intent,
			"leader_summary": item.LeaderSummary,
			"status":         item.Status,
			"created_at":     item.CreatedAt,
		})
	}
	return map[string]any{
		"leads":     leads,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}
}
