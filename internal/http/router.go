package httpserver

import (
	"log"
	"net/http"

	"github.com/Vinsen2024/lead-funnel-back/internal/http/handlers"
	"github.com/Vinsen2024/lead-funnel-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/v1/attribution/resolve", deps.API.ResolveAttribution)
	mux.HandleFunc("/v1/shares", deps.API.Shares)
	mux.HandleFunc("/v1/leads", deps.API.CreateLead)
	mux.HandleFunc("/v1/leads/", deps.API.LeadByID)
	mux.HandleFunc("/v1/teachers/", deps.API.TeacherByID)
	mux.HandleFunc("/v1/brokers/", deps.API.BrokerLeads)
	mux.HandleFunc("/v1/exports", deps.API.CreateExport)
	mux.HandleFunc("/v1/exports/", deps.API.ExportStatus)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
