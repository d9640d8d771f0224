// internal/api/server.go
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/common/observability"
	"agrimarket-onboarding/internal/models"
	"agrimarket-onboarding/internal/review"
)

// EngineService is the review engine surface the HTTP layer depends on.
type EngineService interface {
	Submit(ctx context.Context, input *review.SubmitInput) (*models.Application, error)
	Review(ctx context.Context, input *review.ReviewInput) (*models.Application, error)
	StatusFor(ctx context.Context, applicantID string, appType models.ApplicationType) (*review.StatusInfo, error)
	HistoryFor(ctx context.Context, applicantID string, appType models.ApplicationType) ([]*models.Application, error)
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error)
	Stats(ctx context.Context) ([]models.StatusCount, error)
}

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Server exposes the review engine over HTTP.
type Server struct {
	engine   EngineService
	accounts AccountDirectory
	obs      *observability.Observability
	health   map[string]HealthCheck
	logger   logger.Logger
}

func NewServer(engine EngineService, accounts AccountDirectory, obs *observability.Observability, health map[string]HealthCheck, log logger.Logger) *Server {
	return &Server{
		engine:   engine,
		accounts: accounts,
		obs:      obs,
		health:   health,
		logger:   log.WithFields(map[string]interface{}{"component": "http-server"}),
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogging(s.logger))
	if s.obs != nil {
		r.Use(requestMetrics(s.obs))
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	applicant := r.PathPrefix("/api/applications").Subrouter()
	applicant.HandleFunc("/{type}", s.handleSubmit).Methods(http.MethodPost)
	applicant.HandleFunc("/{type}/status", s.handleStatus).Methods(http.MethodGet)
	applicant.HandleFunc("/{type}/history", s.handleHistory).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/admin/applications").Subrouter()
	admin.Use(requireAdmin(s.accounts))
	admin.HandleFunc("", s.handleList).Methods(http.MethodGet)
	admin.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	admin.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	admin.HandleFunc("/{id}/review", s.handleReview).Methods(http.MethodPut)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	healthy := true
	for name, check := range s.health {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	WriteJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}
