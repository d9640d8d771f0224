// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"agrimarket-onboarding/internal/models"
	"agrimarket-onboarding/internal/review"
)

type submitRequest struct {
	TermsAccepted bool                   `json:"termsAccepted"`
	Profile       map[string]interface{} `json:"profile"`
	Documents     []review.DocumentInput `json:"documents"`
}

type submitReceipt struct {
	ApplicationID string                   `json:"applicationId"`
	Status        models.ApplicationStatus `json:"status"`
	Version       int                      `json:"version"`
}

type reviewRequest struct {
	Status           string                    `json:"status"`
	RejectionReason  string                    `json:"rejectionReason,omitempty"`
	SuspensionReason string                    `json:"suspensionReason,omitempty"`
	Remarks          string                    `json:"remarks,omitempty"`
	Notes            string                    `json:"notes,omitempty"`
	DocumentReviews  []review.DocumentDecision `json:"documentReviews,omitempty"`
}

type paginationInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listResponse struct {
	Applications []*models.Application `json:"applications"`
	Pagination   paginationInfo        `json:"pagination"`
}

type historyResponse struct {
	Applications      []*models.Application `json:"applications"`
	TotalApplications int                   `json:"totalApplications"`
	LatestApplication *models.Application   `json:"latestApplication,omitempty"`
}

// decodeSubmit reads the submission body. Multipart submissions carry the
// JSON under a "data" field and an optional "documents" field; files
// themselves travel through the upload service and arrive here as URIs.
func decodeSubmit(r *http.Request, req *submitRequest) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(r.FormValue("data")), req); err != nil {
			return err
		}
		if docs := r.FormValue("documents"); docs != "" {
			return json.Unmarshal([]byte(docs), &req.Documents)
		}
		return nil
	}
	return DecodeJSON(r, req)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeSubmit(r, &req); err != nil {
		BadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	app, err := s.engine.Submit(r.Context(), &review.SubmitInput{
		ApplicantID:   userID,
		Type:          models.ApplicationType(mux.Vars(r)["type"]),
		TermsAccepted: req.TermsAccepted,
		Profile:       req.Profile,
		Documents:     req.Documents,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, submitReceipt{
		ApplicationID: app.ID,
		Status:        app.Status,
		Version:       app.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}

	info, err := s.engine.StatusFor(r.Context(), userID, models.ApplicationType(mux.Vars(r)["type"]))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}

	apps, err := s.engine.HistoryFor(r.Context(), userID, models.ApplicationType(mux.Vars(r)["type"]))
	if err != nil {
		WriteError(w, err)
		return
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	resp := historyResponse{
		Applications:      apps,
		TotalApplications: len(apps),
	}
	if len(apps) > 0 {
		resp.LatestApplication = apps[0]
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ApplicationFilter{
		Status: q.Get("status"),
		Type:   q.Get("applicationType"),
		Search: q.Get("search"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter = filter.Normalized()

	apps, total, err := s.engine.List(r.Context(), filter)
	if err != nil {
		WriteError(w, err)
		return
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	totalPages := (total + filter.Limit - 1) / filter.Limit
	WriteJSON(w, http.StatusOK, listResponse{
		Applications: apps,
		Pagination: paginationInfo{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.engine.Stats(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if counts == nil {
		counts = []models.StatusCount{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"stats": counts})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	app, err := s.engine.GetApplication(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	adminID, ok := RequireUserID(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequest(w, "Invalid JSON body: "+err.Error())
		return
	}

	app, err := s.engine.Review(r.Context(), &review.ReviewInput{
		ApplicationID:    mux.Vars(r)["id"],
		AdminID:          adminID,
		Decision:         req.Status,
		RejectionReason:  req.RejectionReason,
		SuspensionReason: req.SuspensionReason,
		Remarks:          req.Remarks,
		Notes:            req.Notes,
		Documents:        req.DocumentReviews,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}
