// internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "agrimarket-onboarding/internal/common/errors"
	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
	"agrimarket-onboarding/internal/review"
)

// ==========================
// Mock Implementations
// ==========================

type mockEngine struct {
	SubmitFunc         func(ctx context.Context, input *review.SubmitInput) (*models.Application, error)
	ReviewFunc         func(ctx context.Context, input *review.ReviewInput) (*models.Application, error)
	StatusForFunc      func(ctx context.Context, applicantID string, appType models.ApplicationType) (*review.StatusInfo, error)
	HistoryForFunc     func(ctx context.Context, applicantID string, appType models.ApplicationType) ([]*models.Application, error)
	GetApplicationFunc func(ctx context.Context, id string) (*models.Application, error)
	ListFunc           func(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error)
	StatsFunc          func(ctx context.Context) ([]models.StatusCount, error)
}

func (m *mockEngine) Submit(ctx context.Context, input *review.SubmitInput) (*models.Application, error) {
	return m.SubmitFunc(ctx, input)
}

func (m *mockEngine) Review(ctx context.Context, input *review.ReviewInput) (*models.Application, error) {
	return m.ReviewFunc(ctx, input)
}

func (m *mockEngine) StatusFor(ctx context.Context, applicantID string, appType models.ApplicationType) (*review.StatusInfo, error) {
	return m.StatusForFunc(ctx, applicantID, appType)
}

func (m *mockEngine) HistoryFor(ctx context.Context, applicantID string, appType models.ApplicationType) ([]*models.Application, error) {
	return m.HistoryForFunc(ctx, applicantID, appType)
}

func (m *mockEngine) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return m.GetApplicationFunc(ctx, id)
}

func (m *mockEngine) List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error) {
	return m.ListFunc(ctx, filter)
}

func (m *mockEngine) Stats(ctx context.Context) ([]models.StatusCount, error) {
	return m.StatsFunc(ctx)
}

type mockAccounts struct {
	accounts map[string]*models.Account
}

func (m *mockAccounts) Get(_ context.Context, id string) (*models.Account, error) {
	acct, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return acct, nil
}

// ==========================
// Test Fixtures
// ==========================

const (
	userID  = "22222222-2222-2222-2222-222222222222"
	adminID = "33333333-3333-3333-3333-333333333333"
)

func newTestServer(engine *mockEngine) *Server {
	accounts := &mockAccounts{accounts: map[string]*models.Account{
		userID:  {ID: userID, Role: models.RoleUser},
		adminID: {ID: adminID, Role: models.RoleAdmin},
	}}
	return NewServer(engine, accounts, nil, nil, logger.NewNoOpLogger())
}

func doRequest(t *testing.T, s *Server, method, path, callerID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if callerID != "" {
		req.Header.Set(HeaderUserID, callerID)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// ==========================
// Applicant Endpoints
// ==========================

func TestHandleSubmit(t *testing.T) {
	engine := &mockEngine{
		SubmitFunc: func(_ context.Context, input *review.SubmitInput) (*models.Application, error) {
			assert.Equal(t, userID, input.ApplicantID)
			assert.Equal(t, models.TypeFarmer, input.Type)
			assert.True(t, input.TermsAccepted)
			return &models.Application{ID: "app-1", Status: models.StatusPending, Version: 1}, nil
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodPost, "/api/applications/farmer", userID, submitRequest{
		TermsAccepted: true,
		Profile:       map[string]interface{}{"farmName": "Green Acres"},
		Documents:     []review.DocumentInput{{Type: "national_id", FileName: "id.pdf", URI: "s3://id.pdf"}},
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	var receipt submitReceipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "app-1", receipt.ApplicationID)
	assert.Equal(t, models.StatusPending, receipt.Status)
	assert.Equal(t, 1, receipt.Version)
}

func TestHandleSubmit_Multipart(t *testing.T) {
	engine := &mockEngine{
		SubmitFunc: func(_ context.Context, input *review.SubmitInput) (*models.Application, error) {
			assert.True(t, input.TermsAccepted)
			assert.Equal(t, "Green Acres", input.Profile["farmName"])
			require.Len(t, input.Documents, 1)
			assert.Equal(t, "national_id", input.Documents[0].Type)
			return &models.Application{ID: "app-1", Status: models.StatusPending, Version: 1}, nil
		},
	}
	s := newTestServer(engine)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("data",
		`{"termsAccepted":true,"profile":{"farmName":"Green Acres"}}`))
	require.NoError(t, mw.WriteField("documents",
		`[{"type":"national_id","fileName":"id.pdf","uri":"s3://id.pdf"}]`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/applications/farmer", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderUserID, userID)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandleSubmit_MissingIdentity(t *testing.T) {
	rec := doRequest(t, newTestServer(&mockEngine{}), http.MethodPost, "/api/applications/farmer", "", submitRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleSubmit_InvalidJSON(t *testing.T) {
	s := newTestServer(&mockEngine{})
	req := httptest.NewRequest(http.MethodPost, "/api/applications/farmer", bytes.NewReader([]byte("{not json")))
	req.Header.Set(HeaderUserID, userID)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmit_ConflictMapping(t *testing.T) {
	engine := &mockEngine{
		SubmitFunc: func(context.Context, *review.SubmitInput) (*models.Application, error) {
			return nil, apperrors.NewActiveApplicationError(userID, "farmer")
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodPost, "/api/applications/farmer", userID, submitRequest{TermsAccepted: true})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ACTIVE_APPLICATION_EXISTS", resp.Error.Code)
}

func TestHandleSubmit_ValidationViolationsInBody(t *testing.T) {
	engine := &mockEngine{
		SubmitFunc: func(context.Context, *review.SubmitInput) (*models.Application, error) {
			return nil, apperrors.NewValidationError("profile validation failed",
				[]string{"farmName: is required", "farmSize: must be greater than 0"})
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodPost, "/api/applications/farmer", userID, submitRequest{TermsAccepted: true})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Error.Violations, 2)
}

func TestHandleStatus(t *testing.T) {
	engine := &mockEngine{
		StatusForFunc: func(_ context.Context, applicantID string, appType models.ApplicationType) (*review.StatusInfo, error) {
			assert.Equal(t, userID, applicantID)
			assert.Equal(t, models.TypeDeliveryAgent, appType)
			return &review.StatusInfo{Status: models.StatusNotSubmitted}, nil
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodGet, "/api/applications/delivery_agent/status", userID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var info review.StatusInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, models.StatusNotSubmitted, info.Status)
}

func TestHandleHistory(t *testing.T) {
	engine := &mockEngine{
		HistoryForFunc: func(context.Context, string, models.ApplicationType) ([]*models.Application, error) {
			return []*models.Application{{ID: "a2", Version: 2}, {ID: "a1", Version: 1}}, nil
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodGet, "/api/applications/farmer/history", userID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Applications, 2)
	assert.Equal(t, 2, body.TotalApplications)
	require.NotNil(t, body.LatestApplication)
	assert.Equal(t, "a2", body.LatestApplication.ID)
}

// ==========================
// Admin Endpoints
// ==========================

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	s := newTestServer(&mockEngine{})

	rec := doRequest(t, s, http.MethodGet, "/api/admin/applications", userID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/admin/applications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/admin/applications", "unknown-account", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleList(t *testing.T) {
	engine := &mockEngine{
		ListFunc: func(_ context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error) {
			assert.Equal(t, "pending", filter.Status)
			assert.Equal(t, "farmer", filter.Type)
			assert.Equal(t, "Green", filter.Search)
			assert.Equal(t, 2, filter.Page)
			return []*models.Application{{ID: "a1"}}, 11, nil
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodGet,
		"/api/admin/applications?status=pending&applicationType=farmer&search=Green&page=2&limit=10", adminID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 11, body.Pagination.Total)
	assert.Equal(t, 2, body.Pagination.Page)
	assert.Equal(t, 2, body.Pagination.TotalPages)
	assert.Len(t, body.Applications, 1)
}

func TestHandleList_ReportsClampedLimit(t *testing.T) {
	engine := &mockEngine{
		ListFunc: func(_ context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error) {
			assert.Equal(t, 1, filter.Page)
			assert.Equal(t, 100, filter.Limit)
			return []*models.Application{{ID: "a1"}}, 250, nil
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodGet,
		"/api/admin/applications?limit=10000", adminID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 100, body.Pagination.Limit)
	assert.Equal(t, 250, body.Pagination.Total)
	assert.Equal(t, 3, body.Pagination.TotalPages)
}

func TestHandleStats(t *testing.T) {
	engine := &mockEngine{
		StatsFunc: func(context.Context) ([]models.StatusCount, error) {
			return []models.StatusCount{{Type: models.TypeFarmer, Status: models.StatusPending, Count: 4}}, nil
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodGet, "/api/admin/applications/stats", adminID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Stats []models.StatusCount `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Stats, 1)
	assert.Equal(t, 4, body.Stats[0].Count)
}

func TestHandleGet_NotFound(t *testing.T) {
	engine := &mockEngine{
		GetApplicationFunc: func(_ context.Context, id string) (*models.Application, error) {
			return nil, apperrors.NewApplicationNotFoundError(id)
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodGet, "/api/admin/applications/missing-id", adminID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReview(t *testing.T) {
	engine := &mockEngine{
		ReviewFunc: func(_ context.Context, input *review.ReviewInput) (*models.Application, error) {
			assert.Equal(t, "app-1", input.ApplicationID)
			assert.Equal(t, adminID, input.AdminID)
			assert.Equal(t, review.DecisionRejected, input.Decision)
			assert.Equal(t, "license expired", input.RejectionReason)
			require.Len(t, input.Documents, 1)
			return &models.Application{ID: "app-1", Status: models.StatusRejected}, nil
		},
	}

	reject := false
	rec := doRequest(t, newTestServer(engine), http.MethodPut, "/api/admin/applications/app-1/review", adminID, reviewRequest{
		Status:          review.DecisionRejected,
		RejectionReason: "license expired",
		DocumentReviews: []review.DocumentDecision{{ID: "d1", Approved: &reject}},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var app models.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, models.StatusRejected, app.Status)
}

func TestHandleReview_InternalErrorHidesDetails(t *testing.T) {
	engine := &mockEngine{
		ReviewFunc: func(context.Context, *review.ReviewInput) (*models.Application, error) {
			return nil, apperrors.NewDatabaseWriteError(errors.New("pq: connection refused"))
		},
	}

	rec := doRequest(t, newTestServer(engine), http.MethodPut, "/api/admin/applications/app-1/review", adminID, reviewRequest{
		Status: review.DecisionApproved,
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

// ==========================
// Health
// ==========================

func TestHandleHealth(t *testing.T) {
	s := NewServer(&mockEngine{}, &mockAccounts{}, nil, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	}, logger.NewNoOpLogger())

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
}
