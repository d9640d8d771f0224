// internal/review/engine.go
package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "agrimarket-onboarding/internal/common/errors"
	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/common/metrics"
	"agrimarket-onboarding/internal/models"
	"agrimarket-onboarding/internal/rules"
)

// Review decisions accepted from administrators.
const (
	DecisionApproved    = "approved"
	DecisionRejected    = "rejected"
	DecisionUnderReview = "under_review"
	DecisionSuspended   = "suspended"
)

// ApplicationStore is the persistence surface the engine needs for
// application records.
type ApplicationStore interface {
	Insert(ctx context.Context, app *models.Application, accountID string, role models.Role) error
	Update(ctx context.Context, app *models.Application, accountID string, role models.Role) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	Latest(ctx context.Context, applicantID string, appType models.ApplicationType) (*models.Application, error)
	FindActive(ctx context.Context, applicantID string, appType models.ApplicationType) (*models.Application, error)
	NextVersion(ctx context.Context, applicantID string, appType models.ApplicationType) (int, error)
	History(ctx context.Context, applicantID string, appType models.ApplicationType) ([]*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error)
	Stats(ctx context.Context) ([]models.StatusCount, error)
	AppendAudit(ctx context.Context, eventType, resourceID string, details map[string]interface{})
}

// AccountStore resolves applicant identities. Role transitions ride the
// application write so both commit or roll back together.
type AccountStore interface {
	Get(ctx context.Context, id string) (*models.Account, error)
}

// Locker serializes concurrent submissions per (applicant, type). Acquire
// returns a nil release when the lock is already held.
type Locker interface {
	Acquire(ctx context.Context, applicantID, appType string) (func(), error)
}

// StatsCache memoizes the admin aggregate between state changes.
type StatsCache interface {
	Get(ctx context.Context) ([]models.StatusCount, bool)
	Set(ctx context.Context, counts []models.StatusCount)
	Invalidate(ctx context.Context)
}

// Dispatcher receives lifecycle events after state has been persisted.
// Implementations must not block and must never surface failures to callers.
type Dispatcher interface {
	ApplicationSubmitted(app *models.Application, applicant *models.Account)
	ApplicationDecided(app *models.Application, applicant *models.Account, decision string)
}

// Engine drives the application lifecycle: submission, admin review,
// role transitions and the queries backing applicant and admin views.
type Engine struct {
	registry   *rules.Registry
	apps       ApplicationStore
	accounts   AccountStore
	lock       Locker
	statsCache StatsCache
	dispatcher Dispatcher
	logger     logger.Logger
}

func NewEngine(
	registry *rules.Registry,
	apps ApplicationStore,
	accounts AccountStore,
	lock Locker,
	statsCache StatsCache,
	dispatcher Dispatcher,
	log logger.Logger,
) *Engine {
	return &Engine{
		registry:   registry,
		apps:       apps,
		accounts:   accounts,
		lock:       lock,
		statsCache: statsCache,
		dispatcher: dispatcher,
		logger:     log.WithFields(map[string]interface{}{"component": "review-engine"}),
	}
}

// DocumentInput is one file reference supplied at submission.
type DocumentInput struct {
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	URI      string `json:"uri"`
}

// SubmitInput is a complete submission request.
type SubmitInput struct {
	ApplicantID   string
	Type          models.ApplicationType
	TermsAccepted bool
	Profile       map[string]interface{}
	Documents     []DocumentInput
}

// Submit validates and persists a new application version together with the
// applicant's move to the pending role, in one transactional write, then
// dispatches side effects. Success means the record and the role change are
// durable; notifications and emails are best effort and never reported here.
func (e *Engine) Submit(ctx context.Context, input *SubmitInput) (*models.Application, error) {
	typeRules, ok := e.registry.Lookup(input.Type)
	if !ok {
		return nil, apperrors.NewUnknownApplicationTypeError(string(input.Type))
	}

	if !input.TermsAccepted {
		metrics.SubmissionsRejected.WithLabelValues(string(input.Type), "terms_not_accepted").Inc()
		return nil, apperrors.NewTermsNotAcceptedError()
	}

	applicant, err := e.accounts.Get(ctx, input.ApplicantID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewAccountNotFoundError(input.ApplicantID)
		}
		return nil, apperrors.NewDatabaseQueryError(err)
	}

	if violations := typeRules.ValidateProfile(input.Profile); len(violations) > 0 {
		metrics.SubmissionsRejected.WithLabelValues(string(input.Type), "invalid_profile").Inc()
		return nil, apperrors.NewValidationError("profile validation failed", violations)
	}

	if e.lock != nil {
		release, err := e.lock.Acquire(ctx, input.ApplicantID, string(input.Type))
		if err != nil {
			// Lock transport failure is not fatal; the partial unique index
			// still enforces the single active application.
			e.logger.Warn("submission lock unavailable", map[string]interface{}{
				"error":       err,
				"applicantId": input.ApplicantID,
			})
		} else if release == nil {
			metrics.SubmissionsRejected.WithLabelValues(string(input.Type), "active_exists").Inc()
			return nil, apperrors.NewActiveApplicationError(input.ApplicantID, string(input.Type))
		} else {
			defer release()
		}
	}

	if existing, err := e.apps.FindActive(ctx, input.ApplicantID, input.Type); err == nil && existing != nil {
		metrics.SubmissionsRejected.WithLabelValues(string(input.Type), "active_exists").Inc()
		return nil, apperrors.NewActiveApplicationError(input.ApplicantID, string(input.Type))
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, apperrors.NewDatabaseQueryError(err)
	}

	version, err := e.apps.NextVersion(ctx, input.ApplicantID, input.Type)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError(err)
	}

	documents := make([]models.Document, 0, len(input.Documents))
	for _, d := range input.Documents {
		documents = append(documents, models.Document{
			ID:       uuid.New().String(),
			Type:     d.Type,
			FileName: d.FileName,
			URI:      d.URI,
		})
	}
	if missing := typeRules.MissingDocuments(documents); len(missing) > 0 {
		metrics.SubmissionsRejected.WithLabelValues(string(input.Type), "missing_documents").Inc()
		return nil, apperrors.NewMissingDocumentsError(missing)
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:          uuid.New().String(),
		ApplicantID: input.ApplicantID,
		Type:        input.Type,
		Status:      models.StatusPending,
		Version:     version,
		Profile:     input.Profile,
		Documents:   documents,
		SubmittedAt: now,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	nextRole := e.roleChangeFor(applicant, models.PendingRole(input.Type))
	if err := e.apps.Insert(ctx, app, applicant.ID, nextRole); err != nil {
		if errors.Is(err, models.ErrDuplicateActiveApplication) {
			metrics.SubmissionsRejected.WithLabelValues(string(input.Type), "active_exists").Inc()
			return nil, apperrors.NewActiveApplicationError(input.ApplicantID, string(input.Type))
		}
		return nil, apperrors.NewDatabaseWriteError(err)
	}
	if nextRole != "" {
		applicant.Role = nextRole
	}

	e.apps.AppendAudit(ctx, "application_submitted", app.ID, map[string]interface{}{
		"applicantId":     app.ApplicantID,
		"applicationType": string(app.Type),
		"version":         app.Version,
	})
	metrics.ApplicationsSubmitted.WithLabelValues(string(input.Type)).Inc()
	e.invalidateStats(ctx)

	e.logger.Info("application submitted", map[string]interface{}{
		"applicationId":   app.ID,
		"applicantId":     app.ApplicantID,
		"applicationType": string(app.Type),
		"version":         app.Version,
	})

	if e.dispatcher != nil {
		e.dispatcher.ApplicationSubmitted(app, applicant)
	}
	return app, nil
}

// DocumentDecision is an admin's verdict on a single document.
type DocumentDecision struct {
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
	Remarks  string `json:"remarks,omitempty"`
}

// ReviewInput is a complete admin decision.
type ReviewInput struct {
	ApplicationID    string
	AdminID          string
	Decision         string
	RejectionReason  string
	SuspensionReason string
	Remarks          string
	Notes            string
	Documents        []DocumentDecision
}

// Review records an admin decision. The application status, document states
// and the applicant's role transition land in one transactional write, then
// side effects are dispatched.
func (e *Engine) Review(ctx context.Context, input *ReviewInput) (*models.Application, error) {
	switch input.Decision {
	case DecisionApproved, DecisionRejected, DecisionUnderReview, DecisionSuspended:
	default:
		return nil, apperrors.NewInvalidDecisionError(input.Decision)
	}
	if input.Decision == DecisionRejected && input.RejectionReason == "" {
		return nil, apperrors.NewValidationError("rejection requires a reason",
			[]string{"rejectionReason: required when decision is rejected"})
	}

	app, err := e.apps.GetByID(ctx, input.ApplicationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
		}
		return nil, apperrors.NewDatabaseQueryError(err)
	}

	// Approve, reject and under_review act on in-flight applications only.
	// Suspension may hit any live record, including one already approved.
	switch input.Decision {
	case DecisionApproved, DecisionRejected, DecisionUnderReview:
		if !app.IsReviewable() {
			return nil, apperrors.NewNotReviewableError(app.ID, string(app.Status))
		}
	case DecisionSuspended:
		if app.Status == models.StatusSuspended {
			return nil, apperrors.NewNotReviewableError(app.ID, string(app.Status))
		}
	}

	applicant, err := e.accounts.Get(ctx, app.ApplicantID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewAccountNotFoundError(app.ApplicantID)
		}
		return nil, apperrors.NewDatabaseQueryError(err)
	}

	now := time.Now().UTC()
	e.applyDocumentDecisions(app, input, now)

	review := &models.AdminReview{
		AdminID:          input.AdminID,
		ReviewedAt:       &now,
		Remarks:          input.Remarks,
		RejectionReason:  input.RejectionReason,
		SuspensionReason: input.SuspensionReason,
		Notes:            input.Notes,
	}
	for _, d := range app.Documents {
		if d.Approved == nil {
			continue
		}
		if *d.Approved {
			review.ApprovedDocuments = append(review.ApprovedDocuments, d.ID)
		} else {
			review.RejectedDocuments = append(review.RejectedDocuments, d.ID)
		}
	}
	app.Review = review
	if app.ReviewedAt == nil {
		app.ReviewedAt = &now
	}
	app.UpdatedAt = now

	// IsActive is left untouched: decided records stay visible to the
	// admin listing and are excluded from the active-slot check by
	// status alone.
	var nextRole models.Role
	switch input.Decision {
	case DecisionApproved:
		app.Status = models.StatusApproved
		if app.ApprovedAt == nil {
			app.ApprovedAt = &now
		}
		nextRole = models.TerminalRole(app.Type)
	case DecisionRejected:
		app.Status = models.StatusRejected
		if app.RejectedAt == nil {
			app.RejectedAt = &now
		}
		nextRole = models.IncompleteRole(app.Type)
	case DecisionUnderReview:
		// Marks the record as claimed by a reviewer. No role change.
		app.Status = models.StatusUnderReview
	case DecisionSuspended:
		app.Status = models.StatusSuspended
		if app.SuspendedAt == nil {
			app.SuspendedAt = &now
		}
		nextRole = models.SuspendedRole(app.Type)
	}

	if nextRole != "" {
		nextRole = e.roleChangeFor(applicant, nextRole)
	}
	if err := e.apps.Update(ctx, app, applicant.ID, nextRole); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(app.ID)
		}
		return nil, apperrors.NewDatabaseWriteError(err)
	}
	if nextRole != "" {
		applicant.Role = nextRole
	}

	e.apps.AppendAudit(ctx, "application_"+input.Decision, app.ID, map[string]interface{}{
		"applicantId":     app.ApplicantID,
		"applicationType": string(app.Type),
		"adminId":         input.AdminID,
		"decision":        input.Decision,
	})
	metrics.ApplicationsReviewed.WithLabelValues(string(app.Type), input.Decision).Inc()
	e.invalidateStats(ctx)

	e.logger.Info("application reviewed", map[string]interface{}{
		"applicationId":   app.ID,
		"applicationType": string(app.Type),
		"decision":        input.Decision,
		"adminId":         input.AdminID,
	})

	if e.dispatcher != nil {
		e.dispatcher.ApplicationDecided(app, applicant, input.Decision)
	}
	return app, nil
}

// applyDocumentDecisions mutates the application's documents in place. A
// decision is matched by id first, then by type or file name; decisions that
// match nothing are logged and skipped rather than failing the review.
func (e *Engine) applyDocumentDecisions(app *models.Application, input *ReviewInput, now time.Time) {
	for _, decision := range input.Documents {
		doc := app.FindDocument(decision.ID)
		if doc == nil {
			doc = app.FindDocumentByTypeOrName(decision.Type, decision.FileName)
			if doc != nil {
				e.logger.Info("document matched by fallback", map[string]interface{}{
					"applicationId": app.ID,
					"requestedId":   decision.ID,
					"matchedId":     doc.ID,
				})
			}
		}
		if doc == nil {
			e.logger.Warn("document decision matched nothing", map[string]interface{}{
				"applicationId": app.ID,
				"requestedId":   decision.ID,
				"documentType":  decision.Type,
				"fileName":      decision.FileName,
			})
			continue
		}

		if decision.Approved != nil {
			doc.Approved = decision.Approved
		}
		if decision.Remarks != "" {
			doc.Remarks = decision.Remarks
		}
		if doc.VerifiedAt == nil {
			t := now
			doc.VerifiedAt = &t
			doc.VerifiedBy = input.AdminID
		}
	}
}

// roleChangeFor resolves the role write that rides an application write.
// Admin accounts are never transitioned and no-op changes are skipped.
func (e *Engine) roleChangeFor(applicant *models.Account, role models.Role) models.Role {
	if applicant.Role == models.RoleAdmin {
		e.logger.Warn("skipping role transition for admin account", map[string]interface{}{
			"accountId": applicant.ID,
		})
		return ""
	}
	if applicant.Role == role {
		return ""
	}
	return role
}

// StatusInfo is the applicant-facing status view.
type StatusInfo struct {
	Status      models.ApplicationStatus `json:"status"`
	Application *models.Application      `json:"application,omitempty"`
}

// StatusFor returns the latest application version for the pair, or the
// not_submitted sentinel when nothing was ever submitted.
func (e *Engine) StatusFor(ctx context.Context, applicantID string, appType models.ApplicationType) (*StatusInfo, error) {
	if _, ok := e.registry.Lookup(appType); !ok {
		return nil, apperrors.NewUnknownApplicationTypeError(string(appType))
	}
	app, err := e.apps.Latest(ctx, applicantID, appType)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &StatusInfo{Status: models.StatusNotSubmitted}, nil
		}
		return nil, apperrors.NewDatabaseQueryError(err)
	}
	return &StatusInfo{Status: app.Status, Application: app}, nil
}

// HistoryFor returns every version the applicant ever submitted for the
// type, newest first.
func (e *Engine) HistoryFor(ctx context.Context, applicantID string, appType models.ApplicationType) ([]*models.Application, error) {
	if _, ok := e.registry.Lookup(appType); !ok {
		return nil, apperrors.NewUnknownApplicationTypeError(string(appType))
	}
	apps, err := e.apps.History(ctx, applicantID, appType)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError(err)
	}
	return apps, nil
}

// GetApplication returns one record for the admin detail view.
func (e *Engine) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := e.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(id)
		}
		return nil, apperrors.NewDatabaseQueryError(err)
	}
	return app, nil
}

// List returns one page of applications for the admin queue. The filter is
// normalized so every caller gets the same pagination bounds.
func (e *Engine) List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error) {
	apps, total, err := e.apps.List(ctx, filter.Normalized())
	if err != nil {
		return nil, 0, apperrors.NewDatabaseQueryError(err)
	}
	return apps, total, nil
}

// Stats returns the per-type per-status aggregate, served from cache when
// fresh.
func (e *Engine) Stats(ctx context.Context) ([]models.StatusCount, error) {
	if e.statsCache != nil {
		if counts, ok := e.statsCache.Get(ctx); ok {
			return counts, nil
		}
	}
	counts, err := e.apps.Stats(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError(err)
	}
	if e.statsCache != nil {
		e.statsCache.Set(ctx, counts)
	}
	return counts, nil
}

func (e *Engine) invalidateStats(ctx context.Context) {
	if e.statsCache != nil {
		e.statsCache.Invalidate(ctx)
	}
}
