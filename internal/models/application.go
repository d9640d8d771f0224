// internal/models/application.go
package models

import (
	"errors"
	"time"
)

// ApplicationType identifies the marketplace role being applied for.
type ApplicationType string

const (
	TypeFarmer        ApplicationType = "farmer"
	TypeDeliveryAgent ApplicationType = "delivery_agent"
)

// ApplicationStatus is the lifecycle state of one application version.
type ApplicationStatus string

const (
	StatusDraft       ApplicationStatus = "draft"
	StatusPending     ApplicationStatus = "pending"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusApproved    ApplicationStatus = "approved"
	StatusRejected    ApplicationStatus = "rejected"
	StatusSuspended   ApplicationStatus = "suspended"

	// StatusNotSubmitted is the sentinel returned by status queries when the
	// applicant has never submitted for the type. It is never persisted.
	StatusNotSubmitted ApplicationStatus = "not_submitted"
)

// ActiveStatuses are the statuses counted against the
// single-active-application invariant.
var ActiveStatuses = []ApplicationStatus{StatusPending, StatusUnderReview, StatusApproved}

// Sentinel errors shared between the engine and its stores.
var (
	ErrNotFound                   = errors.New("record not found")
	ErrDuplicateActiveApplication = errors.New("active application already exists")
)

// Document is an individually reviewable file reference attached to an
// application. Documents are appended at submission and never removed; only
// the review fields mutate afterwards.
type Document struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	FileName   string     `json:"fileName"`
	URI        string     `json:"uri"`
	Remarks    string     `json:"remarks,omitempty"`
	Approved   *bool      `json:"approved,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
}

// AdminReview is the administrator's decision record. It is overwritten on
// each decision, not versioned independently of the application.
type AdminReview struct {
	AdminID           string     `json:"adminId"`
	ReviewedAt        *time.Time `json:"reviewedAt,omitempty"`
	Remarks           string     `json:"remarks,omitempty"`
	RejectionReason   string     `json:"rejectionReason,omitempty"`
	SuspensionReason  string     `json:"suspensionReason,omitempty"`
	ApprovedDocuments []string   `json:"approvedDocuments,omitempty"`
	RejectedDocuments []string   `json:"rejectedDocuments,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// Application is the versioned record of one applicant's attempt to acquire
// one marketplace role.
type Application struct {
	ID          string                 `json:"id"`
	ApplicantID string                 `json:"applicantId"`
	Type        ApplicationType        `json:"applicationType"`
	Status      ApplicationStatus      `json:"status"`
	Version     int                    `json:"version"`
	Profile     map[string]interface{} `json:"profile"`
	Documents   []Document             `json:"documents"`
	Review      *AdminReview           `json:"adminReview,omitempty"`
	SubmittedAt time.Time              `json:"submittedAt"`
	ReviewedAt  *time.Time             `json:"reviewedAt,omitempty"`
	ApprovedAt  *time.Time             `json:"approvedAt,omitempty"`
	RejectedAt  *time.Time             `json:"rejectedAt,omitempty"`
	SuspendedAt *time.Time             `json:"suspendedAt,omitempty"`
	IsActive    bool                   `json:"isActive"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// IsReviewable reports whether an approve/reject decision is permitted from
// the current status.
func (a *Application) IsReviewable() bool {
	return a.Status == StatusPending || a.Status == StatusUnderReview
}

// DisplayName returns the type-specific name field used for admin search
// (farm name for farmers, business name for delivery agents).
func (a *Application) DisplayName() string {
	var keys []string
	switch a.Type {
	case TypeFarmer:
		keys = []string{"farmName"}
	case TypeDeliveryAgent:
		keys = []string{"businessName"}
	}
	for _, k := range keys {
		if v, ok := a.Profile[k].(string); ok {
			return v
		}
	}
	return ""
}

// FindDocument locates a document by its stable id.
func (a *Application) FindDocument(id string) *Document {
	for i := range a.Documents {
		if a.Documents[i].ID == id {
			return &a.Documents[i]
		}
	}
	return nil
}

// FindDocumentByTypeOrName is the fallback match for document decisions whose
// id does not resolve (tolerating client-side id drift).
func (a *Application) FindDocumentByTypeOrName(docType, fileName string) *Document {
	for i := range a.Documents {
		if docType != "" && a.Documents[i].Type == docType {
			return &a.Documents[i]
		}
		if fileName != "" && a.Documents[i].FileName == fileName {
			return &a.Documents[i]
		}
	}
	return nil
}

// ApplicationFilter narrows admin listings.
type ApplicationFilter struct {
	Status string
	Type   string
	Search string
	Page   int
	Limit  int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Normalized returns a copy of the filter with page and limit clamped to the
// bounds shared by every listing caller, so the reported pagination always
// matches the rows actually fetched.
func (f ApplicationFilter) Normalized() ApplicationFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

// StatusCount is one aggregate bucket of the stats query.
type StatusCount struct {
	Type   ApplicationType   `json:"applicationType"`
	Status ApplicationStatus `json:"status"`
	Count  int               `json:"count"`
}
