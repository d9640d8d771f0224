// Package errors provides the standardized error kinds surfaced by the
// review engine and mapped onto HTTP statuses at the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrCodeTermsNotAccepted       ErrorCode = "TERMS_NOT_ACCEPTED"
	ErrCodeMissingDocuments       ErrorCode = "MISSING_DOCUMENTS"
	ErrCodeActiveApplication      ErrorCode = "ACTIVE_APPLICATION_EXISTS"
	ErrCodeNotReviewable          ErrorCode = "APPLICATION_NOT_REVIEWABLE"
	ErrCodeApplicationNotFound    ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeAccountNotFound        ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeDatabaseWriteFailed    ErrorCode = "DATABASE_WRITE_FAILED"
	ErrCodeDatabaseQueryFailed    ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDispatchFailed         ErrorCode = "DISPATCH_FAILED"
	ErrCodeInvalidDecision        ErrorCode = "INVALID_DECISION"
	ErrCodeUnknownApplicationType ErrorCode = "UNKNOWN_APPLICATION_TYPE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Violations []string  `json:"violations,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Kinds
// ==========================

// Kind classifies an error for transport mapping. Validation, conflict and
// not-found are terminal to the triggering request and never retried.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
)

var kindByCode = map[ErrorCode]Kind{
	ErrCodeValidationFailed:       KindValidation,
	ErrCodeTermsNotAccepted:       KindValidation,
	ErrCodeMissingDocuments:       KindValidation,
	ErrCodeInvalidDecision:        KindValidation,
	ErrCodeUnknownApplicationType: KindValidation,
	ErrCodeActiveApplication:      KindConflict,
	ErrCodeNotReviewable:          KindConflict,
	ErrCodeApplicationNotFound:    KindNotFound,
	ErrCodeAccountNotFound:        KindNotFound,
}

// KindOf returns the kind of err, or KindInternal for unrecognized errors.
func KindOf(err error) Kind {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		if kind, ok := kindByCode[stdErr.Code]; ok {
			return kind
		}
	}
	return KindInternal
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError creates a validation error listing every violation
// found, not just the first.
func NewValidationError(message string, violations []string) *StandardError {
	return &StandardError{
		Code:       ErrCodeValidationFailed,
		Message:    message,
		Violations: violations,
		Timestamp:  time.Now().UTC(),
	}
}

// NewTermsNotAcceptedError creates the terms-agreement validation error.
func NewTermsNotAcceptedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeTermsNotAccepted,
		Message:   "You must agree to the terms and conditions",
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingDocumentsError creates a validation error enumerating the
// required document types absent from the submission.
func NewMissingDocumentsError(missing []string) *StandardError {
	return &StandardError{
		Code:       ErrCodeMissingDocuments,
		Message:    "Required documents are missing",
		Violations: missing,
		Timestamp:  time.Now().UTC(),
	}
}

// NewActiveApplicationError creates the single-active-application conflict.
func NewActiveApplicationError(applicantID, applicationType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeActiveApplication,
		Message:   "You already have an active application",
		Details:   fmt.Sprintf("applicantId: %s, type: %s", applicantID, applicationType),
		Timestamp: time.Now().UTC(),
	}
}

// NewNotReviewableError creates the conflict returned when a decision is not
// permitted from the application's current status.
func NewNotReviewableError(applicationID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotReviewable,
		Message:   "Application is not in a reviewable state",
		Details:   fmt.Sprintf("applicationId: %s, status: %s", applicationID, status),
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationNotFoundError creates a not-found error for an unknown id.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Timestamp: time.Now().UTC(),
	}
}

// NewAccountNotFoundError creates a not-found error for an unknown account.
func NewAccountNotFoundError(accountID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAccountNotFound,
		Message:   "Account not found",
		Details:   fmt.Sprintf("accountId: %s", accountID),
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidDecisionError creates a validation error for an unsupported
// review decision value.
func NewInvalidDecisionError(decision string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidDecision,
		Message:   "Invalid review decision",
		Details:   fmt.Sprintf("decision: %s", decision),
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownApplicationTypeError creates a validation error for a type with
// no registered rule set.
func NewUnknownApplicationTypeError(applicationType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownApplicationType,
		Message:   "Unknown application type",
		Details:   fmt.Sprintf("type: %s", applicationType),
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseWriteError wraps a persistence failure during the primary write.
func NewDatabaseWriteError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseWriteFailed,
		Message:   "Database write operation failed",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseQueryError wraps a persistence failure during a read.
func NewDatabaseQueryError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}
