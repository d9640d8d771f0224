// internal/api/httputil.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "agrimarket-onboarding/internal/common/errors"
)

// HeaderUserID carries the authenticated account id resolved by the edge
// gateway. The service trusts it as-is; authentication itself lives upstream.
const HeaderUserID = "X-User-ID"

type errorBody struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    string   `json:"details,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// WriteJSON writes v with the given status. Encoding failures are abandoned;
// the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps an engine error onto its HTTP status and standard body.
func WriteError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)

	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		body := errorBody{
			Code:       string(stdErr.Code),
			Message:    stdErr.Message,
			Violations: stdErr.Violations,
		}
		// Internal details stay out of 5xx responses.
		if status < http.StatusInternalServerError {
			body.Details = stdErr.Details
		}
		WriteJSON(w, status, errorResponse{Error: body})
		return
	}

	WriteJSON(w, status, errorResponse{Error: errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "An internal error occurred",
	}})
}

// BadRequest writes a 400 with a plain message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
		Code:    "BAD_REQUEST",
		Message: message,
	}})
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// RequireUserID extracts the caller identity header, writing a 401 when it is
// absent.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: errorBody{
			Code:    "UNAUTHENTICATED",
			Message: "Missing " + HeaderUserID + " header",
		}})
		return "", false
	}
	return userID, true
}
