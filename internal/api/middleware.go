// internal/api/middleware.go
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/common/observability"
	"agrimarket-onboarding/internal/models"
)

// AccountDirectory resolves caller identities for authorization checks.
type AccountDirectory interface {
	Get(ctx context.Context, id string) (*models.Account, error)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestMetrics records the count and latency of every request against the
// route template.
func requestMetrics(obs *observability.Observability) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			obs.RecordRequest(r.Context(), route, rec.status)
			obs.RecordRequestDuration(r.Context(), route, time.Since(start))
		})
	}
}

// requestLogging emits one structured line per request.
func requestLogging(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request handled", map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"durationMs": time.Since(start).Milliseconds(),
			})
		})
	}
}

// requireAdmin rejects callers whose account is missing or not an admin.
func requireAdmin(accounts AccountDirectory) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := RequireUserID(w, r)
			if !ok {
				return
			}

			acct, err := accounts.Get(r.Context(), userID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					WriteJSON(w, http.StatusForbidden, errorResponse{Error: errorBody{
						Code:    "FORBIDDEN",
						Message: "Account not recognized",
					}})
					return
				}
				WriteError(w, err)
				return
			}
			if acct.Role != models.RoleAdmin {
				WriteJSON(w, http.StatusForbidden, errorResponse{Error: errorBody{
					Code:    "FORBIDDEN",
					Message: "Administrator access required",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
