// Package handlers exposes the dashboard over JSON HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/palms-parking/internal/booking"
	"github.com/diagnosis/palms-parking/internal/http/response"
	"github.com/diagnosis/palms-parking/internal/service"
	"github.com/diagnosis/palms-parking/internal/session"
	"github.com/diagnosis/palms-parking/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// NewAPI assembles the dashboard API, to be mounted under /api.
func NewAPI(access *AccessHandler, spots *SpotHandler) chi.Router {
	r := chi.NewRouter()
	access.Register(r)
	r.Mount("/spots", spots.Routes())
	return r
}

// RequireSession lets a request through only for a client whose cached
// access code is still usable. It puts the client id on the context for
// logging and for the handlers behind it.
func RequireSession(dashboard service.DashboardService, cookies Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := cookies.ClientID(r)
			if clientID == "" {
				response.Unauthorized(w, "Please enter the access code", string(session.StateNoSession))
				return
			}

			ctx := context.WithValue(r.Context(), logger.ClientIDKey, clientID)
			if err := dashboard.Authorize(ctx, clientID); err != nil {
				if errors.Is(err, session.ErrNoSession) {
					cookies.Clear(w)
					response.Unauthorized(w, "Please enter the access code", string(session.StateInvalid))
					return
				}
				logger.ErrorContext(ctx, "Session lookup failed", "error", err)
				response.InternalError(w, "Failed to check session")
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

// clientID reads the id RequireSession stored.
func clientID(r *http.Request) string {
	id, _ := r.Context().Value(logger.ClientIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.WriteJSON(w, statusCode, data)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeServiceError maps dashboard errors onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *service.UserError
	if errors.As(err, &ue) {
		if len(ue.Fields) > 0 {
			response.WriteFieldErrors(w, ue.Message, ue.Fields)
			return
		}
		switch {
		case errors.Is(err, service.ErrAccessDenied):
			response.WriteError(w, http.StatusUnauthorized, ue.Message, response.CodeAccessDenied)
		case errors.Is(err, service.ErrIncorrectPin):
			response.WriteError(w, http.StatusForbidden, ue.Message, response.CodeIncorrectPin)
		case errors.Is(err, service.ErrNotVerified):
			response.WriteError(w, http.StatusConflict, ue.Message, response.CodeNotVerified)
		case errors.Is(err, service.ErrNoWindow), errors.Is(err, service.ErrUnavailable), errors.Is(err, service.ErrBusy):
			response.Conflict(w, ue.Message)
		case errors.Is(err, service.ErrSpotNotFound):
			response.NotFound(w, ue.Message)
		case errors.Is(err, service.ErrRemote):
			logger.WarnContext(r.Context(), "Remote system refused request", "error", ue.Message)
			response.BadGateway(w, ue.Message)
		default:
			response.BadRequest(w, ue.Message)
		}
		return
	}

	var we *booking.WindowError
	if errors.As(err, &we) {
		response.WriteErrorWithDetails(w, http.StatusBadRequest, we.Message, response.CodeInvalidWindow, we.Code)
		return
	}

	if errors.Is(err, session.ErrNoSession) {
		response.Unauthorized(w, "Please enter the access code", string(session.StateNoSession))
		return
	}

	logger.ErrorContext(r.Context(), "Request failed", "error", err)
	response.InternalError(w, "Something went wrong")
}
