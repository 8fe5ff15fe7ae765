package handlers

import (
	"context"
	"net/http"

	"github.com/diagnosis/palms-parking/internal/service"
	"github.com/diagnosis/palms-parking/internal/session"
	"github.com/diagnosis/palms-parking/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type AccessHandler struct {
	Dashboard service.DashboardService
	Cookies   Cookies
	// Limit throttles code guesses. Nil lets every attempt through.
	Limit func(http.Handler) http.Handler
}

func NewAccessHandler(dashboard service.DashboardService, cookies Cookies) *AccessHandler {
	return &AccessHandler{Dashboard: dashboard, Cookies: cookies}
}

// Register adds the access routes to r.
func (h *AccessHandler) Register(r chi.Router) {
	r.With(orPassthrough(h.Limit)).Post("/access", h.enterCode)
	r.Get("/session", h.checkSession)
	r.Post("/logout", h.logout)
}

type stateResponse struct {
	State session.State `json:"state"`
}

// POST /access {code}
func (h *AccessHandler) enterCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	id := h.Cookies.ClientID(r)
	if id == "" {
		id = uuid.NewString()
	}
	ctx := context.WithValue(r.Context(), logger.ClientIDKey, id)

	if err := h.Dashboard.EnterCode(ctx, id, in.Code); err != nil {
		writeServiceError(w, r.WithContext(ctx), err)
		return
	}
	if err := h.Cookies.Issue(w, id); err != nil {
		logger.ErrorContext(ctx, "Failed to sign session cookie", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{State: session.StateValid})
}

// GET /session runs the full gate, including the remote version check.
func (h *AccessHandler) checkSession(w http.ResponseWriter, r *http.Request) {
	id := h.Cookies.ClientID(r)
	if id == "" {
		writeJSON(w, http.StatusOK, stateResponse{State: session.StateNoSession})
		return
	}
	ctx := context.WithValue(r.Context(), logger.ClientIDKey, id)

	state, err := h.Dashboard.CheckSession(ctx, id)
	if err != nil {
		writeServiceError(w, r.WithContext(ctx), err)
		return
	}
	if state != session.StateValid {
		h.Cookies.Clear(w)
	}
	writeJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *AccessHandler) logout(w http.ResponseWriter, r *http.Request) {
	if id := h.Cookies.ClientID(r); id != "" {
		ctx := context.WithValue(r.Context(), logger.ClientIDKey, id)
		if err := h.Dashboard.Logout(ctx, id); err != nil {
			writeServiceError(w, r.WithContext(ctx), err)
			return
		}
	}
	h.Cookies.Clear(w)
	writeJSON(w, http.StatusOK, stateResponse{State: session.StateNoSession})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
