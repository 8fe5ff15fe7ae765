package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/diagnosis/palms-parking/internal/civiltime"
	"github.com/diagnosis/palms-parking/internal/http/response"
	"github.com/diagnosis/palms-parking/internal/service"
	"github.com/go-chi/chi/v5"
)

const idempotencyTTL = 24 * time.Hour

func (h *SpotHandler) startRental(w http.ResponseWriter, r *http.Request) {
	view, err := h.Dashboard.StartRental(r.Context(), clientID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /spots/{id}/rental/quote {from:{date,time}, to:{date,time}}
func (h *SpotHandler) quoteRental(w http.ResponseWriter, r *http.Request) {
	var in struct {
		From civiltime.Parts `json:"from"`
		To   civiltime.Parts `json:"to"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	view, err := h.Dashboard.QuoteRental(r.Context(), clientID(r), chi.URLParam(r, "id"), in.From, in.To)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /spots/{id}/rental/confirm {name, email, phone, screenshot}
func (h *SpotHandler) confirmRental(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxConfirmBody)

	var contact service.ContactForm
	if err := decodeJSON(r, &contact); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.WriteError(w, http.StatusRequestEntityTooLarge, "Screenshot is too large", response.CodePayloadTooBig)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	confirmed, err := h.Dashboard.ConfirmRental(r.Context(), clientID(r), chi.URLParam(r, "id"), contact)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, confirmed)
}

func (h *SpotHandler) cancelRental(w http.ResponseWriter, r *http.Request) {
	h.Dashboard.CancelRental(r.Context(), clientID(r))
	w.WriteHeader(http.StatusNoContent)
}
