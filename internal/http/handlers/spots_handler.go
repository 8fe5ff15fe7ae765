package handlers

import (
	"net/http"

	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/internal/service"
	mw "github.com/diagnosis/palms-parking/pkg/middleware"
	"github.com/go-chi/chi/v5"
)

// maxConfirmBody leaves room for the encoded screenshot plus the JSON around
// it.
const maxConfirmBody = 12 << 20

type SpotHandler struct {
	Dashboard   service.DashboardService
	Cookies     Cookies
	Idempotency func(http.Handler) http.Handler
	Limit       func(http.Handler) http.Handler
}

func NewSpotHandler(dashboard service.DashboardService, cookies Cookies, idem mw.IdempotencyStore) *SpotHandler {
	h := &SpotHandler{Dashboard: dashboard, Cookies: cookies}
	if idem != nil {
		h.Idempotency = mw.IdempotencyMiddleware(idem, idempotencyTTL)
	} else {
		h.Idempotency = orPassthrough(nil)
	}
	return h
}

func (h *SpotHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireSession(h.Dashboard, h.Cookies))

	r.Get("/", h.browse)
	r.Post("/", h.listSpot)
	r.Post("/reload", h.reload)

	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", h.updateSpot)
		r.Delete("/", h.deleteSpot)
		r.With(orPassthrough(h.Limit)).Post("/manage/pin", h.verifyPin)
		r.Delete("/manage", h.cancelManage)

		r.Get("/rental", h.startRental)
		r.Delete("/rental", h.cancelRental)
		r.Post("/rental/quote", h.quoteRental)
		r.With(h.Idempotency).Post("/rental/confirm", h.confirmRental)
	})
	return r
}

// GET /spots?date=&venmo=&size=&floor=&sort=
func (h *SpotHandler) browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := domain.Filters{
		Date:  q.Get("date"),
		Venmo: q.Get("venmo"),
		Size:  q.Get("size"),
		Floor: q.Get("floor"),
	}
	res, err := h.Dashboard.Browse(r.Context(), clientID(r), filters, domain.ParseSortMode(q.Get("sort")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SpotHandler) reload(w http.ResponseWriter, r *http.Request) {
	n, err := h.Dashboard.Reload(r.Context(), clientID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *SpotHandler) listSpot(w http.ResponseWriter, r *http.Request) {
	draft := domain.NewListingDraft()
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	id, err := h.Dashboard.ListSpot(r.Context(), clientID(r), draft)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// POST /spots/{id}/manage/pin {pin}
func (h *SpotHandler) verifyPin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Pin string `json:"pin"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	step, err := h.Dashboard.VerifyPin(r.Context(), clientID(r), chi.URLParam(r, "id"), in.Pin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *SpotHandler) updateSpot(w http.ResponseWriter, r *http.Request) {
	var form domain.SpotForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := h.Dashboard.UpdateSpot(r.Context(), clientID(r), chi.URLParam(r, "id"), form); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *SpotHandler) deleteSpot(w http.ResponseWriter, r *http.Request) {
	if err := h.Dashboard.DeleteSpot(r.Context(), clientID(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *SpotHandler) cancelManage(w http.ResponseWriter, r *http.Request) {
	h.Dashboard.CancelManage(r.Context(), clientID(r))
	w.WriteHeader(http.StatusNoContent)
}
