package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/localli/booking/libs/httpx"
	"github.com/localli/booking/services/booking-service/internal/identity"
	"github.com/localli/booking/services/booking-service/internal/model"
	"github.com/localli/booking/services/booking-service/internal/reservation"
)

type AppointmentHandler struct {
	svc    *reservation.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *reservation.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

// Register mounts the booking API on mux. bookMiddleware wraps only
// POST /appointments.
func (h *AppointmentHandler) Register(mux *http.ServeMux, bookMiddleware ...httpx.Middleware) {
	mux.HandleFunc("GET /businesses/{id}/slots", h.Slots)
	mux.Handle("POST /appointments", httpx.Chain(http.HandlerFunc(h.Book), bookMiddleware...))
	mux.HandleFunc("GET /appointments/my", h.ListMine)
	mux.HandleFunc("GET /appointments/business/{id}", h.ListForBusiness)
	mux.HandleFunc("GET /appointments/owner/all", h.ListForOwner)
	mux.HandleFunc("PUT /appointments/{id}", h.Reschedule)
	mux.HandleFunc("DELETE /appointments/{id}", h.Cancel)
	mux.HandleFunc("POST /appointments/{id}/confirm", h.Confirm)
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		httpx.WriteError(w, http.StatusBadRequest, "date query parameter is required (YYYY-MM-DD)")
		return
	}
	slots, err := h.svc.Availability(r.Context(), r.PathValue("id"), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req reservation.BookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	appt, err := h.svc.Book(r.Context(), actor, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.logger.Info("appointment booked",
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"appointment_id", appt.ID,
		"business_id", appt.BusinessID,
		"date", appt.Date,
		"slot", appt.Slot,
	)
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req reservation.RescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Confirm(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appts, err := h.svc.ListMine(r.Context(), actor)
	h.writeList(w, r, appts, err)
}

func (h *AppointmentHandler) ListForBusiness(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appts, err := h.svc.ListForBusiness(r.Context(), actor, r.PathValue("id"))
	h.writeList(w, r, appts, err)
}

func (h *AppointmentHandler) ListForOwner(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appts, err := h.svc.ListForOwner(r.Context(), actor)
	h.writeList(w, r, appts, err)
}

func (h *AppointmentHandler) writeList(w http.ResponseWriter, r *http.Request, appts []model.Appointment, err error) {
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, appts)
}

func (h *AppointmentHandler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "authentication required")
		return model.Actor{}, false
	}
	return actor, true
}

func (h *AppointmentHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, status, "internal error")
		return
	}
	httpx.WriteError(w, status, err.Error())
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
