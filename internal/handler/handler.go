// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/service"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/settings"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/tenant"
)

// SchedulingHandler holds the HTTP handlers for the scheduling API.
type SchedulingHandler struct {
	svc *service.SchedulingService
}

// NewSchedulingHandler constructs a SchedulingHandler.
func NewSchedulingHandler(svc *service.SchedulingService) *SchedulingHandler {
	return &SchedulingHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// ListLocations handles GET /locations
func (h *SchedulingHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations := h.svc.ListLocations()
	if locations == nil {
		locations = []model.Location{}
	}
	writeJSON(w, http.StatusOK, locations)
}

// GetActiveLocation handles GET /session/location
// Both ids are null until bootstrap has selected a location.
func (h *SchedulingHandler) GetActiveLocation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ActiveLocation())
}

// SelectLocation handles PUT /session/location
func (h *SchedulingHandler) SelectLocation(w http.ResponseWriter, r *http.Request) {
	var req model.SelectLocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	active, err := h.svc.SelectLocation(req)
	if err != nil {
		if errors.Is(err, tenant.ErrUnknownLocation) {
			writeError(w, http.StatusNotFound, "location not found")
			return
		}
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to select location")
		return
	}
	writeJSON(w, http.StatusOK, active)
}

// RefreshSession handles POST /session/refresh
// Asks bootstrap to query the backend again; the result shows up in a later
// GET /session/location.
func (h *SchedulingHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, h.svc.RefreshSession())
}

// CreateAppointment handles POST /appointments
// Books an appointment at the active location.
func (h *SchedulingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAppointmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveLocation) {
			writeError(w, http.StatusConflict, "no active location yet")
			return
		}
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ListAppointments handles GET /appointments?from=...&to=...
// Both bounds are RFC 3339 timestamps.
func (h *SchedulingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveLocation) {
			writeError(w, http.StatusConflict, "no active location yet")
			return
		}
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

// GetNotificationSettings handles GET /settings/notifications
func (h *SchedulingHandler) GetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.NotificationSettings())
}

// UpdateNotificationSettings handles PUT /settings/notifications
func (h *SchedulingHandler) UpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := h.svc.UpdateNotificationSettings(r.Context(), req)
	if err != nil {
		if errors.Is(err, settings.ErrNoOrganization) {
			writeError(w, http.StatusConflict, "settings are not loaded yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
