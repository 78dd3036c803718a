// Package service implements validation and orchestration between the HTTP
// handlers, the tenant state and the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// ErrNoActiveLocation is returned when an operation needs the active
// location before bootstrap has selected one.
var ErrNoActiveLocation = errors.New("no active location selected")

// ErrInvalidInput wraps every validation failure, so callers can tell a bad
// request from a backend failure.
var ErrInvalidInput = errors.New("invalid input")

// maxListRange bounds appointment listings.
const maxListRange = 31 * 24 * time.Hour

// Tenant is the session's organization and location state.
type Tenant interface {
	Locations() []model.Location
	Select(locationID string) error
	Active() (locationID, organizationID string, ok bool)
	// Refresh asks bootstrap to query the backend again.
	Refresh()
}

// AppointmentStore persists appointments.
type AppointmentStore interface {
	Create(ctx context.Context, locationID string, req model.CreateAppointmentRequest) (*model.Appointment, error)
	ListByLocation(ctx context.Context, locationID string, from, to time.Time) ([]model.Appointment, error)
}

// Settings is the notification settings provider.
type Settings interface {
	Current() model.NotificationSettings
	SetVocalNotification(ctx context.Context, enabled bool) (model.NotificationSettings, error)
}

// SchedulingService orchestrates the operations exposed over HTTP.
type SchedulingService struct {
	tenant       Tenant
	appointments AppointmentStore
	settings     Settings
}

// NewSchedulingService constructs a SchedulingService with its dependencies.
func NewSchedulingService(tenant Tenant, appointments AppointmentStore, settings Settings) *SchedulingService {
	return &SchedulingService{tenant: tenant, appointments: appointments, settings: settings}
}

// ListLocations returns the organization's locations.
func (s *SchedulingService) ListLocations() []model.Location {
	s.active()
	return s.tenant.Locations()
}

// ActiveLocation reports the current selection.
func (s *SchedulingService) ActiveLocation() model.ActiveLocationResponse {
	loc, org, ok := s.active()
	if !ok {
		return model.ActiveLocationResponse{}
	}
	return model.ActiveLocationResponse{LocationID: &loc, OrganizationID: &org}
}

// SelectLocation switches the active location.
func (s *SchedulingService) SelectLocation(req model.SelectLocationRequest) (model.ActiveLocationResponse, error) {
	id := strings.TrimSpace(req.LocationID)
	if id == "" {
		return model.ActiveLocationResponse{}, fmt.Errorf("%w: location_id is required", ErrInvalidInput)
	}
	if err := s.tenant.Select(id); err != nil {
		return model.ActiveLocationResponse{}, err
	}
	return s.ActiveLocation(), nil
}

// CreateAppointment validates the request and books it at the active
// location.
func (s *SchedulingService) CreateAppointment(ctx context.Context, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.ClientName == "" {
		return nil, fmt.Errorf("%w: client_name is required", ErrInvalidInput)
	}
	if req.StartTime.IsZero() {
		return nil, fmt.Errorf("%w: start_time is required", ErrInvalidInput)
	}
	req.ProfessionalID = trimRef(req.ProfessionalID)
	req.ServiceID = trimRef(req.ServiceID)

	locationID, _, ok := s.active()
	if !ok {
		return nil, ErrNoActiveLocation
	}
	appt, err := s.appointments.Create(ctx, locationID, req)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns the active location's appointments in [from, to).
func (s *SchedulingService) ListAppointments(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: to must be after from", ErrInvalidInput)
	}
	if to.Sub(from) > maxListRange {
		return nil, fmt.Errorf("%w: range cannot exceed 31 days", ErrInvalidInput)
	}
	locationID, _, ok := s.active()
	if !ok {
		return nil, ErrNoActiveLocation
	}
	appts, err := s.appointments.ListByLocation(ctx, locationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// RefreshSession asks bootstrap to query the backend again and reports the
// selection as it stands now.
func (s *SchedulingService) RefreshSession() model.ActiveLocationResponse {
	s.tenant.Refresh()
	return s.ActiveLocation()
}

// NotificationSettings returns the cached settings of the organization.
func (s *SchedulingService) NotificationSettings() model.NotificationSettings {
	return s.settings.Current()
}

// UpdateNotificationSettings persists the vocal notification toggle.
func (s *SchedulingService) UpdateNotificationSettings(ctx context.Context, req model.UpdateSettingsRequest) (model.NotificationSettings, error) {
	return s.settings.SetVocalNotification(ctx, req.VocalNotificationEnabled)
}

// active returns the current selection. While nothing is selected, every
// call asks bootstrap to retry, so a failed load or create recovers on the
// next request.
func (s *SchedulingService) active() (locationID, organizationID string, ok bool) {
	locationID, organizationID, ok = s.tenant.Active()
	if !ok {
		s.tenant.Refresh()
	}
	return locationID, organizationID, ok
}

// trimRef normalizes an optional reference id: blank means absent.
func trimRef(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}
