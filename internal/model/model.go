// Package model defines the core domain types for the scheduling system.
package model

import "time"

// Organization is the top-level tenant record owned by a user.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a schedulable site under an organization. Appointments are
// scoped to a location.
type Location struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Appointment is a newly created scheduling event as delivered by the
// realtime feed. ProfessionalID and ServiceID are optional references.
type Appointment struct {
	ID             string    `json:"id"`
	LocationID     string    `json:"location_id"`
	ClientName     string    `json:"client_name"`
	ProfessionalID *string   `json:"professional_id"`
	ServiceID      *string   `json:"service_id"`
	StartTime      time.Time `json:"start_time"`
}

// NotificationSettings holds the per-organization notification toggles.
type NotificationSettings struct {
	OrganizationID           string `json:"organization_id"`
	VocalNotificationEnabled bool   `json:"vocal_notification_enabled"`
}

// CreateAppointmentRequest is the payload for booking a new appointment.
type CreateAppointmentRequest struct {
	ClientName     string    `json:"client_name"`
	ProfessionalID *string   `json:"professional_id,omitempty"`
	ServiceID      *string   `json:"service_id,omitempty"`
	StartTime      time.Time `json:"start_time"`
}

// SelectLocationRequest switches the active location of the session.
type SelectLocationRequest struct {
	LocationID string `json:"location_id"`
}

// UpdateSettingsRequest toggles vocal notifications.
type UpdateSettingsRequest struct {
	VocalNotificationEnabled bool `json:"vocal_notification_enabled"`
}

// ActiveLocationResponse reports the current selection. LocationID is empty
// until bootstrap completes.
type ActiveLocationResponse struct {
	LocationID     *string `json:"location_id"`
	OrganizationID *string `json:"organization_id"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
