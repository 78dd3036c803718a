package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// AppointmentRepository handles persistence for appointments.
type AppointmentRepository struct {
	db *pgxpool.Pool
}

// NewAppointmentRepository constructs an AppointmentRepository.
func NewAppointmentRepository(db *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create inserts an appointment. The insert trigger publishes it on the
// realtime channel.
func (r *AppointmentRepository) Create(ctx context.Context, locationID string, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	appt := &model.Appointment{
		ID:             uuid.New().String(),
		LocationID:     locationID,
		ClientName:     req.ClientName,
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		StartTime:      req.StartTime.UTC(),
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO appointments (id, location_id, client_name, professional_id, service_id, start_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		appt.ID, appt.LocationID, appt.ClientName, appt.ProfessionalID, appt.ServiceID, appt.StartTime, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

// ListByLocation returns the location's appointments starting in [from, to),
// ordered by start time.
func (r *AppointmentRepository) ListByLocation(ctx context.Context, locationID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, location_id, client_name, professional_id, service_id, start_time
		 FROM appointments
		 WHERE location_id = $1 AND start_time >= $2 AND start_time < $3
		 ORDER BY start_time ASC`,
		locationID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.LocationID, &a.ClientName, &a.ProfessionalID, &a.ServiceID, &a.StartTime); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}
