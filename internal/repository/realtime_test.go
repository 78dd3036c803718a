package repository

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/database"
)

func TestDecodeNotification(t *testing.T) {
	payload := `{"id":"a1","location_id":"loc-1","client_name":"Ana","professional_id":"p1","service_id":null,` +
		`"start_time":"2024-05-10T15:00:00+00:00","created_at":"2024-05-01T10:00:00.123456+00:00"}`

	tests := []struct {
		name     string
		n        *pgconn.Notification
		location string
		wantOK   bool
		wantErr  bool
	}{
		{"matching location", &pgconn.Notification{Channel: database.AppointmentChannel, Payload: payload}, "loc-1", true, false},
		{"other location", &pgconn.Notification{Channel: database.AppointmentChannel, Payload: payload}, "loc-2", false, false},
		{"other channel", &pgconn.Notification{Channel: "other", Payload: payload}, "loc-1", false, false},
		{"nil", nil, "loc-1", false, false},
		{"malformed", &pgconn.Notification{Channel: database.AppointmentChannel, Payload: "{"}, "loc-1", false, true},
		{"missing id", &pgconn.Notification{Channel: database.AppointmentChannel, Payload: `{"location_id":"loc-1"}`}, "loc-1", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt, ok, err := decodeNotification(tt.n, tt.location)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if appt.ClientName != "Ana" || appt.ProfessionalID == nil || *appt.ProfessionalID != "p1" || appt.ServiceID != nil {
				t.Fatalf("unexpected appointment %+v", appt)
			}
			want := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
			if !appt.StartTime.Equal(want) {
				t.Fatalf("start = %v, want %v", appt.StartTime, want)
			}
		})
	}
}
