package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/database"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/logging"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// Realtime opens LISTEN subscriptions on the appointment insert channel.
// A Subscription stops when its connection fails; Done reports that so the
// caller can subscribe again. Consumers treat delivery as at-least-once.
type Realtime struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewRealtime constructs a Realtime.
func NewRealtime(db *pgxpool.Pool, logger *slog.Logger) *Realtime {
	return &Realtime{db: db, logger: logging.Component(logger, "realtime")}
}

// Subscription is an open LISTEN session holding one pool connection.
type Subscription struct {
	conn       *pgxpool.Conn
	locationID string
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

// Subscribe starts delivering appointments inserted for locationID to
// onInsert. onInsert runs on the subscription's goroutine, one row at a time.
func (r *Realtime) Subscribe(ctx context.Context, locationID string, onInsert func(model.Appointment)) (*Subscription, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{database.AppointmentChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", database.AppointmentChannel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		conn:       conn,
		locationID: locationID,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     r.logger.With("location_id", locationID),
	}
	go sub.loop(listenCtx, onInsert)
	sub.logger.Debug("subscribed")
	return sub, nil
}

func (s *Subscription) loop(ctx context.Context, onInsert func(model.Appointment)) {
	defer close(s.done)
	for {
		n, err := s.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("wait for notification", "error", err)
			}
			return
		}
		appt, ok, err := decodeNotification(n, s.locationID)
		if err != nil {
			s.logger.Warn("discarding malformed notification", "error", err)
			continue
		}
		if ok {
			onInsert(appt)
		}
	}
}

// Done is closed when the listener goroutine exits, either after Close or
// because the connection failed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery and releases the connection. It blocks until the
// listener goroutine has exited, so no callback runs after Close returns.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, uerr := s.conn.Exec(ctx, "UNLISTEN *"); uerr != nil {
			// A connection interrupted mid-wait cannot be trusted for reuse.
			_ = s.conn.Conn().Close(ctx)
			err = fmt.Errorf("unlisten: %w", uerr)
		}
		s.conn.Release()
		s.logger.Debug("unsubscribed")
	})
	return err
}

// decodeNotification parses a row_to_json payload. ok is false when the row
// belongs to another location or the notification is for another channel.
func decodeNotification(n *pgconn.Notification, locationID string) (model.Appointment, bool, error) {
	if n == nil || n.Channel != database.AppointmentChannel {
		return model.Appointment{}, false, nil
	}
	var appt model.Appointment
	if err := json.Unmarshal([]byte(n.Payload), &appt); err != nil {
		return model.Appointment{}, false, fmt.Errorf("decode appointment payload: %w", err)
	}
	if appt.ID == "" {
		return model.Appointment{}, false, errors.New("appointment payload without id")
	}
	return appt, appt.LocationID == locationID, nil
}
