package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// SettingsRepository handles persistence for notification settings.
type SettingsRepository struct {
	db *pgxpool.Pool
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the organization's settings. An organization without a stored
// row gets the defaults: everything disabled.
func (r *SettingsRepository) Get(ctx context.Context, organizationID string) (model.NotificationSettings, error) {
	settings := model.NotificationSettings{OrganizationID: organizationID}
	err := r.db.QueryRow(ctx,
		`SELECT vocal_notification_enabled
		 FROM notification_settings
		 WHERE organization_id = $1`,
		organizationID,
	).Scan(&settings.VocalNotificationEnabled)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return settings, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// Upsert stores the organization's settings.
func (r *SettingsRepository) Upsert(ctx context.Context, settings model.NotificationSettings) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_settings (organization_id, vocal_notification_enabled, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (organization_id)
		 DO UPDATE SET vocal_notification_enabled = EXCLUDED.vocal_notification_enabled,
		               updated_at = now()`,
		settings.OrganizationID, settings.VocalNotificationEnabled,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
