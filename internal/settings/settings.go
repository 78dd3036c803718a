// Package settings exposes the notification toggles of the active
// organization. Values load asynchronously; until they do, every toggle
// reads as disabled.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/logging"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// ErrNoOrganization is returned by Set before an organization is known.
var ErrNoOrganization = errors.New("no organization loaded")

// Store persists notification settings.
type Store interface {
	Get(ctx context.Context, organizationID string) (model.NotificationSettings, error)
	Upsert(ctx context.Context, settings model.NotificationSettings) error
}

// Provider caches the settings of one organization.
type Provider struct {
	store  Store
	logger *slog.Logger

	mu       sync.RWMutex
	loaded   bool
	settings model.NotificationSettings
}

// NewProvider constructs a Provider. Nothing is loaded until Load is called.
func NewProvider(store Store, logger *slog.Logger) *Provider {
	return &Provider{store: store, logger: logging.Component(logger, "settings")}
}

// VocalNotificationEnabled reports the vocal notification toggle. It is
// false until settings have loaded.
func (p *Provider) VocalNotificationEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded && p.settings.VocalNotificationEnabled
}

// Loaded reports whether settings have been read from the store.
func (p *Provider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Current returns the cached settings.
func (p *Provider) Current() model.NotificationSettings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// Load reads the organization's settings, replacing whatever was cached.
func (p *Provider) Load(ctx context.Context, organizationID string) error {
	settings, err := p.store.Get(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	p.mu.Lock()
	p.settings = settings
	p.loaded = true
	p.mu.Unlock()
	p.logger.Debug("settings loaded", "organization_id", organizationID,
		"vocal_notification_enabled", settings.VocalNotificationEnabled)
	return nil
}

// Reset forgets the cached settings, e.g. when the organization changes.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	p.settings = model.NotificationSettings{}
}

// SetVocalNotification persists the toggle for the loaded organization.
func (p *Provider) SetVocalNotification(ctx context.Context, enabled bool) (model.NotificationSettings, error) {
	p.mu.RLock()
	settings := p.settings
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded || settings.OrganizationID == "" {
		return model.NotificationSettings{}, ErrNoOrganization
	}
	settings.VocalNotificationEnabled = enabled
	if err := p.store.Upsert(ctx, settings); err != nil {
		return model.NotificationSettings{}, fmt.Errorf("save settings: %w", err)
	}
	p.mu.Lock()
	if p.settings.OrganizationID == settings.OrganizationID {
		p.settings = settings
	}
	p.mu.Unlock()
	return settings, nil
}

// Selection is the active-location state Follow tracks.
type Selection interface {
	Watch() (<-chan string, func())
	Current() (locationID, organizationID string, ok bool)
}

// Follow reloads settings whenever the organization behind the active
// location changes, until ctx is done.
func (p *Provider) Follow(ctx context.Context, sel Selection) {
	changes, stop := sel.Watch()
	defer stop()
	var current string
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			_, org, _ := sel.Current()
			if org == current {
				continue
			}
			current = org
			p.Reset()
			if org == "" {
				continue
			}
			if err := p.Load(ctx, org); err != nil {
				p.logger.Error("settings load failed", "organization_id", org, "error", err)
			}
		}
	}
}
