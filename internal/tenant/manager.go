// Package tenant bootstraps the organization and default location of a
// session and publishes the active location.
//
// The Manager is re-entrant: Evaluate may be called any number of times,
// from any goroutine, while creation requests are still pending. Each
// creation kind carries its own request state, and a second request of a
// kind is never issued while the first is in flight.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/logging"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// ErrUnknownLocation is returned when selecting a location that is not part
// of the session's organization.
var ErrUnknownLocation = errors.New("location does not belong to the organization")

// ErrStopped is returned by Evaluate once Run has returned.
var ErrStopped = errors.New("tenant manager stopped")

// Store is the backend surface the manager needs.
type Store interface {
	// FindOrganization returns nil without error when the owner has none.
	FindOrganization(ctx context.Context, ownerID string) (*model.Organization, error)
	CreateOrganization(ctx context.Context, ownerID, name string) (*model.Organization, error)
	// ListLocations returns locations in retrieval order.
	ListLocations(ctx context.Context, organizationID string) ([]model.Location, error)
	CreateLocation(ctx context.Context, organizationID, name string) (*model.Location, error)
}

// Session reports the authenticated user, if any.
type Session interface {
	UserID(ctx context.Context) (string, bool)
}

// StaticSession is a Session for a fixed user id. The empty string means no
// authenticated user.
type StaticSession string

// UserID implements Session.
func (s StaticSession) UserID(context.Context) (string, bool) {
	return string(s), s != ""
}

// RequestState tracks one kind of creation request.
type RequestState int

const (
	RequestIdle RequestState = iota
	RequestInFlight
	RequestSettled
)

func (s RequestState) String() string {
	switch s {
	case RequestIdle:
		return "idle"
	case RequestInFlight:
		return "in_flight"
	case RequestSettled:
		return "settled"
	default:
		return fmt.Sprintf("RequestState(%d)", int(s))
	}
}

// ErrorFunc receives backend failures. kind is "organization" or "location"
// for creations and "load" for queries.
type ErrorFunc func(kind string, err error)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.Component(logger, "tenant") }
}

// WithDefaultNames overrides the names used for lazily created records.
func WithDefaultNames(organization, location string) Option {
	return func(m *Manager) {
		if organization != "" {
			m.organizationName = organization
		}
		if location != "" {
			m.locationName = location
		}
	}
}

// WithErrorFunc routes backend failures to fn instead of the log.
func WithErrorFunc(fn ErrorFunc) Option {
	return func(m *Manager) { m.onError = fn }
}

// Manager guarantees that the session's user ends up with exactly one
// organization and at least one location, and keeps the active location
// selected.
type Manager struct {
	store            Store
	session          Session
	logger           *slog.Logger
	onError          ErrorFunc
	organizationName string
	locationName     string
	selection        *Selection
	trigger          chan struct{}
	pending          sync.WaitGroup

	mu        sync.Mutex
	orgLoaded bool
	org       *model.Organization
	locLoaded bool
	locations []model.Location
	orgReq    RequestState
	locReq    RequestState
	stopped   bool
}

// NewManager constructs a Manager.
func NewManager(store Store, session Session, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		session:          session,
		logger:           logging.Discard(),
		organizationName: "Minha Empresa",
		locationName:     "Barbearia Principal",
		selection:        newSelection(),
		trigger:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.onError == nil {
		m.onError = func(kind string, err error) {
			m.logger.Error("backend request failed", "kind", kind, "error", err)
		}
	}
	return m
}

// Selection returns the active-location state published by the manager.
func (m *Manager) Selection() *Selection {
	return m.selection
}

// Run evaluates once, then re-evaluates on every Trigger until ctx is done.
// The selection is cleared when Run returns.
func (m *Manager) Run(ctx context.Context) error {
	defer m.selection.clear()
	m.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.stopped = true
			m.mu.Unlock()
			m.pending.Wait()
			return nil
		case <-m.trigger:
			m.evaluate(ctx)
		}
	}
}

// Trigger asks Run for another evaluation. It never blocks; triggers that
// arrive while one is pending are merged.
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Refresh forgets a missing organization or an empty location list so the
// next evaluation queries the backend again, and triggers that evaluation.
// It is how a failed load or create gets retried. Known records are kept.
func (m *Manager) Refresh() {
	m.mu.Lock()
	if m.org == nil && m.orgReq != RequestInFlight {
		m.orgLoaded = false
	}
	if len(m.locations) == 0 && m.locReq != RequestInFlight {
		m.locLoaded = false
	}
	m.mu.Unlock()
	m.Trigger()
}

// Wait blocks until every creation request issued so far has settled.
func (m *Manager) Wait() {
	m.pending.Wait()
}

func (m *Manager) evaluate(ctx context.Context) {
	if err := m.Evaluate(ctx); err != nil {
		m.onError("load", err)
	}
}

// Evaluate performs one bootstrap step: load what is missing, then issue at
// most one creation or select the first location. Creation requests run in
// the background; their completion triggers the next evaluation. After Run
// has returned, Evaluate does nothing and returns ErrStopped.
func (m *Manager) Evaluate(ctx context.Context) error {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	userID, ok := m.session.UserID(ctx)
	if !ok {
		return nil
	}
	if err := m.load(ctx, userID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.orgLoaded && m.org == nil {
		if m.orgReq != RequestInFlight {
			m.orgReq = RequestInFlight
			m.pending.Add(1)
			go m.createOrganization(ctx, userID)
		}
		return nil
	}
	if m.org == nil || !m.locLoaded {
		return nil
	}
	if len(m.locations) == 0 {
		if m.locReq != RequestInFlight {
			m.locReq = RequestInFlight
			m.pending.Add(1)
			go m.createLocation(ctx, m.org.ID)
		}
		return nil
	}
	if m.selection.LocationID() == "" {
		m.selection.set(m.locations[0].ID, m.org.ID)
		m.logger.Info("active location selected", "location_id", m.locations[0].ID, "organization_id", m.org.ID)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, userID string) error {
	m.mu.Lock()
	needOrg := !m.orgLoaded
	m.mu.Unlock()
	if needOrg {
		org, err := m.store.FindOrganization(ctx, userID)
		if err != nil {
			return fmt.Errorf("load organization: %w", err)
		}
		m.mu.Lock()
		if !m.orgLoaded {
			m.orgLoaded = true
			m.org = org
			m.locLoaded = false
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	org := m.org
	needLocations := org != nil && !m.locLoaded && m.locReq != RequestInFlight
	m.mu.Unlock()
	if !needLocations {
		return nil
	}
	locations, err := m.store.ListLocations(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}
	m.mu.Lock()
	if m.org != nil && m.org.ID == org.ID && !m.locLoaded {
		m.locLoaded = true
		m.locations = locations
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) createOrganization(ctx context.Context, userID string) {
	defer m.pending.Done()
	org, err := m.store.CreateOrganization(ctx, userID, m.organizationName)

	m.mu.Lock()
	m.orgReq = RequestSettled
	if err == nil {
		m.org = org
		m.orgLoaded = true
		m.locLoaded = false
		m.locations = nil
	}
	m.mu.Unlock()

	if err != nil {
		m.onError("organization", err)
		return
	}
	m.logger.Info("organization created", "organization_id", org.ID)
	m.Trigger()
}

func (m *Manager) createLocation(ctx context.Context, organizationID string) {
	defer m.pending.Done()
	loc, err := m.store.CreateLocation(ctx, organizationID, m.locationName)

	m.mu.Lock()
	m.locReq = RequestSettled
	if err == nil && m.org != nil && m.org.ID == organizationID {
		m.locations = append(m.locations, *loc)
		m.locLoaded = true
	}
	m.mu.Unlock()

	if err != nil {
		m.onError("location", err)
		return
	}
	m.logger.Info("default location created", "location_id", loc.ID, "organization_id", organizationID)
	m.Trigger()
}

// Active returns the active location and organization ids.
func (m *Manager) Active() (locationID, organizationID string, ok bool) {
	return m.selection.Current()
}

// RequestStates reports the organization and location request states.
func (m *Manager) RequestStates() (organization, location RequestState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orgReq, m.locReq
}

// Organization returns the loaded organization, or nil.
func (m *Manager) Organization() *model.Organization {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.org == nil {
		return nil
	}
	org := *m.org
	return &org
}

// Locations returns a copy of the loaded locations in retrieval order.
func (m *Manager) Locations() []model.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Location(nil), m.locations...)
}

// Select makes locationID the active location. It must be one of the loaded
// locations.
func (m *Manager) Select(locationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.org == nil {
		return ErrUnknownLocation
	}
	for _, loc := range m.locations {
		if loc.ID == locationID {
			m.selection.set(loc.ID, m.org.ID)
			m.logger.Info("active location switched", "location_id", loc.ID)
			return nil
		}
	}
	return ErrUnknownLocation
}
