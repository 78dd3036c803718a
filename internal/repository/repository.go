// Package repository implements the backend client over PostgreSQL: queries,
// writes and realtime subscriptions for the scheduling core.
// It uses pgx directly (no ORM).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// OrganizationRepository handles persistence for organizations.
type OrganizationRepository struct {
	db *pgxpool.Pool
}

// NewOrganizationRepository constructs an OrganizationRepository.
func NewOrganizationRepository(db *pgxpool.Pool) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByOwner returns the oldest organization owned by ownerID or ErrNotFound.
func (r *OrganizationRepository) GetByOwner(ctx context.Context, ownerID string) (*model.Organization, error) {
	var o model.Organization
	err := r.db.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at
		 FROM organizations
		 WHERE owner_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		ownerID,
	).Scan(&o.ID, &o.Name, &o.OwnerID, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

// Create inserts a new organization for ownerID.
func (r *OrganizationRepository) Create(ctx context.Context, ownerID, name string) (*model.Organization, error) {
	org := &model.Organization{
		ID:        uuid.New().String(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO organizations (id, name, owner_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		org.ID, org.Name, org.OwnerID, org.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	return org, nil
}

// LocationRepository handles persistence for locations.
type LocationRepository struct {
	db *pgxpool.Pool
}

// NewLocationRepository constructs a LocationRepository.
func NewLocationRepository(db *pgxpool.Pool) *LocationRepository {
	return &LocationRepository{db: db}
}

// ListByOrganization returns the organization's locations in retrieval
// order: oldest first.
func (r *LocationRepository) ListByOrganization(ctx context.Context, organizationID string) ([]model.Location, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, organization_id, created_at
		 FROM locations
		 WHERE organization_id = $1
		 ORDER BY created_at ASC, id ASC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.OrganizationID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// Create inserts a new location under organizationID.
func (r *LocationRepository) Create(ctx context.Context, organizationID, name string) (*model.Location, error) {
	loc := &model.Location{
		ID:             uuid.New().String(),
		Name:           name,
		OrganizationID: organizationID,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO locations (id, name, organization_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		loc.ID, loc.Name, loc.OrganizationID, loc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert location: %w", err)
	}
	return loc, nil
}

// TenantStore combines the organization and location repositories into the
// store the bootstrap manager works against.
type TenantStore struct {
	Organizations *OrganizationRepository
	Locations     *LocationRepository
}

// NewTenantStore constructs a TenantStore over one pool.
func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{
		Organizations: NewOrganizationRepository(db),
		Locations:     NewLocationRepository(db),
	}
}

// FindOrganization returns the owner's organization, or nil when the owner
// has none yet.
func (s *TenantStore) FindOrganization(ctx context.Context, ownerID string) (*model.Organization, error) {
	org, err := s.Organizations.GetByOwner(ctx, ownerID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return org, err
}

// CreateOrganization inserts an organization for ownerID.
func (s *TenantStore) CreateOrganization(ctx context.Context, ownerID, name string) (*model.Organization, error) {
	return s.Organizations.Create(ctx, ownerID, name)
}

// ListLocations returns the organization's locations, oldest first.
func (s *TenantStore) ListLocations(ctx context.Context, organizationID string) ([]model.Location, error) {
	return s.Locations.ListByOrganization(ctx, organizationID)
}

// CreateLocation inserts a location under organizationID.
func (s *TenantStore) CreateLocation(ctx context.Context, organizationID, name string) (*model.Location, error) {
	return s.Locations.Create(ctx, organizationID, name)
}
