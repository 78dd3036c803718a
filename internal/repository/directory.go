package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectoryRepository resolves display names of professionals and services.
type DirectoryRepository struct {
	db *pgxpool.Pool
}

// NewDirectoryRepository constructs a DirectoryRepository.
func NewDirectoryRepository(db *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ProfessionalName returns the professional's display name or ErrNotFound.
func (r *DirectoryRepository) ProfessionalName(ctx context.Context, id string) (string, error) {
	return r.name(ctx, `SELECT name FROM professionals WHERE id = $1`, id)
}

// ServiceName returns the service's display name or ErrNotFound.
func (r *DirectoryRepository) ServiceName(ctx context.Context, id string) (string, error) {
	return r.name(ctx, `SELECT name FROM services WHERE id = $1`, id)
}

func (r *DirectoryRepository) name(ctx context.Context, query, id string) (string, error) {
	var name string
	if err := r.db.QueryRow(ctx, query, id).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup name: %w", err)
	}
	return name, nil
}
