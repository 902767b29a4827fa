package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"travel-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreatePackage inserts a new listing.
func (d *DB) CreatePackage(ctx context.Context, pkg models.TravelPackage) error {
	_, err := d.Bun.NewInsert().Model(&pkg).Exec(ctx)
	return err
}

// GetPackageByID fetches one package; returns sql.ErrNoRows when
// absent so callers can map it to a not-found.
func (d *DB) GetPackageByID(ctx context.Context, id string) (*models.TravelPackage, error) {
	var pkg models.TravelPackage
	err := d.Bun.NewSelect().
		Model(&pkg).
		Where("package_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ListPackages returns all listings, newest first, optionally filtered
// by city.
func (d *DB) ListPackages(ctx context.Context, city string) ([]models.TravelPackage, error) {
	var packages []models.TravelPackage
	q := d.Bun.NewSelect().
		Model(&packages).
		Order("created_at DESC")
	if city != "" {
		q = q.Where("city = ?", city)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if packages == nil {
		packages = []models.TravelPackage{}
	}
	return packages, nil
}

// DeletePackage removes a listing; reports sql.ErrNoRows when nothing
// matched.
func (d *DB) DeletePackage(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.TravelPackage)(nil)).
		Where("package_id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the record was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
