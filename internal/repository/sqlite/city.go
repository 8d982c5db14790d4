package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/model"
	"github.com/lanh/skywatch/internal/repository"
)

// CityDB is the city sub-repository, obtained via DB.Cities.
type CityDB struct {
	conn *sql.DB
}

var _ repository.CityRepository = (*CityDB)(nil)

// GetOrCreate resolves a city by its natural key, creating it on first
// observation.
//
// The insert uses ON CONFLICT DO NOTHING on the natural-key constraint, so
// two requests racing on the same city both land on one row: the loser's
// insert is a no-op and the following select returns the winner's row.
// No check-then-insert window exists. An existing row's timezone is never
// overwritten — first write wins for that field.
func (db *CityDB) GetOrCreate(ctx context.Context, city *model.City) (*model.City, error) {
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO cities (id, name, country_code, latitude, longitude, timezone_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name, country_code, latitude, longitude) DO NOTHING`,
		xid.New().String(),
		city.Name,
		city.CountryCode,
		city.Latitude,
		city.Longitude,
		city.TimezoneName,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting city %q: %w", city.Name, err)
	}

	var got model.City
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, name, country_code, latitude, longitude, timezone_name, created_at, updated_at
		 FROM cities
		 WHERE name = ? AND country_code = ? AND latitude = ? AND longitude = ?`,
		city.Name, city.CountryCode, city.Latitude, city.Longitude,
	).Scan(
		&got.ID,
		&got.Name,
		&got.CountryCode,
		&got.Latitude,
		&got.Longitude,
		&got.TimezoneName,
		&got.CreatedAt,
		&got.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: selecting city %q after upsert: %w", city.Name, err)
	}

	return &got, nil
}

// GetByID retrieves a city by internal ID.
func (db *CityDB) GetByID(ctx context.Context, id string) (*model.City, error) {
	var got model.City

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, country_code, latitude, longitude, timezone_name, created_at, updated_at
		 FROM cities WHERE id = ?`, id,
	).Scan(
		&got.ID,
		&got.Name,
		&got.CountryCode,
		&got.Latitude,
		&got.Longitude,
		&got.TimezoneName,
		&got.CreatedAt,
		&got.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("city", id)
		}
		return nil, fmt.Errorf("sqlite: getting city %s: %w", id, err)
	}

	return &got, nil
}
