// Package repository declares the storage interfaces consumed by the
// service layer. The sqlite subpackage provides the concrete store.
package repository

import (
	"context"

	"github.com/lanh/skywatch/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByVerificationToken finds the not-yet-verified user holding the
	// given token. Returns ErrNotFound when no such user exists (wrong,
	// already consumed, or reissued token).
	GetByVerificationToken(ctx context.Context, token string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	// Delete removes a user row. Used as the compensating action when the
	// verification email cannot be sent after registration.
	Delete(ctx context.Context, id string) error
}

type CityRepository interface {
	// GetOrCreate resolves a city by its natural key
	// (name, country_code, latitude, longitude), inserting it first if
	// missing. Concurrent calls with the same key collapse onto one row;
	// the timezone of an existing row is left untouched.
	GetOrCreate(ctx context.Context, city *model.City) (*model.City, error)
	GetByID(ctx context.Context, id string) (*model.City, error)
}

type WeatherRepository interface {
	// UpsertObservation writes a current-conditions row keyed by
	// (city_id, observed_at), replacing any previous row for that key.
	UpsertObservation(ctx context.Context, obs *model.WeatherObservation) error
	// UpsertForecast writes a daily forecast keyed by
	// (city_id, forecast_time), replacing any previous row for that key.
	UpsertForecast(ctx context.Context, fc *model.DailyForecast) error
	// ForecastsForCity returns stored daily forecasts ordered by
	// forecast_time ascending.
	ForecastsForCity(ctx context.Context, cityID string) ([]model.DailyForecast, error)
}

type SearchHistoryRepository interface {
	Append(ctx context.Context, entry *model.SearchHistoryEntry) error
	// ListForUser returns the newest entries first, at most limit rows.
	ListForUser(ctx context.Context, userID string, limit int) ([]model.SearchHistoryEntry, error)
}

type FavoriteRepository interface {
	// Add saves a favorite; adding the same city twice is a no-op.
	Add(ctx context.Context, fav *model.FavoriteLocation) error
	ListFavorites(ctx context.Context, userID string) ([]model.FavoriteLocation, error)
	Remove(ctx context.Context, userID, cityID string) error
}
