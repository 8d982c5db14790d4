package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/lanh/skywatch/internal/model"
	"github.com/lanh/skywatch/internal/repository"
)

// WeatherDB stores observations and daily forecasts, obtained via
// DB.Weather.
type WeatherDB struct {
	conn *sql.DB
}

var _ repository.WeatherRepository = (*WeatherDB)(nil)

// UpsertObservation writes one current-conditions row keyed by
// (city_id, observed_at). A refetch at the same timestamp replaces the
// measured values in place; it never produces a second row for the key.
func (db *WeatherDB) UpsertObservation(ctx context.Context, obs *model.WeatherObservation) error {
	if obs.ID == "" {
		obs.ID = xid.New().String()
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO weather_observations (id, city_id, observed_at, temperature_c,
			humidity_pct, pressure_hpa, wind_speed_ms, description, icon_code, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (city_id, observed_at) DO UPDATE SET
			temperature_c = excluded.temperature_c,
			humidity_pct  = excluded.humidity_pct,
			pressure_hpa  = excluded.pressure_hpa,
			wind_speed_ms = excluded.wind_speed_ms,
			description   = excluded.description,
			icon_code     = excluded.icon_code,
			source        = excluded.source`,
		obs.ID,
		obs.CityID,
		obs.ObservedAt.UTC(),
		obs.Temperature,
		obs.Humidity,
		obs.Pressure,
		obs.WindSpeed,
		obs.Description,
		obs.IconCode,
		obs.Source,
		obs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting observation for city %s: %w", obs.CityID, err)
	}

	return nil
}

// UpsertForecast writes one daily forecast keyed by
// (city_id, forecast_time). Re-aggregating the same day overwrites the
// previous summary — last write wins, which is all concurrent writers of
// identical provider data need.
func (db *WeatherDB) UpsertForecast(ctx context.Context, fc *model.DailyForecast) error {
	if fc.ID == "" {
		fc.ID = xid.New().String()
	}
	if fc.CreatedAt.IsZero() {
		fc.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO daily_forecasts (id, city_id, forecast_time, temp_min_c, temp_max_c,
			precipitation_probability_pct, description, icon_code, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (city_id, forecast_time) DO UPDATE SET
			temp_min_c = excluded.temp_min_c,
			temp_max_c = excluded.temp_max_c,
			precipitation_probability_pct = excluded.precipitation_probability_pct,
			description = excluded.description,
			icon_code   = excluded.icon_code,
			source      = excluded.source`,
		fc.ID,
		fc.CityID,
		fc.ForecastTime.UTC(),
		fc.TempMin,
		fc.TempMax,
		nullableInt(fc.PrecipProbability),
		fc.Description,
		fc.IconCode,
		fc.Source,
		fc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting forecast for city %s: %w", fc.CityID, err)
	}

	return nil
}

// ForecastsForCity returns the stored daily forecasts for a city, ordered
// by forecast_time ascending.
func (db *WeatherDB) ForecastsForCity(ctx context.Context, cityID string) ([]model.DailyForecast, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, city_id, forecast_time, temp_min_c, temp_max_c,
			precipitation_probability_pct, description, icon_code, source, created_at
		 FROM daily_forecasts
		 WHERE city_id = ?
		 ORDER BY forecast_time ASC`,
		cityID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing forecasts for city %s: %w", cityID, err)
	}
	defer rows.Close()

	var forecasts []model.DailyForecast
	for rows.Next() {
		var (
			fc  model.DailyForecast
			pop sql.NullInt64
		)
		if err := rows.Scan(
			&fc.ID,
			&fc.CityID,
			&fc.ForecastTime,
			&fc.TempMin,
			&fc.TempMax,
			&pop,
			&fc.Description,
			&fc.IconCode,
			&fc.Source,
			&fc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning forecast row: %w", err)
		}
		if pop.Valid {
			v := int(pop.Int64)
			fc.PrecipProbability = &v
		}
		forecasts = append(forecasts, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating forecast rows: %w", err)
	}

	return forecasts, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
