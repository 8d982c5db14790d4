package model

import "time"

// WeatherObservation is a single current-conditions reading for a city.
//
// At most one observation exists per (city, observed_at); refetching the
// same timestamp replaces the row instead of duplicating it. Rows are never
// edited after the fact otherwise.
type WeatherObservation struct {
	ID          string    `json:"id"          db:"id"`
	CityID      string    `json:"cityId"      db:"city_id"`
	ObservedAt  time.Time `json:"observedAt"  db:"observed_at"` // UTC
	Temperature float64   `json:"temperatureC" db:"temperature_c"`
	Humidity    int       `json:"humidityPct" db:"humidity_pct"` // 0-100
	Pressure    int       `json:"pressureHpa" db:"pressure_hpa"`
	WindSpeed   float64   `json:"windSpeedMs" db:"wind_speed_ms"`
	Description string    `json:"description" db:"description"`
	IconCode    string    `json:"iconCode"    db:"icon_code"`
	Source      string    `json:"source"      db:"source"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// DailyForecast is one day's aggregated forecast for a city.
//
// ForecastTime is the representative instant for the day — the calendar
// date at 12:00:00 UTC, regardless of which 3-hour points contributed.
// (city, forecast_time) is unique; re-aggregating the same day upserts.
//
// PrecipProbability is a percentage 0-100, or nil when none of the
// underlying points carried probability-of-precipitation data.
type DailyForecast struct {
	ID                string    `json:"id"           db:"id"`
	CityID            string    `json:"cityId"       db:"city_id"`
	ForecastTime      time.Time `json:"forecastTime" db:"forecast_time"`
	TempMin           float64   `json:"tempMinC"     db:"temp_min_c"`
	TempMax           float64   `json:"tempMaxC"     db:"temp_max_c"`
	PrecipProbability *int      `json:"precipitationProbabilityPct" db:"precipitation_probability_pct"`
	Description       string    `json:"description"  db:"description"`
	IconCode          string    `json:"iconCode"     db:"icon_code"`
	Source            string    `json:"source"       db:"source"`
	CreatedAt         time.Time `json:"createdAt"    db:"created_at"`
}

// SearchHistoryEntry records one weather lookup by an authenticated user.
// Append-only. MatchedCityID is nil when the query never resolved, and is
// set back to NULL by the store if the city row is ever deleted.
type SearchHistoryEntry struct {
	ID            string    `json:"id"            db:"id"`
	UserID        string    `json:"userId"        db:"user_id"`
	Query         string    `json:"query"         db:"query"`
	MatchedCityID *string   `json:"matchedCityId" db:"matched_city_id"`
	SearchedAt    time.Time `json:"searchedAt"    db:"searched_at"`
}

// FavoriteLocation links a user to a saved city. (user, city) is unique.
type FavoriteLocation struct {
	ID      string    `json:"id"      db:"id"`
	UserID  string    `json:"userId"  db:"user_id"`
	CityID  string    `json:"cityId"  db:"city_id"`
	AddedAt time.Time `json:"addedAt" db:"added_at"`
}
