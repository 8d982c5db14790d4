// Package weather talks to the external weather provider and turns its
// fine-grained forecast feed into daily summaries.
package weather

import (
	"context"
	"time"
)

// CurrentConditions is a normalized current-weather reading together with
// the provider's canonical location for the query. The canonical fields —
// not the caller's raw query string — are what city records are keyed on.
type CurrentConditions struct {
	CityName    string
	CountryCode string
	Latitude    float64
	Longitude   float64

	ObservedAt  time.Time // UTC
	Temperature float64   // °C
	Humidity    int       // %
	Pressure    int       // hPa
	WindSpeed   float64   // m/s
	Description string
	IconCode    string
}

// ForecastPoint is one fine-grained (~3-hour) forecast sample.
//
// Humidity and Pop are pointers because the provider may omit them; an
// absent Pop is excluded from the daily average rather than counted as 0.
type ForecastPoint struct {
	Timestamp   time.Time // UTC
	Temperature float64   // °C
	Humidity    *int      // %, optional
	Pop         *float64  // probability of precipitation 0.0-1.0, optional
	Description string
	IconCode    string
}

// ForecastResult carries the provider's raw forecast points plus the
// canonical location they belong to.
type ForecastResult struct {
	CityName    string
	CountryCode string
	Latitude    float64
	Longitude   float64

	Points []ForecastPoint
}

// Provider abstracts the external weather API.
//
// Both methods resolve a free-text city query. A query the provider cannot
// match returns apperror.ErrNotFound; network failures and non-2xx
// responses return apperror.ErrUpstream.
type Provider interface {
	Current(ctx context.Context, query string) (*CurrentConditions, error)
	Forecast(ctx context.Context, query string) (*ForecastResult, error)
}
