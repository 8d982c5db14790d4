package model

import (
	"fmt"
	"time"
)

// City is a canonical location record.
//
// Identity is the natural key (Name, CountryCode, Latitude, Longitude) —
// the tuple the upstream weather provider reports for a match. The same
// real-world place must never produce two rows, which the storage layer
// enforces with a unique constraint on the full tuple.
//
// TimezoneName is optional and first-write-wins: it is set when the city is
// first observed and never overwritten by later lookups.
type City struct {
	ID           string    `json:"id"           db:"id"`
	Name         string    `json:"name"         db:"name"`
	CountryCode  string    `json:"countryCode"  db:"country_code"` // ISO 3166-1 alpha-2
	Latitude     float64   `json:"latitude"     db:"latitude"`
	Longitude    float64   `json:"longitude"    db:"longitude"`
	TimezoneName string    `json:"timezoneName" db:"timezone_name"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}

// Label returns the display form used in API responses, e.g. "Hanoi, VN".
func (c *City) Label() string {
	return fmt.Sprintf("%s, %s", c.Name, c.CountryCode)
}
