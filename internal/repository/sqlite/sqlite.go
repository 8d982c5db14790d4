// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure-Go translation of SQLite — no CGo, no C
// compiler, cross-compiles everywhere Go does. The database is a single
// file (or ":memory:" in tests).
//
// Concurrency-sensitive invariants live here as UNIQUE constraints:
// city identity, one observation per (city, observed_at), one forecast per
// (city, forecast_time), one favorite per (user, city). Write paths use
// INSERT ... ON CONFLICT so concurrent writers collapse onto one row
// instead of racing a check-then-insert.
package sqlite

import (
	"database/sql"
	"fmt"

	// Blank import registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
// Use ":memory:" for an in-memory database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in flight — needed for a
	// web server where many requests hit the DB concurrently.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite. The history table's
	// ON DELETE SET NULL and the cascade from cities depend on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Sub-repositories share the one connection pool; each satisfies the
// matching interface in package repository.

func (db *DB) Users() *UserDB         { return &UserDB{conn: db.conn} }
func (db *DB) Cities() *CityDB        { return &CityDB{conn: db.conn} }
func (db *DB) Weather() *WeatherDB    { return &WeatherDB{conn: db.conn} }
func (db *DB) History() *HistoryDB    { return &HistoryDB{conn: db.conn} }
func (db *DB) Favorites() *FavoriteDB { return &FavoriteDB{conn: db.conn} }

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                   TEXT PRIMARY KEY,
			username             TEXT NOT NULL UNIQUE,
			email                TEXT NOT NULL UNIQUE,
			password_hash        TEXT NOT NULL,
			first_name           TEXT NOT NULL DEFAULT '',
			last_name            TEXT NOT NULL DEFAULT '',
			phone_number         TEXT NOT NULL DEFAULT '',
			email_verified       INTEGER NOT NULL DEFAULT 0,
			active               INTEGER NOT NULL DEFAULT 0,
			verification_token   TEXT NOT NULL DEFAULT '',
			verification_sent_at DATETIME,
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS cities (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			country_code  TEXT NOT NULL,
			latitude      REAL NOT NULL,
			longitude     REAL NOT NULL,
			timezone_name TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (name, country_code, latitude, longitude)
		);
		CREATE INDEX IF NOT EXISTS idx_cities_name_country ON cities(name, country_code);
	`)
	if err != nil {
		return fmt.Errorf("creating cities table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS weather_observations (
			id            TEXT PRIMARY KEY,
			city_id       TEXT NOT NULL REFERENCES cities(id) ON DELETE CASCADE,
			observed_at   DATETIME NOT NULL,
			temperature_c REAL NOT NULL,
			humidity_pct  INTEGER NOT NULL,
			pressure_hpa  INTEGER NOT NULL,
			wind_speed_ms REAL NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			icon_code     TEXT NOT NULL DEFAULT '',
			source        TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (city_id, observed_at)
		);
		CREATE INDEX IF NOT EXISTS idx_observations_city_time ON weather_observations(city_id, observed_at);
	`)
	if err != nil {
		return fmt.Errorf("creating weather_observations table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS daily_forecasts (
			id                            TEXT PRIMARY KEY,
			city_id                       TEXT NOT NULL REFERENCES cities(id) ON DELETE CASCADE,
			forecast_time                 DATETIME NOT NULL,
			temp_min_c                    REAL NOT NULL,
			temp_max_c                    REAL NOT NULL,
			precipitation_probability_pct INTEGER,
			description                   TEXT NOT NULL DEFAULT '',
			icon_code                     TEXT NOT NULL DEFAULT '',
			source                        TEXT NOT NULL DEFAULT '',
			created_at                    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (city_id, forecast_time)
		);
		CREATE INDEX IF NOT EXISTS idx_forecasts_city_time ON daily_forecasts(city_id, forecast_time);
	`)
	if err != nil {
		return fmt.Errorf("creating daily_forecasts table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS search_history (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			query           TEXT NOT NULL,
			matched_city_id TEXT REFERENCES cities(id) ON DELETE SET NULL,
			searched_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_history_user_time ON search_history(user_id, searched_at);
	`)
	if err != nil {
		return fmt.Errorf("creating search_history table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS favorite_locations (
			id       TEXT PRIMARY KEY,
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			city_id  TEXT NOT NULL REFERENCES cities(id) ON DELETE CASCADE,
			added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, city_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating favorite_locations table: %w", err)
	}

	return nil
}
