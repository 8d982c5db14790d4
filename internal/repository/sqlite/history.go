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

// HistoryDB is the search-history sub-repository, obtained via
// DB.History. FavoriteDB stores saved locations, obtained via
// DB.Favorites.
type (
	HistoryDB  struct{ conn *sql.DB }
	FavoriteDB struct{ conn *sql.DB }
)

var (
	_ repository.SearchHistoryRepository = (*HistoryDB)(nil)
	_ repository.FavoriteRepository      = (*FavoriteDB)(nil)
)

// Append records one search. History is append-only; rows are never
// updated afterwards.
func (db *HistoryDB) Append(ctx context.Context, entry *model.SearchHistoryEntry) error {
	entry.ID = xid.New().String()
	if entry.SearchedAt.IsZero() {
		entry.SearchedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO search_history (id, user_id, query, matched_city_id, searched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.Query,
		nullableString(entry.MatchedCityID),
		entry.SearchedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending search history for user %s: %w", entry.UserID, err)
	}

	return nil
}

// ListForUser returns the newest entries first, at most limit rows.
func (db *HistoryDB) ListForUser(ctx context.Context, userID string, limit int) ([]model.SearchHistoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, query, matched_city_id, searched_at
		 FROM search_history
		 WHERE user_id = ?
		 ORDER BY searched_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing search history for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []model.SearchHistoryEntry
	for rows.Next() {
		var (
			e       model.SearchHistoryEntry
			matched sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &matched, &e.SearchedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning history row: %w", err)
		}
		if matched.Valid {
			e.MatchedCityID = &matched.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating history rows: %w", err)
	}

	return entries, nil
}

// Add saves a favorite. Re-adding a city a user already favorited is a
// no-op thanks to ON CONFLICT DO NOTHING on (user_id, city_id).
func (db *FavoriteDB) Add(ctx context.Context, fav *model.FavoriteLocation) error {
	if fav.ID == "" {
		fav.ID = xid.New().String()
	}
	if fav.AddedAt.IsZero() {
		fav.AddedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO favorite_locations (id, user_id, city_id, added_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, city_id) DO NOTHING`,
		fav.ID,
		fav.UserID,
		fav.CityID,
		fav.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding favorite for user %s: %w", fav.UserID, err)
	}

	return nil
}

// ListFavorites returns the user's favorites, oldest first.
func (db *FavoriteDB) ListFavorites(ctx context.Context, userID string) ([]model.FavoriteLocation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, city_id, added_at
		 FROM favorite_locations
		 WHERE user_id = ?
		 ORDER BY added_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing favorites for user %s: %w", userID, err)
	}
	defer rows.Close()

	var favs []model.FavoriteLocation
	for rows.Next() {
		var f model.FavoriteLocation
		if err := rows.Scan(&f.ID, &f.UserID, &f.CityID, &f.AddedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning favorite row: %w", err)
		}
		favs = append(favs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating favorite rows: %w", err)
	}

	return favs, nil
}

// Remove deletes a favorite by (user, city).
func (db *FavoriteDB) Remove(ctx context.Context, userID, cityID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM favorite_locations WHERE user_id = ? AND city_id = ?`,
		userID, cityID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing favorite (%s, %s): %w", userID, cityID, err)
	}
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
