// Package service contains the business logic layer: the weather fetch
// orchestrator and the account/verification flows. Handlers parse HTTP and
// delegate here; repositories and the provider client are injected as
// interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/model"
	"github.com/lanh/skywatch/internal/repository"
	"github.com/lanh/skywatch/internal/weather"
)

// History limits: callers may request 1-50 entries, default 10.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50
)

// CurrentWeather is the transport-agnostic current-conditions summary
// returned to callers. It never exposes the raw provider payload shape.
type CurrentWeather struct {
	CityID      string    `json:"city_id"` // for saving the city as a favorite
	City        string    `json:"city"`    // "Hanoi, VN"
	ObservedAt  time.Time `json:"observed_at"`
	Temperature float64   `json:"temperature_c"`
	Humidity    int       `json:"humidity_pct"`
	Pressure    int       `json:"pressure_hpa"`
	WindSpeed   float64   `json:"wind_speed_ms"`
	Description string    `json:"description"`
	IconCode    string    `json:"icon_code"`
}

// ForecastDay is one aggregated day in a forecast response.
type ForecastDay struct {
	City              string    `json:"city"`
	ForecastTime      time.Time `json:"forecast_time"`
	TempMin           float64   `json:"temp_min_c"`
	TempMax           float64   `json:"temp_max_c"`
	PrecipProbability *int      `json:"precipitation_probability_pct"`
	Description       string    `json:"description"`
	IconCode          string    `json:"icon_code"`
}

// HistoryItem is one search-history row with the matched city resolved to
// its display label.
type HistoryItem struct {
	Query       string    `json:"query"`
	MatchedCity *string   `json:"matched_city"`
	SearchedAt  time.Time `json:"searched_at"`
}

// FavoriteItem is one saved location.
type FavoriteItem struct {
	CityID  string    `json:"city_id"`
	City    string    `json:"city"`
	AddedAt time.Time `json:"added_at"`
}

// WeatherService orchestrates provider fetches: resolve the canonical
// city, persist what came back, and record who asked.
type WeatherService struct {
	provider  weather.Provider
	cities    repository.CityRepository
	store     repository.WeatherRepository
	history   repository.SearchHistoryRepository
	favorites repository.FavoriteRepository
	logger    *slog.Logger
}

func NewWeatherService(
	provider weather.Provider,
	cities repository.CityRepository,
	store repository.WeatherRepository,
	history repository.SearchHistoryRepository,
	favorites repository.FavoriteRepository,
	logger *slog.Logger,
) *WeatherService {
	return &WeatherService{
		provider:  provider,
		cities:    cities,
		store:     store,
		history:   history,
		favorites: favorites,
		logger:    logger,
	}
}

// Current fetches current conditions for a free-text city query.
//
// Provider misses and upstream failures both come back as ErrNotFound
// (the distinction is logged here, not exposed) and nothing is persisted
// on those paths. On success exactly one observation row is upserted for
// the provider's canonical city, and the search is recorded for userID
// (empty for anonymous callers).
func (s *WeatherService) Current(ctx context.Context, query, userID string) (*CurrentWeather, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("city", "city query is required")
	}

	cur, err := s.provider.Current(ctx, query)
	if err != nil {
		s.recordSearch(ctx, userID, query, nil)

		if errors.Is(err, apperror.ErrUpstream) {
			s.logger.Error("current weather fetch failed upstream",
				slog.String("query", query),
				slog.String("error", err.Error()),
			)
			return nil, apperror.NotFound("weather", query)
		}
		return nil, err
	}

	city, err := s.cities.GetOrCreate(ctx, &model.City{
		Name:        cur.CityName,
		CountryCode: cur.CountryCode,
		Latitude:    cur.Latitude,
		Longitude:   cur.Longitude,
	})
	if err != nil {
		return nil, fmt.Errorf("service/weather: resolving city for %q: %w", query, err)
	}

	obs := &model.WeatherObservation{
		CityID:      city.ID,
		ObservedAt:  cur.ObservedAt,
		Temperature: cur.Temperature,
		Humidity:    cur.Humidity,
		Pressure:    cur.Pressure,
		WindSpeed:   cur.WindSpeed,
		Description: cur.Description,
		IconCode:    cur.IconCode,
		Source:      weather.Source,
	}
	if err := s.store.UpsertObservation(ctx, obs); err != nil {
		return nil, fmt.Errorf("service/weather: persisting observation for %s: %w", city.ID, err)
	}

	s.recordSearch(ctx, userID, query, &city.ID)

	s.logger.Info("current weather fetched",
		slog.String("city", city.Label()),
		slog.Time("observedAt", cur.ObservedAt),
	)

	return &CurrentWeather{
		CityID:      city.ID,
		City:        city.Label(),
		ObservedAt:  cur.ObservedAt,
		Temperature: cur.Temperature,
		Humidity:    cur.Humidity,
		Pressure:    cur.Pressure,
		WindSpeed:   cur.WindSpeed,
		Description: cur.Description,
		IconCode:    cur.IconCode,
	}, nil
}

// Forecast fetches the 5-day forecast for a free-text city query,
// aggregated to daily summaries.
//
// Any provider failure, unknown city included, yields an empty slice,
// not an error, and writes nothing. On success each daily summary is
// upserted keyed by (city, representative instant), so refetching a day
// replaces it in place.
func (s *WeatherService) Forecast(ctx context.Context, query, userID string) ([]ForecastDay, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("city", "city query is required")
	}

	result, err := s.provider.Forecast(ctx, query)
	if err != nil {
		s.recordSearch(ctx, userID, query, nil)

		level := slog.LevelInfo
		if errors.Is(err, apperror.ErrUpstream) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "forecast fetch failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return []ForecastDay{}, nil
	}

	city, err := s.cities.GetOrCreate(ctx, &model.City{
		Name:        result.CityName,
		CountryCode: result.CountryCode,
		Latitude:    result.Latitude,
		Longitude:   result.Longitude,
	})
	if err != nil {
		return nil, fmt.Errorf("service/weather: resolving city for %q: %w", query, err)
	}

	summaries := weather.AggregateDaily(result.Points)

	days := make([]ForecastDay, 0, len(summaries))
	for _, sum := range summaries {
		fc := &model.DailyForecast{
			CityID:            city.ID,
			ForecastTime:      sum.Date,
			TempMin:           sum.TempMin,
			TempMax:           sum.TempMax,
			PrecipProbability: sum.PrecipProbability,
			Description:       sum.Description,
			IconCode:          sum.IconCode,
			Source:            weather.Source,
		}
		if err := s.store.UpsertForecast(ctx, fc); err != nil {
			return nil, fmt.Errorf("service/weather: persisting forecast for %s: %w", city.ID, err)
		}

		days = append(days, ForecastDay{
			City:              city.Label(),
			ForecastTime:      sum.Date,
			TempMin:           sum.TempMin,
			TempMax:           sum.TempMax,
			PrecipProbability: sum.PrecipProbability,
			Description:       sum.Description,
			IconCode:          sum.IconCode,
		})
	}

	s.recordSearch(ctx, userID, query, &city.ID)

	s.logger.Info("forecast fetched",
		slog.String("city", city.Label()),
		slog.Int("days", len(days)),
	)

	return days, nil
}

// History returns the user's recent searches, newest first. The limit is
// clamped to 1-50 with a default of 10.
func (s *WeatherService) History(ctx context.Context, userID string, limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	entries, err := s.history.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("service/weather: listing history for %s: %w", userID, err)
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		item := HistoryItem{
			Query:      e.Query,
			SearchedAt: e.SearchedAt,
		}
		if e.MatchedCityID != nil {
			if city, err := s.cities.GetByID(ctx, *e.MatchedCityID); err == nil {
				label := city.Label()
				item.MatchedCity = &label
			}
		}
		items = append(items, item)
	}

	return items, nil
}

// AddFavorite saves a previously seen city for the user. The city must
// already exist (i.e. have been resolved by a search); an unknown ID is a
// NotFound.
func (s *WeatherService) AddFavorite(ctx context.Context, userID, cityID string) (*FavoriteItem, error) {
	city, err := s.cities.GetByID(ctx, cityID)
	if err != nil {
		return nil, err
	}

	fav := &model.FavoriteLocation{
		UserID: userID,
		CityID: city.ID,
	}
	if err := s.favorites.Add(ctx, fav); err != nil {
		return nil, fmt.Errorf("service/weather: adding favorite: %w", err)
	}

	return &FavoriteItem{
		CityID:  city.ID,
		City:    city.Label(),
		AddedAt: fav.AddedAt,
	}, nil
}

// Favorites lists the user's saved locations.
func (s *WeatherService) Favorites(ctx context.Context, userID string) ([]FavoriteItem, error) {
	favs, err := s.favorites.ListFavorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/weather: listing favorites for %s: %w", userID, err)
	}

	items := make([]FavoriteItem, 0, len(favs))
	for _, f := range favs {
		item := FavoriteItem{CityID: f.CityID, AddedAt: f.AddedAt}
		if city, err := s.cities.GetByID(ctx, f.CityID); err == nil {
			item.City = city.Label()
		}
		items = append(items, item)
	}

	return items, nil
}

// RemoveFavorite deletes one saved location.
func (s *WeatherService) RemoveFavorite(ctx context.Context, userID, cityID string) error {
	if err := s.favorites.Remove(ctx, userID, cityID); err != nil {
		return fmt.Errorf("service/weather: removing favorite: %w", err)
	}
	return nil
}

// recordSearch appends a history row for authenticated callers. History is
// best-effort: a failed append is logged and never fails the lookup that
// triggered it.
func (s *WeatherService) recordSearch(ctx context.Context, userID, query string, cityID *string) {
	if userID == "" {
		return
	}

	entry := &model.SearchHistoryEntry{
		UserID:        userID,
		Query:         query,
		MatchedCityID: cityID,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Error("failed to record search history",
			slog.String("userID", userID),
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
	}
}
