package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lanh/skywatch/internal/auth"
	"github.com/lanh/skywatch/internal/service"
)

// WeatherHandler serves the weather lookup, search history, and favorites
// endpoints.
type WeatherHandler struct {
	weather *service.WeatherService
	logger  *slog.Logger
}

func NewWeatherHandler(weather *service.WeatherService, logger *slog.Logger) *WeatherHandler {
	return &WeatherHandler{weather: weather, logger: logger}
}

// HandleCurrent returns current conditions for ?city=<query>.
//
// HTTP: GET /api/weather/current?city=Hanoi
// Auth: optional — logged-in callers get the search recorded.
func (h *WeatherHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	userID, _ := auth.UserIDFromContext(r.Context())

	current, err := h.weather.Current(r.Context(), city, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, current)
}

// HandleForecast returns the aggregated daily forecast for ?city=<query>.
// An unknown city or provider outage yields an empty list, not an error.
//
// HTTP: GET /api/weather/forecast?city=Hanoi
// Auth: optional.
func (h *WeatherHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	userID, _ := auth.UserIDFromContext(r.Context())

	days, err := h.weather.Forecast(r.Context(), city, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"forecasts": days})
}

// HandleHistory returns the caller's recent searches.
//
// HTTP: GET /api/search/history?limit=10   (limit clamped to 1-50)
// Auth: required.
func (h *WeatherHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "authentication required",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	items, err := h.weather.History(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("history lookup failed", slog.String("userID", userID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"history": items})
}

// HandleAddFavorite saves a previously resolved city to the caller's
// favorites.
//
// HTTP: POST /api/favorites  {"city_id": "..."}
// Auth: required.
func (h *WeatherHandler) HandleAddFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		CityID string `json:"city_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	fav, err := h.weather.AddFavorite(r.Context(), userID, req.CityID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, fav)
}

// HandleListFavorites returns the caller's saved locations.
//
// HTTP: GET /api/favorites
// Auth: required.
func (h *WeatherHandler) HandleListFavorites(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	items, err := h.weather.Favorites(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"favorites": items})
}

// HandleRemoveFavorite deletes one saved location.
//
// HTTP: DELETE /api/favorites/{cityID}
// Auth: required.
func (h *WeatherHandler) HandleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	cityID := chi.URLParam(r, "cityID")

	if err := h.weather.RemoveFavorite(r.Context(), userID, cityID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
