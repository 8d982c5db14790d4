package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/lanh/skywatch/internal/apperror"
)

// Source tags rows written from this provider's data.
const Source = "openweather"

var _ Provider = (*OpenWeatherClient)(nil)

// OpenWeatherClient implements Provider against the OpenWeatherMap API
// (current conditions plus the 3-hourly 5-day forecast feed).
//
// Outbound calls are rate-limited and wrapped in a circuit breaker so a
// flapping upstream doesn't eat every request's full timeout. The HTTP
// client's timeout (10s by default) bounds each call; callers never hang
// past it.
type OpenWeatherClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenWeatherClient creates a client for the given base URL (e.g.
// https://api.openweathermap.org/data/2.5) and API key.
func NewOpenWeatherClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *OpenWeatherClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenWeatherClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
		// The free tier allows 60 calls/minute; stay level with it.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		logger:  logger,
	}
}

// currentPayload is the wire shape of GET /weather.
type currentPayload struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
		Pressure int     `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

// forecastPayload is the wire shape of GET /forecast (3-hour points).
type forecastPayload struct {
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
		Coord   struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity *int    `json:"humidity"`
		} `json:"main"`
		Pop     *float64 `json:"pop"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

// Current resolves a free-text city query to current conditions.
func (c *OpenWeatherClient) Current(ctx context.Context, query string) (*CurrentConditions, error) {
	var payload currentPayload
	if err := c.get(ctx, "/weather", query, &payload); err != nil {
		return nil, err
	}

	observedAt := time.Unix(payload.Dt, 0).UTC()
	if payload.Dt == 0 {
		observedAt = time.Now().UTC()
	}

	cur := &CurrentConditions{
		CityName:    payload.Name,
		CountryCode: payload.Sys.Country,
		Latitude:    payload.Coord.Lat,
		Longitude:   payload.Coord.Lon,
		ObservedAt:  observedAt,
		Temperature: payload.Main.Temp,
		Humidity:    payload.Main.Humidity,
		Pressure:    payload.Main.Pressure,
		WindSpeed:   payload.Wind.Speed,
	}
	if len(payload.Weather) > 0 {
		cur.Description = payload.Weather[0].Description
		cur.IconCode = payload.Weather[0].Icon
	}

	return cur, nil
}

// Forecast resolves a free-text city query to the raw 3-hourly points.
func (c *OpenWeatherClient) Forecast(ctx context.Context, query string) (*ForecastResult, error) {
	var payload forecastPayload
	if err := c.get(ctx, "/forecast", query, &payload); err != nil {
		return nil, err
	}

	result := &ForecastResult{
		CityName:    payload.City.Name,
		CountryCode: payload.City.Country,
		Latitude:    payload.City.Coord.Lat,
		Longitude:   payload.City.Coord.Lon,
		Points:      make([]ForecastPoint, 0, len(payload.List)),
	}

	for _, item := range payload.List {
		point := ForecastPoint{
			Timestamp:   time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
			Humidity:    item.Main.Humidity,
			Pop:         item.Pop,
		}
		if len(item.Weather) > 0 {
			point.Description = item.Weather[0].Description
			point.IconCode = item.Weather[0].Icon
		}
		result.Points = append(result.Points, point)
	}

	return result, nil
}

// get performs one rate-limited, circuit-broken GET against the provider
// and decodes the JSON body into out.
//
// Status mapping: 404 → ErrNotFound (no matching city), anything else
// non-2xx or a transport error → ErrUpstream. Only 5xx and transport
// errors count against the breaker — a stream of unknown city names
// should not trip it.
func (c *OpenWeatherClient) get(ctx context.Context, path, query string, out any) error {
	if c.apiKey == "" {
		return apperror.Upstream(fmt.Errorf("openweather api key is not configured"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return apperror.Upstream(fmt.Errorf("rate limit wait: %w", err))
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return apperror.Upstream(err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		resp, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		c.logger.Warn("openweather request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return apperror.Upstream(err)
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperror.NotFound("city", query)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("openweather non-success status",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return apperror.Upstream(fmt.Errorf("provider returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Upstream(fmt.Errorf("decoding provider response: %w", err))
	}

	return nil
}
