package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/model"
	"github.com/lanh/skywatch/internal/weather"
)

// fakeProvider serves canned responses keyed by query.
type fakeProvider struct {
	current     map[string]*weather.CurrentConditions
	forecast    map[string]*weather.ForecastResult
	currentErr  error
	forecastErr error
}

func (f *fakeProvider) Current(ctx context.Context, query string) (*weather.CurrentConditions, error) {
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	if c, ok := f.current[query]; ok {
		return c, nil
	}
	return nil, apperror.NotFound("city", query)
}

func (f *fakeProvider) Forecast(ctx context.Context, query string) (*weather.ForecastResult, error) {
	if f.forecastErr != nil {
		return nil, f.forecastErr
	}
	if r, ok := f.forecast[query]; ok {
		return r, nil
	}
	return nil, apperror.NotFound("city", query)
}

// fakeCityRepo implements get-or-create semantics keyed by the natural
// tuple.
type fakeCityRepo struct {
	cities map[string]*model.City // keyed by ID
	nextID int
}

func newFakeCityRepo() *fakeCityRepo {
	return &fakeCityRepo{cities: make(map[string]*model.City), nextID: 1}
}

func (f *fakeCityRepo) GetOrCreate(ctx context.Context, city *model.City) (*model.City, error) {
	for _, c := range f.cities {
		if c.Name == city.Name && c.CountryCode == city.CountryCode &&
			c.Latitude == city.Latitude && c.Longitude == city.Longitude {
			cp := *c
			return &cp, nil
		}
	}
	cp := *city
	cp.ID = string(rune('A' + f.nextID))
	f.nextID++
	f.cities[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeCityRepo) GetByID(ctx context.Context, id string) (*model.City, error) {
	if c, ok := f.cities[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, apperror.NotFound("city", id)
}

type fakeWeatherStore struct {
	observations []model.WeatherObservation
	forecasts    map[string]model.DailyForecast // keyed by cityID+time
}

func newFakeWeatherStore() *fakeWeatherStore {
	return &fakeWeatherStore{forecasts: make(map[string]model.DailyForecast)}
}

func (f *fakeWeatherStore) UpsertObservation(ctx context.Context, obs *model.WeatherObservation) error {
	for i, o := range f.observations {
		if o.CityID == obs.CityID && o.ObservedAt.Equal(obs.ObservedAt) {
			f.observations[i] = *obs
			return nil
		}
	}
	f.observations = append(f.observations, *obs)
	return nil
}

func (f *fakeWeatherStore) UpsertForecast(ctx context.Context, fc *model.DailyForecast) error {
	f.forecasts[fc.CityID+fc.ForecastTime.String()] = *fc
	return nil
}

func (f *fakeWeatherStore) ForecastsForCity(ctx context.Context, cityID string) ([]model.DailyForecast, error) {
	var out []model.DailyForecast
	for _, fc := range f.forecasts {
		if fc.CityID == cityID {
			out = append(out, fc)
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	entries   []model.SearchHistoryEntry
	appendErr error
}

func (f *fakeHistoryRepo) Append(ctx context.Context, entry *model.SearchHistoryEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistoryRepo) ListForUser(ctx context.Context, userID string, limit int) ([]model.SearchHistoryEntry, error) {
	var out []model.SearchHistoryEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

type fakeFavoriteRepo struct {
	favs []model.FavoriteLocation
}

func (f *fakeFavoriteRepo) Add(ctx context.Context, fav *model.FavoriteLocation) error {
	for _, existing := range f.favs {
		if existing.UserID == fav.UserID && existing.CityID == fav.CityID {
			return nil
		}
	}
	if fav.AddedAt.IsZero() {
		fav.AddedAt = time.Now()
	}
	f.favs = append(f.favs, *fav)
	return nil
}

func (f *fakeFavoriteRepo) ListFavorites(ctx context.Context, userID string) ([]model.FavoriteLocation, error) {
	var out []model.FavoriteLocation
	for _, fav := range f.favs {
		if fav.UserID == userID {
			out = append(out, fav)
		}
	}
	return out, nil
}

func (f *fakeFavoriteRepo) Remove(ctx context.Context, userID, cityID string) error {
	out := f.favs[:0]
	for _, fav := range f.favs {
		if fav.UserID != userID || fav.CityID != cityID {
			out = append(out, fav)
		}
	}
	f.favs = out
	return nil
}

type weatherFixture struct {
	svc       *WeatherService
	provider  *fakeProvider
	cities    *fakeCityRepo
	store     *fakeWeatherStore
	history   *fakeHistoryRepo
	favorites *fakeFavoriteRepo
}

func newWeatherFixture(t *testing.T) *weatherFixture {
	t.Helper()
	f := &weatherFixture{
		provider: &fakeProvider{
			current:  make(map[string]*weather.CurrentConditions),
			forecast: make(map[string]*weather.ForecastResult),
		},
		cities:    newFakeCityRepo(),
		store:     newFakeWeatherStore(),
		history:   &fakeHistoryRepo{},
		favorites: &fakeFavoriteRepo{},
	}
	f.svc = NewWeatherService(f.provider, f.cities, f.store, f.history, f.favorites, discardLogger())
	return f
}

func hanoiConditions() *weather.CurrentConditions {
	return &weather.CurrentConditions{
		CityName:    "Hanoi",
		CountryCode: "VN",
		Latitude:    21.0285,
		Longitude:   105.8542,
		ObservedAt:  time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Temperature: 31.2,
		Humidity:    68,
		Pressure:    1009,
		WindSpeed:   2.4,
		Description: "scattered clouds",
		IconCode:    "03d",
	}
}

func TestCurrent_Success(t *testing.T) {
	f := newWeatherFixture(t)
	f.provider.current["Hanoi"] = hanoiConditions()

	got, err := f.svc.Current(context.Background(), "Hanoi", "user-1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	if got.City != "Hanoi, VN" {
		t.Errorf("City = %q, want %q", got.City, "Hanoi, VN")
	}
	if got.CityID == "" {
		t.Error("CityID is empty, want the resolved city's ID")
	}
	if got.Temperature != 31.2 {
		t.Errorf("Temperature = %v, want 31.2", got.Temperature)
	}

	// Exactly one observation persisted for the canonical city.
	if len(f.store.observations) != 1 {
		t.Fatalf("observations = %d, want 1", len(f.store.observations))
	}
	if f.store.observations[0].Source != weather.Source {
		t.Errorf("Source = %q, want %q", f.store.observations[0].Source, weather.Source)
	}

	// The search was recorded with the resolved city.
	if len(f.history.entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(f.history.entries))
	}
	if f.history.entries[0].MatchedCityID == nil {
		t.Error("history entry should reference the matched city")
	}
}

func TestCurrent_EmptyQuery(t *testing.T) {
	f := newWeatherFixture(t)

	_, err := f.svc.Current(context.Background(), "   ", "user-1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Current() error = %v, want validation error", err)
	}
	if len(f.history.entries) != 0 {
		t.Error("empty queries must not be recorded")
	}
}

func TestCurrent_UnknownCity(t *testing.T) {
	f := newWeatherFixture(t)

	_, err := f.svc.Current(context.Background(), "Atlantis", "user-1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Current() error = %v, want ErrNotFound", err)
	}

	// Nothing persisted, but the miss is still in the history.
	if len(f.store.observations) != 0 {
		t.Error("no observation should be written for a miss")
	}
	if len(f.cities.cities) != 0 {
		t.Error("no city row should be created for a miss")
	}
	if len(f.history.entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(f.history.entries))
	}
	if f.history.entries[0].MatchedCityID != nil {
		t.Error("a miss must be recorded without a matched city")
	}
}

func TestCurrent_UpstreamFailureLooksLikeNotFound(t *testing.T) {
	f := newWeatherFixture(t)
	f.provider.currentErr = apperror.Upstream(errors.New("connect: connection refused"))

	_, err := f.svc.Current(context.Background(), "Hanoi", "")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Current() error = %v, want ErrNotFound", err)
	}
	if errors.Is(err, apperror.ErrUpstream) {
		t.Error("upstream detail must not leak to the caller")
	}
}

func TestCurrent_AnonymousNotRecorded(t *testing.T) {
	f := newWeatherFixture(t)
	f.provider.current["Hanoi"] = hanoiConditions()

	if _, err := f.svc.Current(context.Background(), "Hanoi", ""); err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if len(f.history.entries) != 0 {
		t.Errorf("anonymous search recorded %d entries, want 0", len(f.history.entries))
	}
}

func TestCurrent_HistoryFailureIsNotFatal(t *testing.T) {
	f := newWeatherFixture(t)
	f.provider.current["Hanoi"] = hanoiConditions()
	f.history.appendErr = errors.New("disk full")

	if _, err := f.svc.Current(context.Background(), "Hanoi", "user-1"); err != nil {
		t.Errorf("Current() should succeed despite history failure, got %v", err)
	}
}

func TestForecast_Success(t *testing.T) {
	f := newWeatherFixture(t)
	pop := 0.5
	f.provider.forecast["Hanoi"] = &weather.ForecastResult{
		CityName:    "Hanoi",
		CountryCode: "VN",
		Latitude:    21.0285,
		Longitude:   105.8542,
		Points: []weather.ForecastPoint{
			{
				Timestamp:   time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
				Temperature: 26,
				Pop:         &pop,
				Description: "light rain",
				IconCode:    "10d",
			},
			{
				Timestamp:   time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC),
				Temperature: 33,
				Pop:         &pop,
				Description: "light rain",
				IconCode:    "10d",
			},
			{
				Timestamp:   time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC),
				Temperature: 30,
				Description: "clear sky",
				IconCode:    "01d",
			},
		},
	}

	days, err := f.svc.Forecast(context.Background(), "Hanoi", "user-1")
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}

	if days[0].TempMin != 26 || days[0].TempMax != 33 {
		t.Errorf("day 1 temps = %v/%v, want 26/33", days[0].TempMin, days[0].TempMax)
	}
	if days[0].PrecipProbability == nil || *days[0].PrecipProbability != 50 {
		t.Errorf("day 1 pop = %v, want 50", days[0].PrecipProbability)
	}
	if days[1].PrecipProbability != nil {
		t.Errorf("day 2 pop = %v, want nil", *days[1].PrecipProbability)
	}

	// Each day was persisted.
	if len(f.store.forecasts) != 2 {
		t.Errorf("stored forecasts = %d, want 2", len(f.store.forecasts))
	}
	if len(f.history.entries) != 1 {
		t.Errorf("history entries = %d, want 1", len(f.history.entries))
	}
}

func TestForecast_FailuresYieldEmptyList(t *testing.T) {
	t.Run("unknown city", func(t *testing.T) {
		f := newWeatherFixture(t)

		days, err := f.svc.Forecast(context.Background(), "Atlantis", "user-1")
		if err != nil {
			t.Fatalf("Forecast() error = %v, want nil", err)
		}
		if len(days) != 0 {
			t.Errorf("got %d days, want 0", len(days))
		}
		if len(f.store.forecasts) != 0 {
			t.Error("nothing should be persisted for a miss")
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		f := newWeatherFixture(t)
		f.provider.forecastErr = apperror.Upstream(errors.New("timeout"))

		days, err := f.svc.Forecast(context.Background(), "Hanoi", "user-1")
		if err != nil {
			t.Fatalf("Forecast() error = %v, want nil", err)
		}
		if len(days) != 0 {
			t.Errorf("got %d days, want 0", len(days))
		}
	})
}

func TestHistory_LimitClamping(t *testing.T) {
	f := newWeatherFixture(t)
	for i := 0; i < 60; i++ {
		f.history.entries = append(f.history.entries, model.SearchHistoryEntry{
			UserID: "user-1",
			Query:  "q",
		})
	}

	cases := []struct {
		limit int
		want  int
	}{
		{0, DefaultHistoryLimit},
		{-5, DefaultHistoryLimit},
		{3, 3},
		{50, 50},
		{500, MaxHistoryLimit},
	}
	for _, tc := range cases {
		items, err := f.svc.History(context.Background(), "user-1", tc.limit)
		if err != nil {
			t.Fatalf("History(limit=%d) error = %v", tc.limit, err)
		}
		if len(items) != tc.want {
			t.Errorf("History(limit=%d) returned %d items, want %d", tc.limit, len(items), tc.want)
		}
	}
}

func TestHistory_ResolvesCityLabels(t *testing.T) {
	f := newWeatherFixture(t)
	f.provider.current["Hanoi"] = hanoiConditions()

	if _, err := f.svc.Current(context.Background(), "Hanoi", "user-1"); err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	f.history.entries = append(f.history.entries, model.SearchHistoryEntry{
		UserID: "user-1",
		Query:  "Atlantis",
	})

	items, err := f.svc.History(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	// Newest first: the unmatched Atlantis search, then Hanoi.
	if items[0].MatchedCity != nil {
		t.Errorf("unmatched search label = %v, want nil", *items[0].MatchedCity)
	}
	if items[1].MatchedCity == nil || *items[1].MatchedCity != "Hanoi, VN" {
		t.Errorf("matched search label = %v, want Hanoi, VN", items[1].MatchedCity)
	}
}

func TestFavorites(t *testing.T) {
	f := newWeatherFixture(t)
	f.provider.current["Hanoi"] = hanoiConditions()

	if _, err := f.svc.Current(context.Background(), "Hanoi", "user-1"); err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	var cityID string
	for id := range f.cities.cities {
		cityID = id
	}

	fav, err := f.svc.AddFavorite(context.Background(), "user-1", cityID)
	if err != nil {
		t.Fatalf("AddFavorite() error = %v", err)
	}
	if fav.City != "Hanoi, VN" {
		t.Errorf("favorite label = %q, want Hanoi, VN", fav.City)
	}

	// Unknown cities cannot be favorited.
	if _, err := f.svc.AddFavorite(context.Background(), "user-1", "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddFavorite(unknown) error = %v, want ErrNotFound", err)
	}

	items, err := f.svc.Favorites(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Favorites() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d favorites, want 1", len(items))
	}

	if err := f.svc.RemoveFavorite(context.Background(), "user-1", cityID); err != nil {
		t.Fatalf("RemoveFavorite() error = %v", err)
	}
	items, _ = f.svc.Favorites(context.Background(), "user-1")
	if len(items) != 0 {
		t.Errorf("favorites after remove = %d, want 0", len(items))
	}
}
