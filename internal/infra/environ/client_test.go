package environ

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/airwise/internal/domain/advisor"
	"github.com/yanqian/airwise/internal/domain/risk"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		AirQualityURL: srv.URL + "/v1/air-quality",
		WeatherURL:    srv.URL + "/v1/forecast",
		Timeout:       time.Second,
	}, WithSleepFunc(noSleep))
}

func TestAirQualityFetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/air-quality", r.URL.Path)
		assert.Equal(t, "1.3521", r.URL.Query().Get("latitude"))
		assert.Contains(t, r.URL.Query().Get("current"), "pm2_5")
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"current":{"time":"2026-06-01T09:00","interval":3600,
			"pm2_5":18.4,"pm10":30.1,"ozone":null,"nitrogen_dioxide":22,"sulphur_dioxide":3.5,
			"carbon_monoxide":210,"ammonia":null,"uv_index":7.2}}`))
	})

	snap, err := c.AirQuality().Fetch(context.Background(), 1.3521, 103.8198)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), snap.CapturedAt)
	require.InDelta(t, 18.4, snap.Pollutants[risk.FactorPM25], 1e-9)
	require.InDelta(t, 210, snap.Pollutants[risk.FactorCO], 1e-9)
	_, hasO3 := snap.Pollutants[risk.FactorO3]
	require.False(t, hasO3, "null readings must stay absent")
	_, hasNH3 := snap.Pollutants[risk.FactorNH3]
	require.False(t, hasNH3)
	require.NotNil(t, snap.UVIndex)
	require.InDelta(t, 7.2, *snap.UVIndex, 1e-9)
}

func TestWeatherFetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "ms", r.URL.Query().Get("wind_speed_unit"))
		_, _ = w.Write([]byte(`{"current":{"time":"2026-06-01T09:00","temperature_2m":31.5,
			"relative_humidity_2m":78,"wind_speed_10m":1.2,"pressure_msl":1009.8,"precipitation":null}}`))
	})

	snap, err := c.Weather().Fetch(context.Background(), 1.35, 103.82)
	require.NoError(t, err)
	require.InDelta(t, 31.5, *snap.Weather.Temperature, 1e-9)
	require.InDelta(t, 1.2, *snap.Weather.WindSpeed, 1e-9)
	require.Nil(t, snap.Weather.Precipitation)
	require.Nil(t, snap.Pollutants)
}

func TestPollenFetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current":{"time":"2026-06-01T09:00","alder_pollen":null,
			"birch_pollen":40,"grass_pollen":90,"mugwort_pollen":null,"olive_pollen":0,"ragweed_pollen":null}}`))
	})

	snap, err := c.Pollen().Fetch(context.Background(), 48.85, 2.35)
	require.NoError(t, err)
	require.InDelta(t, 45, *snap.Pollen, 1e-9)
}

func TestPollenFetchKeepsNegativeReadings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current":{"time":"2026-06-01T09:00","alder_pollen":-20,"birch_pollen":null}}`))
	})

	snap, err := c.Pollen().Fetch(context.Background(), 48.85, 2.35)
	require.NoError(t, err)
	require.NotNil(t, snap.Pollen)
	require.InDelta(t, -10, *snap.Pollen, 1e-9)

	scorer, err := risk.NewScorer(risk.DefaultTable())
	require.NoError(t, err)
	_, err = scorer.Score(snap)
	require.ErrorIs(t, err, risk.ErrInvalidSnapshot)
}

func TestFetchAllNullIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current":{"time":"2026-06-01T09:00","alder_pollen":null,"birch_pollen":null}}`))
	})

	_, err := c.Pollen().Fetch(context.Background(), 1.35, 103.82)
	require.ErrorIs(t, err, advisor.ErrNoData)

	_, err = c.Weather().Fetch(context.Background(), 1.35, 103.82)
	require.ErrorIs(t, err, advisor.ErrNoData)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"current":{"time":"2026-06-01T09:00","pm2_5":5}}`))
	})

	snap, err := c.AirQuality().Fetch(context.Background(), 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load())
	require.InDelta(t, 5, snap.Pollutants[risk.FactorPM25], 1e-9)
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.AirQuality().Fetch(context.Background(), 1, 1)
	require.Error(t, err)
	var fe *advisor.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ProviderAirQuality, fe.Provider)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Latitude must be in range of -90 to 90°."}`))
	})

	_, err := c.Weather().Fetch(context.Background(), 1, 1)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "Latitude must be in range"))
	require.EqualValues(t, 1, calls.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		_, _ = c.AirQuality().Fetch(context.Background(), 1, 1)
	}
	_, err := c.AirQuality().Fetch(context.Background(), 1, 1)
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.LessOrEqual(t, calls.Load(), int32(6))
}

func TestPollenIndex(t *testing.T) {
	require.Zero(t, PollenIndex(0))
	require.Negative(t, PollenIndex(-1))
	require.InDelta(t, 50, PollenIndex(100), 1e-9)
	require.InDelta(t, 100, PollenIndex(5000), 1e-9)
}
