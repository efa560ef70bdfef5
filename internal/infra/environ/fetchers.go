package environ

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/yanqian/airwise/internal/domain/advisor"
	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/risk"
)

// Provider names reported to the usage monitor.
const (
	ProviderAirQuality = "open-meteo-air-quality"
	ProviderWeather    = "open-meteo-weather"
	ProviderPollen     = "open-meteo-pollen"
)

// PollenFullScale is the grain count (grains/m³) that maps to index 100.
const PollenFullScale = 200.0

var airQualityVariables = []struct {
	name   string
	factor risk.Factor
}{
	{"pm2_5", risk.FactorPM25},
	{"pm10", risk.FactorPM10},
	{"ozone", risk.FactorO3},
	{"nitrogen_dioxide", risk.FactorNO2},
	{"sulphur_dioxide", risk.FactorSO2},
	{"carbon_monoxide", risk.FactorCO},
	{"ammonia", risk.FactorNH3},
}

var pollenVariables = []string{
	"alder_pollen",
	"birch_pollen",
	"grass_pollen",
	"mugwort_pollen",
	"olive_pollen",
	"ragweed_pollen",
}

type airQualityFetcher struct{ c *Client }
type weatherFetcher struct{ c *Client }
type pollenFetcher struct{ c *Client }

// AirQuality fetches pollutant concentrations and the UV index.
func (c *Client) AirQuality() advisor.Fetcher { return airQualityFetcher{c} }

// Weather fetches temperature, humidity, wind, pressure and precipitation.
func (c *Client) Weather() advisor.Fetcher { return weatherFetcher{c} }

// Pollen fetches species pollen counts and folds them into one index.
func (c *Client) Pollen() advisor.Fetcher { return pollenFetcher{c} }

func (airQualityFetcher) Provider() string { return ProviderAirQuality }
func (airQualityFetcher) Category() string { return cache.CategoryPollutant }

func (f airQualityFetcher) Fetch(ctx context.Context, lat, lon float64) (risk.Snapshot, error) {
	vars := make([]string, 0, len(airQualityVariables)+1)
	for _, v := range airQualityVariables {
		vars = append(vars, v.name)
	}
	vars = append(vars, "uv_index")

	cur, err := f.c.getCurrent(ctx, ProviderAirQuality, f.c.airURL, lat, lon, vars, nil)
	if err != nil {
		return risk.Snapshot{}, err
	}
	snap := risk.Snapshot{CapturedAt: cur.capturedAt()}
	for _, av := range airQualityVariables {
		v := cur.Values[av.name]
		if v == nil {
			continue
		}
		if snap.Pollutants == nil {
			snap.Pollutants = make(map[risk.Factor]float64, len(airQualityVariables))
		}
		snap.Pollutants[av.factor] = *v
	}
	snap.UVIndex = cur.Values["uv_index"]
	if len(snap.Pollutants) == 0 && snap.UVIndex == nil {
		return risk.Snapshot{}, noData(ProviderAirQuality)
	}
	return snap, nil
}

func (weatherFetcher) Provider() string { return ProviderWeather }
func (weatherFetcher) Category() string { return cache.CategoryWeather }

func (f weatherFetcher) Fetch(ctx context.Context, lat, lon float64) (risk.Snapshot, error) {
	vars := []string{"temperature_2m", "relative_humidity_2m", "wind_speed_10m", "pressure_msl", "precipitation"}
	extra := url.Values{"wind_speed_unit": {"ms"}}

	cur, err := f.c.getCurrent(ctx, ProviderWeather, f.c.weatherURL, lat, lon, vars, extra)
	if err != nil {
		return risk.Snapshot{}, err
	}
	w := risk.Weather{
		Temperature:   cur.Values["temperature_2m"],
		Humidity:      cur.Values["relative_humidity_2m"],
		WindSpeed:     cur.Values["wind_speed_10m"],
		Pressure:      cur.Values["pressure_msl"],
		Precipitation: cur.Values["precipitation"],
	}
	if w == (risk.Weather{}) {
		return risk.Snapshot{}, noData(ProviderWeather)
	}
	return risk.Snapshot{Weather: w, CapturedAt: cur.capturedAt()}, nil
}

func (pollenFetcher) Provider() string { return ProviderPollen }
func (pollenFetcher) Category() string { return cache.CategoryPollen }

func (f pollenFetcher) Fetch(ctx context.Context, lat, lon float64) (risk.Snapshot, error) {
	cur, err := f.c.getCurrent(ctx, ProviderPollen, f.c.airURL, lat, lon, pollenVariables, nil)
	if err != nil {
		return risk.Snapshot{}, err
	}
	var (
		peak  float64
		found bool
	)
	for _, name := range pollenVariables {
		if v := cur.Values[name]; v != nil {
			if !found || *v > peak {
				peak = *v
			}
			found = true
		}
	}
	if !found {
		return risk.Snapshot{}, noData(ProviderPollen)
	}
	return risk.Snapshot{Pollen: risk.Ptr(PollenIndex(peak)), CapturedAt: cur.capturedAt()}, nil
}

// PollenIndex maps the dominant species count onto the 0-100 pollen index.
// Negative counts pass through unchanged in sign so scoring rejects them.
func PollenIndex(grains float64) float64 {
	return math.Min(100, grains/PollenFullScale*100)
}

func noData(provider string) error {
	return &advisor.FetchError{Provider: provider, Err: fmt.Errorf("%w: all variables null", advisor.ErrNoData)}
}
