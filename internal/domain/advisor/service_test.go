package advisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/guidance"
	"github.com/yanqian/airwise/internal/domain/risk"
	"github.com/yanqian/airwise/internal/domain/usage"
	"github.com/yanqian/airwise/internal/infra/cachestore"
	apperrors "github.com/yanqian/airwise/pkg/errors"
	"github.com/yanqian/airwise/pkg/util"
)

type stubFetcher struct {
	provider string
	category string
	snap     risk.Snapshot
	err      error
	calls    atomic.Int32
}

func (f *stubFetcher) Provider() string { return f.provider }
func (f *stubFetcher) Category() string { return f.category }

func (f *stubFetcher) Fetch(context.Context, float64, float64) (risk.Snapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return risk.Snapshot{}, f.err
	}
	return f.snap, nil
}

type fixture struct {
	svc     Service
	monitor *usage.Monitor
	cache   *cache.Manager
	clock   *util.ManualClock
}

func newFixture(t *testing.T, fetchers ...Fetcher) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := util.NewManualClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))

	scorer, err := risk.NewScorer(risk.DefaultTable())
	require.NoError(t, err)
	catalog, err := guidance.DefaultCatalog()
	require.NoError(t, err)
	cm, err := cache.NewManager(cachestore.NewMemoryStore(), cache.DefaultConfig(), clock, logger)
	require.NoError(t, err)
	monitor, err := usage.NewMonitor(usage.DefaultConfig(), clock, nil, logger)
	require.NoError(t, err)

	svc, err := NewService(DefaultConfig(), scorer, catalog, cm, monitor, fetchers, clock, logger, guidance.WithSeed(11))
	require.NoError(t, err)
	return fixture{svc: svc, monitor: monitor, cache: cm, clock: clock}
}

func pollutantFetcher() *stubFetcher {
	return &stubFetcher{
		provider: "air",
		category: cache.CategoryPollutant,
		snap: risk.Snapshot{
			Pollutants: map[risk.Factor]float64{risk.FactorPM25: 60, risk.FactorO3: 150},
			UVIndex:    risk.Ptr(3),
		},
	}
}

func weatherFetcher() *stubFetcher {
	return &stubFetcher{
		provider: "weather",
		category: cache.CategoryWeather,
		snap: risk.Snapshot{Weather: risk.Weather{
			Temperature: risk.Ptr(25),
			Humidity:    risk.Ptr(85),
			WindSpeed:   risk.Ptr(3),
		}},
	}
}

func TestBriefAssemblesBriefing(t *testing.T) {
	pollen := &stubFetcher{provider: "pollen", category: cache.CategoryPollen, err: ErrNoData}
	f := newFixture(t, pollutantFetcher(), weatherFetcher(), pollen)

	res, err := f.svc.Brief(context.Background(), Request{Latitude: 1.3521, Longitude: 103.8198, Tags: []string{" Asthma "}})
	require.NoError(t, err)

	require.NotEmpty(t, res.ID)
	require.Equal(t, risk.BandVeryHigh, res.Band)
	require.InDelta(t, 100, res.Score, 1e-9)
	require.Equal(t, string(risk.FactorPM25), res.PrimaryDriver)
	require.Equal(t, []string{cache.CategoryPollen}, res.Missing)
	require.Contains(t, res.Conditions, guidance.ConditionHumid)
	require.Contains(t, res.Conditions, "asthma")
	require.Len(t, res.Tips, 3)
	require.Len(t, res.Actions, 3)
	require.Len(t, res.Sources, 3)
	require.Equal(t, apperrors.CodeNoData, res.Sources[2].Error)
	require.Nil(t, res.Snapshot.Pollen)
	require.Contains(t, res.Assessment.Missing, risk.FactorPollen)

	tips, _ := guidance.DefaultCatalog()
	pool, _ := tips.Pool(guidance.PoolTips)
	for _, text := range res.Tips {
		for _, item := range pool.Items {
			if item.Text == text {
				require.NotContains(t, item.Tags, guidance.TagIncreaseHumidity)
				require.NotContains(t, item.Tags, guidance.TagOutdoorActivity)
			}
		}
	}

	air, ok := f.monitor.Stats("air")
	require.True(t, ok)
	require.EqualValues(t, 1, air.Calls)
	pollenStats, ok := f.monitor.Stats("pollen")
	require.True(t, ok)
	require.Zero(t, pollenStats.Errors)
}

func TestBriefServesNearbyRequestsFromCache(t *testing.T) {
	air, weather := pollutantFetcher(), weatherFetcher()
	f := newFixture(t, air, weather)
	ctx := context.Background()

	_, err := f.svc.Brief(ctx, Request{Latitude: 1.3521, Longitude: 103.8198})
	require.NoError(t, err)
	res, err := f.svc.Brief(ctx, Request{Latitude: 1.3479, Longitude: 103.8240})
	require.NoError(t, err)

	require.EqualValues(t, 1, air.calls.Load())
	require.EqualValues(t, 1, weather.calls.Load())
	for _, src := range res.Sources {
		require.True(t, src.Cached, src.Category)
	}
	require.EqualValues(t, 2, f.cache.Stats().Hits)

	// Weather expires before pollutants.
	f.clock.Advance(45 * time.Minute)
	res, err = f.svc.Brief(ctx, Request{Latitude: 1.3521, Longitude: 103.8198})
	require.NoError(t, err)
	require.True(t, res.Sources[0].Cached)
	require.False(t, res.Sources[1].Cached)
	require.EqualValues(t, 2, weather.calls.Load())
}

func TestBriefFailedCategoryIsNotCached(t *testing.T) {
	weather := weatherFetcher()
	weather.err = errors.New("503 from upstream")
	f := newFixture(t, pollutantFetcher(), weather)
	ctx := context.Background()

	res, err := f.svc.Brief(ctx, Request{Latitude: 10, Longitude: 10})
	require.NoError(t, err)
	require.Equal(t, []string{cache.CategoryWeather}, res.Missing)
	require.Equal(t, apperrors.CodeUpstreamUnavailable, res.Sources[1].Error)

	_, err = f.svc.Brief(ctx, Request{Latitude: 10, Longitude: 10})
	require.NoError(t, err)
	require.EqualValues(t, 2, weather.calls.Load())

	stats, _ := f.monitor.Stats("weather")
	require.EqualValues(t, 2, stats.Errors)
	require.Equal(t, usage.HealthUnhealthy, stats.Health)
}

func TestBriefStopsWhenCallerCancels(t *testing.T) {
	f := newFixture(t, pollutantFetcher(), weatherFetcher())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Brief(ctx, Request{Latitude: 1.3521, Longitude: 103.8198})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBriefAllProvidersFail(t *testing.T) {
	down := &stubFetcher{provider: "air", category: cache.CategoryPollutant, err: errors.New("connection reset")}
	empty := &stubFetcher{provider: "pollen", category: cache.CategoryPollen, err: ErrNoData}

	f := newFixture(t, down, empty)
	_, err := f.svc.Brief(context.Background(), Request{Latitude: 1, Longitude: 2})
	require.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable))

	f = newFixture(t, &stubFetcher{provider: "pollen", category: cache.CategoryPollen, err: ErrNoData})
	_, err = f.svc.Brief(context.Background(), Request{Latitude: 1, Longitude: 2})
	require.True(t, apperrors.IsCode(err, apperrors.CodeNoData))

	f = newFixture(t)
	_, err = f.svc.Brief(context.Background(), Request{Latitude: 1, Longitude: 2})
	require.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable))
}

func TestBriefRejectsInvalidSnapshot(t *testing.T) {
	bad := &stubFetcher{
		provider: "air",
		category: cache.CategoryPollutant,
		snap:     risk.Snapshot{Pollutants: map[risk.Factor]float64{risk.FactorNO2: -4}},
	}
	f := newFixture(t, bad)
	_, err := f.svc.Brief(context.Background(), Request{Latitude: 1, Longitude: 2})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidSnapshot))
	require.ErrorIs(t, err, risk.ErrInvalidSnapshot)
}

func TestBriefValidatesRequest(t *testing.T) {
	f := newFixture(t, pollutantFetcher())
	ctx := context.Background()

	cases := []Request{
		{Latitude: 91, Longitude: 0},
		{Latitude: 0, Longitude: -181},
		{Latitude: 0, Longitude: 0, Count: 11},
		{Latitude: 0, Longitude: 0, Count: -1},
	}
	for _, req := range cases {
		_, err := f.svc.Brief(ctx, req)
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput), "%+v", req)
	}

	res, err := f.svc.Brief(ctx, Request{Latitude: 0, Longitude: 0, Count: 5})
	require.NoError(t, err)
	require.Len(t, res.Tips, 5)
}

func TestAssess(t *testing.T) {
	f := newFixture(t)

	eval, err := f.svc.Assess(risk.Snapshot{Pollutants: map[risk.Factor]float64{risk.FactorO3: 100}})
	require.NoError(t, err)
	require.Equal(t, string(risk.FactorO3), eval.PrimaryDriver)

	eval, err = f.svc.Assess(risk.Snapshot{Pollutants: map[risk.Factor]float64{risk.FactorO3: 10}})
	require.NoError(t, err)
	require.Equal(t, guidance.DriverNone, eval.PrimaryDriver)
	require.Equal(t, risk.BandLow, eval.Assessment.Band)

	_, err = f.svc.Assess(risk.Snapshot{Weather: risk.Weather{Humidity: risk.Ptr(140)}})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidSnapshot))
}

func TestGuidance(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Guidance(GuidanceRequest{Band: risk.BandHigh, Driver: "pm2_5", Count: 4})
	require.NoError(t, err)
	require.Len(t, got, 4)

	got, err = f.svc.Guidance(GuidanceRequest{Pool: guidance.PoolActions, Band: risk.BandLow})
	require.NoError(t, err)
	require.Len(t, got, 3)

	_, err = f.svc.Guidance(GuidanceRequest{Pool: "jokes", Band: risk.BandLow})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = f.svc.Guidance(GuidanceRequest{Band: "extreme"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = f.svc.Guidance(GuidanceRequest{Band: risk.BandLow, Driver: "radon"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestNewServiceRequiresPools(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scorer, err := risk.NewScorer(risk.DefaultTable())
	require.NoError(t, err)
	catalog, err := guidance.ParseCatalog([]byte("pools:\n  - name: tips\n    groups:\n      - id: a\n        texts: [x]\n"))
	require.NoError(t, err)
	cm, err := cache.NewManager(cachestore.NewMemoryStore(), cache.DefaultConfig(), nil, logger)
	require.NoError(t, err)
	monitor, err := usage.NewMonitor(usage.DefaultConfig(), nil, nil, logger)
	require.NoError(t, err)

	_, err = NewService(DefaultConfig(), scorer, catalog, cm, monitor, nil, nil, logger)
	require.Error(t, err)
}
