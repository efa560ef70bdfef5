package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/airwise/internal/domain/advisor"
	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/risk"
	"github.com/yanqian/airwise/internal/domain/usage"
	"github.com/yanqian/airwise/internal/infra/cachestore"
	"github.com/yanqian/airwise/internal/infra/config"
	apperrors "github.com/yanqian/airwise/pkg/errors"
)

func TestRouter_BriefingSuccess(t *testing.T) {
	resp := advisor.Response{ID: "b-1", Score: 42.5, Band: risk.BandModerate, PrimaryDriver: "o3", Tips: []string{"tip"}}
	svc := &stubAdvisor{
		briefFn: func(ctx context.Context, req advisor.Request) (advisor.Response, error) {
			require.InDelta(t, 1.3521, req.Latitude, 1e-9)
			require.Equal(t, []string{"asthma"}, req.Tags)
			return resp, nil
		},
	}

	rt := newRouterUnderTest(t, svc)
	recorder := performRequest(rt.server, http.MethodPost, "/api/v1/briefings", `{"latitude":1.3521,"longitude":103.8198,"tags":["asthma"]}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotEmpty(t, recorder.Header().Get(requestIDHeader))

	var got advisor.Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, resp.ID, got.ID)
	require.Equal(t, risk.BandModerate, got.Band)
}

func TestRouter_BriefingInvalidJSON(t *testing.T) {
	rt := newRouterUnderTest(t, &stubAdvisor{})

	recorder := performRequest(rt.server, http.MethodPost, "/api/v1/briefings", `{"latitude":"north"}`)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "invalid_request", errBody["error"]["code"])
	require.NotEmpty(t, errBody["error"]["message"])
}

func TestRouter_BriefingErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.Wrap(apperrors.CodeInvalidInput, "latitude must be between -90 and 90", nil), http.StatusBadRequest, "invalid_request"},
		{apperrors.Wrap(apperrors.CodeInvalidSnapshot, "negative reading", nil), http.StatusUnprocessableEntity, apperrors.CodeInvalidSnapshot},
		{apperrors.Wrap(apperrors.CodeNoData, "no data", nil), http.StatusNotFound, apperrors.CodeNoData},
		{apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "all providers failed", nil), http.StatusBadGateway, apperrors.CodeUpstreamUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError, "briefing_failed"},
	}
	for _, tc := range cases {
		svc := &stubAdvisor{
			briefFn: func(context.Context, advisor.Request) (advisor.Response, error) {
				return advisor.Response{}, tc.err
			},
		}
		rt := newRouterUnderTest(t, svc)
		recorder := performRequest(rt.server, http.MethodPost, "/api/v1/briefings", `{"latitude":1,"longitude":2}`)
		require.Equal(t, tc.status, recorder.Code, tc.code)
		require.Equal(t, tc.code, decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])
	}
}

func TestRouter_ComputeRisk(t *testing.T) {
	svc := &stubAdvisor{
		assessFn: func(snap risk.Snapshot) (advisor.Evaluation, error) {
			require.InDelta(t, 35, snap.Pollutants[risk.FactorPM25], 1e-9)
			require.NotNil(t, snap.Weather.Humidity)
			return advisor.Evaluation{PrimaryDriver: "pm2_5", Assessment: risk.Assessment{Score: 50, Band: risk.BandHigh}}, nil
		},
	}
	rt := newRouterUnderTest(t, svc)

	recorder := performRequest(rt.server, http.MethodPost, "/api/v1/risk", `{"pollutants":{"pm2_5":35},"weather":{"humidity":60}}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var got advisor.Evaluation
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, "pm2_5", got.PrimaryDriver)
	require.Equal(t, risk.BandHigh, got.Assessment.Band)
}

func TestRouter_SampleGuidance(t *testing.T) {
	svc := &stubAdvisor{
		guidanceFn: func(req advisor.GuidanceRequest) ([]string, error) {
			require.Equal(t, "actions", req.Pool)
			require.Equal(t, risk.BandHigh, req.Band)
			require.Equal(t, "o3", req.Driver)
			require.Equal(t, 2, req.Count)
			require.Equal(t, []string{"hot", "asthma"}, req.Conditions)
			require.Equal(t, []string{"ventilate"}, req.Exclude)
			return []string{"a", "b"}, nil
		},
	}
	rt := newRouterUnderTest(t, svc)

	recorder := performRequest(rt.server, http.MethodGet,
		"/api/v1/guidance?pool=actions&band=high&driver=o3&count=2&condition=hot,asthma&exclude=ventilate", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Equal(t, []string{"a", "b"}, body["items"])

	recorder = performRequest(rt.server, http.MethodGet, "/api/v1/guidance?band=high&count=many", "")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRouter_CacheEndpoints(t *testing.T) {
	rt := newRouterUnderTest(t, &stubAdvisor{})
	ctx := context.Background()
	require.NoError(t, rt.cache.Put(ctx, "open-meteo-weather:weather:1.35:103.82", []byte("{}"), cache.CategoryWeather))
	require.NoError(t, rt.cache.Put(ctx, "open-meteo-pollen:pollen:1.35:103.82", []byte("{}"), cache.CategoryPollen))
	_, ok := rt.cache.Get(ctx, "open-meteo-weather:weather:1.35:103.82", cache.CategoryWeather)
	require.True(t, ok)

	recorder := performRequest(rt.server, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &stats))
	require.EqualValues(t, 1, stats.Hits)
	require.InDelta(t, 0.0005, stats.EstimatedCostSaved, 1e-12)

	recorder = performRequest(rt.server, http.MethodDelete, "/api/v1/cache?pattern=*:weather:*", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var removed struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &removed))
	require.Equal(t, 1, removed.Removed)

	recorder = performRequest(rt.server, http.MethodDelete, "/api/v1/cache", "")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRouter_UsageEndpoints(t *testing.T) {
	rt := newRouterUnderTest(t, &stubAdvisor{})
	for i := 0; i < 9; i++ {
		rt.monitor.RecordCall("open-meteo-weather", true, 20*time.Millisecond)
	}
	rt.monitor.RecordCall("open-meteo-weather", false, 20*time.Millisecond)

	recorder := performRequest(rt.server, http.MethodGet, "/api/v1/usage/providers/open-meteo-weather", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var stats usage.Stats
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &stats))
	require.EqualValues(t, 10, stats.Calls)
	require.Equal(t, usage.LevelCritical, stats.Level)
	require.Equal(t, usage.HealthDegraded, stats.Health)

	recorder = performRequest(rt.server, http.MethodGet, "/api/v1/usage/providers/unknown", "")
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = performRequest(rt.server, http.MethodGet, "/api/v1/usage/warnings", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var warnings map[string][]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &warnings))
	require.NotEmpty(t, warnings["warnings"])

	recorder = performRequest(rt.server, http.MethodGet, "/api/v1/usage/providers/open-meteo-weather/history?limit=5", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = performRequest(rt.server, http.MethodGet, "/api/v1/usage", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "open-meteo-weather")
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	rt := newRouterUnderTest(t, &stubAdvisor{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	recorder := httptest.NewRecorder()
	rt.server.Handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "trace-123", recorder.Header().Get(requestIDHeader))
	require.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())

	recorder = performRequest(rt.server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "airwise_http_requests_total")
}

func TestRouter_RateLimit(t *testing.T) {
	rt := newRouterUnderTest(t, &stubAdvisor{}, func(cfg *config.Config) {
		cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		recorder := performRequest(rt.server, http.MethodGet, "/api/v1/cache/stats", "")
		require.Equal(t, http.StatusOK, recorder.Code)
	}
	recorder := performRequest(rt.server, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	require.Equal(t, "rate_limit_exceeded", decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])
}

type routerUnderTest struct {
	server  *http.Server
	cache   *cache.Manager
	monitor *usage.Monitor
}

func newRouterUnderTest(t *testing.T, svc advisor.Service, mutate ...func(*config.Config)) routerUnderTest {
	t.Helper()
	logger := newTestLogger()

	cm, err := cache.NewManager(cachestore.NewMemoryStore(), cache.DefaultConfig(), nil, logger)
	require.NoError(t, err)
	usageCfg := usage.DefaultConfig()
	usageCfg.Providers = []usage.ProviderConfig{{Name: "open-meteo-weather", RateLimit: 10}}
	monitor, err := usage.NewMonitor(usageCfg, nil, nil, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
	for _, m := range mutate {
		m(cfg)
	}
	handler := NewHandler(svc, cm, monitor, logger)
	return routerUnderTest{
		server:  NewRouter(cfg, handler, prometheus.NewRegistry()),
		cache:   cm,
		monitor: monitor,
	}
}

func performRequest(server *http.Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubAdvisor struct {
	briefFn    func(ctx context.Context, req advisor.Request) (advisor.Response, error)
	assessFn   func(snap risk.Snapshot) (advisor.Evaluation, error)
	guidanceFn func(req advisor.GuidanceRequest) ([]string, error)
}

func (s *stubAdvisor) Brief(ctx context.Context, req advisor.Request) (advisor.Response, error) {
	if s.briefFn != nil {
		return s.briefFn(ctx, req)
	}
	return advisor.Response{}, nil
}

func (s *stubAdvisor) Assess(snap risk.Snapshot) (advisor.Evaluation, error) {
	if s.assessFn != nil {
		return s.assessFn(snap)
	}
	return advisor.Evaluation{}, nil
}

func (s *stubAdvisor) Guidance(req advisor.GuidanceRequest) ([]string, error) {
	if s.guidanceFn != nil {
		return s.guidanceFn(req)
	}
	return nil, nil
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
