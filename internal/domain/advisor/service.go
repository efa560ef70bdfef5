package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yanqian/airwise/internal/domain/cache"
	"github.com/yanqian/airwise/internal/domain/guidance"
	"github.com/yanqian/airwise/internal/domain/risk"
	"github.com/yanqian/airwise/internal/domain/usage"
	apperrors "github.com/yanqian/airwise/pkg/errors"
	"github.com/yanqian/airwise/pkg/util"
)

// Service exposes risk briefings and the building blocks behind them.
type Service interface {
	Brief(ctx context.Context, req Request) (Response, error)
	Assess(snap risk.Snapshot) (Evaluation, error)
	Guidance(req GuidanceRequest) ([]string, error)
}

// Fetcher pulls one category of environmental data from an upstream.
type Fetcher interface {
	Provider() string
	Category() string
	Fetch(ctx context.Context, lat, lon float64) (risk.Snapshot, error)
}

type service struct {
	cfg       Config
	scorer    *risk.Scorer
	selectors map[string]*guidance.Selector
	cache     *cache.Manager
	monitor   *usage.Monitor
	fetchers  []Fetcher
	clock     util.Clock
	logger    *slog.Logger
	newID     func() string
}

// NewService wires up the advisor domain. The catalog must carry the tips
// and actions pools.
func NewService(
	cfg Config,
	scorer *risk.Scorer,
	catalog *guidance.Catalog,
	cacheManager *cache.Manager,
	monitor *usage.Monitor,
	fetchers []Fetcher,
	clock util.Clock,
	logger *slog.Logger,
	opts ...guidance.Option,
) (Service, error) {
	if scorer == nil || catalog == nil || cacheManager == nil || monitor == nil {
		return nil, errors.New("advisor: scorer, catalog, cache and monitor are required")
	}
	if cfg.DefaultCount <= 0 || cfg.MaxCount < cfg.DefaultCount {
		return nil, fmt.Errorf("advisor: invalid guidance counts default=%d max=%d", cfg.DefaultCount, cfg.MaxCount)
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	selectors := make(map[string]*guidance.Selector)
	for _, name := range catalog.Names() {
		pool, _ := catalog.Pool(name)
		selectors[name] = guidance.NewSelector(pool, logger, opts...)
	}
	for _, required := range []string{guidance.PoolTips, guidance.PoolActions} {
		if _, ok := selectors[required]; !ok {
			return nil, fmt.Errorf("advisor: guidance catalog missing pool %q", required)
		}
	}
	return &service{
		cfg:       cfg,
		scorer:    scorer,
		selectors: selectors,
		cache:     cacheManager,
		monitor:   monitor,
		fetchers:  fetchers,
		clock:     clock,
		logger:    logger.With("component", "advisor.service"),
		newID:     uuid.NewString,
	}, nil
}

type fetchResult struct {
	snap   risk.Snapshot
	source Source
	err    error
}

func (s *service) Brief(ctx context.Context, req Request) (Response, error) {
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		return Response{}, apperrors.Wrap(apperrors.CodeInvalidInput, err.Error(), nil)
	}
	count, err := s.resolveCount(req.Count)
	if err != nil {
		return Response{}, err
	}
	if len(s.fetchers) == 0 {
		return Response{}, apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "no upstream providers configured", nil)
	}

	results := make([]fetchResult, len(s.fetchers))
	var g errgroup.Group
	for i, f := range s.fetchers {
		g.Go(func() error {
			// Category failures are recorded in results so the others can
			// still be scored; only the caller going away aborts the briefing.
			results[i] = s.fetchCategory(ctx, f, req.Latitude, req.Longitude)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, fmt.Errorf("briefing cancelled: %w", err)
	}

	var (
		parts   []risk.Snapshot
		sources = make([]Source, 0, len(results))
		missing []string
		noData  = true
	)
	for _, r := range results {
		sources = append(sources, r.source)
		if r.err != nil {
			missing = append(missing, r.source.Category)
			if !errors.Is(r.err, ErrNoData) {
				noData = false
			}
			continue
		}
		parts = append(parts, r.snap)
	}
	if len(parts) == 0 {
		if noData {
			return Response{}, apperrors.Wrap(apperrors.CodeNoData, "no environmental data available for this location", nil)
		}
		return Response{}, apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "all environmental data providers failed", results[0].err)
	}

	snap := risk.Merge(parts...)
	assessment, err := s.scorer.Score(snap)
	if err != nil {
		return Response{}, apperrors.Wrap(apperrors.CodeInvalidSnapshot, "upstream returned an invalid snapshot", err)
	}
	driver, hasDriver := s.scorer.SelectDriver(assessment)
	gctx := guidance.Derive(snap, assessment.Band, s.cfg.Comfort)
	conditions := append(slices.Clone(gctx.Conditions), normalizeTags(req.Tags)...)
	key := guidance.NewKey(assessment.Band, driver, hasDriver, conditions...)

	res := Response{
		ID:            s.newID(),
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Score:         assessment.Score,
		Band:          assessment.Band,
		PrimaryDriver: key.Driver,
		Assessment:    assessment,
		Conditions:    key.Conditions,
		Tips:          s.selectors[guidance.PoolTips].Sample(key, count, gctx.Excluded),
		Actions:       s.selectors[guidance.PoolActions].Sample(key, count, gctx.Excluded),
		Sources:       sources,
		Missing:       missing,
		Snapshot:      snap,
		GeneratedAt:   s.clock.Now(),
	}
	s.logger.Info("briefing assembled",
		"id", res.ID,
		"score", math.Round(res.Score*10)/10,
		"band", res.Band,
		"driver", res.PrimaryDriver,
		"missing", missing)
	return res, nil
}

func (s *service) fetchCategory(ctx context.Context, f Fetcher, lat, lon float64) fetchResult {
	src := Source{Category: f.Category(), Provider: f.Provider()}
	key := s.cache.GeoKey(f.Provider(), f.Category(), lat, lon)

	raw, cached, err := s.cache.GetOrLoad(ctx, key, f.Category(), func(loadCtx context.Context) ([]byte, error) {
		start := time.Now()
		snap, err := f.Fetch(loadCtx, lat, lon)
		s.monitor.RecordCall(f.Provider(), err == nil || errors.Is(err, ErrNoData), time.Since(start))
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	})
	src.Cached = cached
	if err != nil {
		src.Error = errorCode(err)
		s.logger.Warn("category fetch failed", "provider", src.Provider, "category", src.Category, "error", err)
		return fetchResult{source: src, err: err}
	}

	var snap risk.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		src.Error = apperrors.CodeCacheUnavailable
		s.logger.Warn("cached snapshot undecodable", "key", key, "error", err)
		return fetchResult{source: src, err: fmt.Errorf("decode cached snapshot: %w", err)}
	}
	return fetchResult{snap: snap, source: src}
}

func (s *service) Assess(snap risk.Snapshot) (Evaluation, error) {
	assessment, err := s.scorer.Score(snap)
	if err != nil {
		return Evaluation{}, apperrors.Wrap(apperrors.CodeInvalidSnapshot, "snapshot rejected", err)
	}
	driver, ok := s.scorer.SelectDriver(assessment)
	name := guidance.DriverNone
	if ok {
		name = string(driver)
	}
	return Evaluation{
		Assessment:    assessment,
		PrimaryDriver: name,
		Conditions:    guidance.Derive(snap, assessment.Band, s.cfg.Comfort).Conditions,
	}, nil
}

func (s *service) Guidance(req GuidanceRequest) ([]string, error) {
	pool := req.Pool
	if pool == "" {
		pool = guidance.PoolTips
	}
	sel, ok := s.selectors[pool]
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown guidance pool %q", pool), nil)
	}
	if !slices.Contains(risk.Bands, req.Band) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown risk band %q", req.Band), nil)
	}
	driver := strings.TrimSpace(req.Driver)
	hasDriver := driver != "" && driver != guidance.DriverNone
	if hasDriver && !slices.Contains(risk.Factors, risk.Factor(driver)) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown driver %q", driver), nil)
	}
	count, err := s.resolveCount(req.Count)
	if err != nil {
		return nil, err
	}
	key := guidance.NewKey(req.Band, risk.Factor(driver), hasDriver, normalizeTags(req.Conditions)...)
	return sel.Sample(key, count, req.Exclude), nil
}

func (s *service) resolveCount(n int) (int, error) {
	switch {
	case n == 0:
		return s.cfg.DefaultCount, nil
	case n < 0 || n > s.cfg.MaxCount:
		return 0, apperrors.Wrap(apperrors.CodeInvalidInput,
			fmt.Sprintf("count must be between 1 and %d", s.cfg.MaxCount), nil)
	default:
		return n, nil
	}
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return errors.New("latitude must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return errors.New("longitude must be between -180 and 180")
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoData):
		return apperrors.CodeNoData
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return apperrors.CodeUpstreamUnavailable
	}
}
