package guidance

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/yanqian/airwise/internal/domain/risk"
)

// DriverNone keys the all-clear content used when no factor dominates.
const DriverNone = "none"

// ErrInsufficientVariations is logged when a pool cannot fill a request.
var ErrInsufficientVariations = errors.New("insufficient guidance variations")

// Key selects the category of guidance to draw from.
type Key struct {
	Band       risk.Band
	Driver     string
	Conditions []string
}

// NewKey builds a key from a scoring outcome.
func NewKey(band risk.Band, driver risk.Factor, hasDriver bool, conditions ...string) Key {
	k := Key{Band: band, Driver: DriverNone}
	if hasDriver {
		k.Driver = string(driver)
	}
	for _, c := range conditions {
		c = strings.TrimSpace(c)
		if c != "" && !slices.Contains(k.Conditions, c) {
			k.Conditions = append(k.Conditions, c)
		}
	}
	return k
}

func (k Key) String() string {
	conds := "-"
	if len(k.Conditions) > 0 {
		conds = strings.Join(k.Conditions, "+")
	}
	return string(k.Band) + "/" + k.Driver + "/" + conds
}

// Selector samples non-repeating guidance from a pool. The pool is read-only
// so one selector can serve concurrent requests.
type Selector struct {
	pool   *Pool
	logger *slog.Logger
	intn   func(n int) int
}

// Option customises a Selector.
type Option func(*Selector)

// WithSeed makes sampling reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Selector) {
		var mu sync.Mutex
		r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		s.intn = func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return r.IntN(n)
		}
	}
}

// NewSelector wraps a pool.
func NewSelector(pool *Pool, logger *slog.Logger, opts ...Option) *Selector {
	s := &Selector{
		pool:   pool,
		logger: logger.With("component", "guidance.selector", "pool", pool.Name),
		intn:   rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample draws up to count items for the key, skipping anything tagged with
// an excluded tag and never returning two items of the same semantic group.
// Items written for the key's driver are preferred; driver-agnostic items for
// the same band fill the remainder.
func (s *Selector) Sample(key Key, count int, excluded []string) []string {
	if count <= 0 {
		return []string{}
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, tag := range excluded {
		skip[tag] = struct{}{}
	}

	narrow, narrowOrder := s.eligible(key, skip, false)
	chosen := s.pickGroups(narrowOrder, count, nil)

	if len(chosen) < count {
		wide, wideOrder := s.eligible(key, skip, true)
		taken := make(map[string]struct{}, len(chosen))
		for _, g := range chosen {
			taken[g] = struct{}{}
		}
		chosen = append(chosen, s.pickGroups(wideOrder, count-len(chosen), taken)...)
		for g, items := range wide {
			if _, ok := narrow[g]; !ok {
				narrow[g] = items
			}
		}
	}

	out := make([]string, 0, len(chosen))
	for _, g := range chosen {
		items := narrow[g]
		out = append(out, items[s.intn(len(items))].Text)
	}
	if len(out) < count {
		s.logger.Warn("guidance pool under-filled",
			"error", ErrInsufficientVariations,
			"key", key.String(),
			"requested", count,
			"returned", len(out))
	}
	return out
}

// eligible groups matching items by semantic group, preserving pool order.
func (s *Selector) eligible(key Key, skip map[string]struct{}, widened bool) (map[string][]Item, []string) {
	byGroup := make(map[string][]Item)
	var order []string
	for _, item := range s.pool.Items {
		if !matches(item, key, skip, widened) {
			continue
		}
		if _, seen := byGroup[item.Group]; !seen {
			order = append(order, item.Group)
		}
		byGroup[item.Group] = append(byGroup[item.Group], item)
	}
	return byGroup, order
}

func (s *Selector) pickGroups(order []string, want int, taken map[string]struct{}) []string {
	candidates := make([]string, 0, len(order))
	for _, g := range order {
		if _, ok := taken[g]; !ok {
			candidates = append(candidates, g)
		}
	}
	for i := len(candidates) - 1; i > 0; i-- {
		j := s.intn(i + 1)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	if len(candidates) > want {
		candidates = candidates[:want]
	}
	return candidates
}

func matches(item Item, key Key, skip map[string]struct{}, widened bool) bool {
	if len(item.Bands) > 0 && !slices.Contains(item.Bands, key.Band) {
		return false
	}
	for _, tag := range item.Tags {
		if _, blocked := skip[tag]; blocked {
			return false
		}
	}
	if len(item.Conditions) > 0 && !anyShared(item.Conditions, key.Conditions) {
		return false
	}
	if slices.Contains(item.Drivers, key.Driver) {
		return true
	}
	return widened && len(item.Drivers) == 0
}

func anyShared(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
