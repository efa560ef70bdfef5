package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidSnapshot marks malformed or out-of-range scorer input.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Penalty identifiers reported in Assessment.Penalties.
const (
	PenaltyStagnation = "stagnation"
	PenaltyInversion  = "inversion"
	PenaltyHeat       = "heat"
	PenaltyHumidity   = "humidity"
	PenaltyUV         = "uv"
)

const maxScore = 100

// Scorer turns snapshots into assessments. It holds only read-only reference
// data and is safe for concurrent use.
type Scorer struct {
	table Table
}

// NewScorer validates the table and builds a scorer around it.
func NewScorer(table Table) (*Scorer, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("threshold table: %w", err)
	}
	return &Scorer{table: table}, nil
}

// Table exposes the reference data the scorer was built with.
func (s *Scorer) Table() Table {
	return s.table
}

// Score computes the risk assessment for a snapshot. Absent readings are
// skipped rather than assumed safe.
func (s *Scorer) Score(snap Snapshot) (Assessment, error) {
	if err := s.validate(snap); err != nil {
		return Assessment{}, err
	}

	a := Assessment{
		Contributions: make(map[Factor]float64),
		Penalties:     make(map[string]float64),
		Synergies:     []SynergyEffect{},
	}

	var total float64
	for _, f := range Factors {
		v, ok := snap.Value(string(f))
		if !ok {
			a.Missing = append(a.Missing, f)
			continue
		}
		c := s.contribution(f, v)
		a.Contributions[f] = c
		total += c
	}

	for _, p := range s.penalties(snap) {
		a.Penalties[p.name] = p.points
		total += p.points
	}

	for _, rule := range s.table.Synergies {
		if !s.satisfied(rule, snap) {
			continue
		}
		a.Synergies = append(a.Synergies, SynergyEffect{
			ID:          rule.ID,
			Factors:     ruleFields(rule),
			Description: rule.Description,
			Bonus:       rule.Bonus,
		})
		total += rule.Bonus
	}

	a.Score = math.Max(0, math.Min(maxScore, total))
	a.Band = BandFor(a.Score)
	return a, nil
}

func (s *Scorer) contribution(f Factor, value float64) float64 {
	th, _ := s.table.Factor(f)
	return math.Min(th.Cap, value/th.SafeThreshold*th.Weight)
}

type penalty struct {
	name   string
	points float64
}

func (s *Scorer) penalties(snap Snapshot) []penalty {
	c := s.table.Comfort
	var out []penalty
	if wind, ok := snap.Value(FieldWindSpeed); ok && wind < c.StagnationWind {
		out = append(out, penalty{PenaltyStagnation, (c.StagnationWind - wind) * c.StagnationRate})
	}
	// High pressure only matters when there is already something to trap.
	if pressure, ok := snap.Value(FieldPressure); ok && pressure > c.InversionPressure && s.anyElevated(snap) {
		out = append(out, penalty{PenaltyInversion, (pressure - c.InversionPressure) * c.InversionRate})
	}
	if temp, ok := snap.Value(FieldTemperature); ok && temp > c.HeatTemperature {
		out = append(out, penalty{PenaltyHeat, (temp - c.HeatTemperature) * c.HeatRate})
	}
	if hum, ok := snap.Value(FieldHumidity); ok && hum > c.HumidityMax {
		out = append(out, penalty{PenaltyHumidity, (hum - c.HumidityMax) * c.HumidityRate})
	}
	if uv, ok := snap.Value(FieldUVIndex); ok && uv > c.UVMax {
		out = append(out, penalty{PenaltyUV, (uv - c.UVMax) * c.UVRate})
	}
	return out
}

func (s *Scorer) anyElevated(snap Snapshot) bool {
	for _, f := range Pollutants {
		if v, ok := snap.Pollutants[f]; ok && v >= s.table.Factors[f].SafeThreshold {
			return true
		}
	}
	return false
}

func (s *Scorer) satisfied(rule SynergyRule, snap Snapshot) bool {
	for _, cond := range rule.Conditions {
		v, ok := snap.Value(cond.Field)
		if !ok {
			return false
		}
		threshold := cond.Threshold
		if cond.Relative {
			threshold *= s.table.Factors[Factor(cond.Field)].SafeThreshold
		}
		switch cond.Op {
		case OpAtLeast:
			if v < threshold {
				return false
			}
		case OpBelow:
			if v >= threshold {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func ruleFields(rule SynergyRule) []string {
	out := make([]string, 0, len(rule.Conditions))
	for _, c := range rule.Conditions {
		out = append(out, c.Field)
	}
	return out
}

func (s *Scorer) validate(snap Snapshot) error {
	names := make([]string, 0, len(snap.Pollutants))
	for f := range snap.Pollutants {
		names = append(names, string(f))
	}
	sort.Strings(names)
	for _, name := range names {
		f := Factor(name)
		if _, known := s.table.Factors[f]; !known || f == FactorPollen {
			return invalid("unknown pollutant %q", name)
		}
		if err := nonNegative(name, snap.Pollutants[f]); err != nil {
			return err
		}
	}
	checks := []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{string(FactorPollen), snap.Pollen, 0, 100},
		{FieldUVIndex, snap.UVIndex, 0, math.Inf(1)},
		{FieldHumidity, snap.Weather.Humidity, 0, 100},
		{FieldWindSpeed, snap.Weather.WindSpeed, 0, math.Inf(1)},
		{FieldPressure, snap.Weather.Pressure, 0, math.Inf(1)},
		{FieldPrecipitation, snap.Weather.Precipitation, 0, math.Inf(1)},
		{FieldTemperature, snap.Weather.Temperature, math.Inf(-1), math.Inf(1)},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		v := *c.value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("%s must be finite", c.name)
		}
		if v < c.min || v > c.max {
			return invalid("%s %.2f out of range", c.name, v)
		}
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid("%s must be finite", name)
	}
	if v < 0 {
		return invalid("%s cannot be negative", name)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSnapshot, fmt.Sprintf(format, args...))
}
