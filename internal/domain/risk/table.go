package risk

import (
	"errors"
	"fmt"
)

// Threshold is the reference data for a single factor.
type Threshold struct {
	SafeThreshold float64
	Weight        float64
	Cap           float64
}

// Comfort bounds the weather band inside which no penalty applies.
type Comfort struct {
	StagnationWind    float64 // m/s; calmer air traps pollutants
	StagnationRate    float64 // points per m/s below StagnationWind
	InversionPressure float64 // hPa
	InversionRate     float64 // points per hPa above InversionPressure
	HeatTemperature   float64 // °C
	HeatRate          float64
	HumidityMax       float64 // %
	HumidityRate      float64
	UVMax             float64
	UVRate            float64
}

// Op is a synergy condition comparator.
type Op string

const (
	OpAtLeast Op = "gte"
	OpBelow   Op = "lt"
)

// Condition is one clause of a synergy rule. When Relative is set the
// threshold is a multiple of the factor's safe threshold.
type Condition struct {
	Field     string
	Op        Op
	Threshold float64
	Relative  bool
}

// SynergyRule adds Bonus points when every condition holds.
type SynergyRule struct {
	ID          string
	Description string
	Conditions  []Condition
	Bonus       float64
}

// Table is the static reference data the scorer runs on.
type Table struct {
	Factors     map[Factor]Threshold
	Comfort     Comfort
	Synergies   []SynergyRule
	DriverFloor float64 // fraction of a factor's cap it must exceed to be the primary driver
}

// DefaultTable returns the built-in thresholds. Safe thresholds follow the
// WHO air quality guideline levels where one exists.
func DefaultTable() Table {
	return Table{
		Factors: map[Factor]Threshold{
			FactorPM25:   {SafeThreshold: 15, Weight: 25, Cap: 50},
			FactorPM10:   {SafeThreshold: 45, Weight: 12, Cap: 25},
			FactorO3:     {SafeThreshold: 100, Weight: 20, Cap: 30},
			FactorNO2:    {SafeThreshold: 25, Weight: 12, Cap: 20},
			FactorSO2:    {SafeThreshold: 40, Weight: 8, Cap: 15},
			FactorCO:     {SafeThreshold: 4000, Weight: 6, Cap: 15},
			FactorNH3:    {SafeThreshold: 200, Weight: 4, Cap: 10},
			FactorPollen: {SafeThreshold: 30, Weight: 8, Cap: 25},
		},
		Comfort: Comfort{
			StagnationWind:    2.0,
			StagnationRate:    3.0,
			InversionPressure: 1025,
			InversionRate:     0.5,
			HeatTemperature:   30,
			HeatRate:          1.0,
			HumidityMax:       80,
			HumidityRate:      0.25,
			UVMax:             8,
			UVRate:            1.0,
		},
		Synergies:   DefaultSynergies(),
		DriverFloor: 0.6,
	}
}

// DefaultSynergies returns the built-in interaction rules in evaluation order.
func DefaultSynergies() []SynergyRule {
	return []SynergyRule{
		{
			ID:          "particulate_ozone",
			Description: "Fine particles and ozone together inflame airways more than either alone.",
			Conditions: []Condition{
				{Field: string(FactorPM25), Op: OpAtLeast, Threshold: 1, Relative: true},
				{Field: string(FactorO3), Op: OpAtLeast, Threshold: 1, Relative: true},
			},
			Bonus: 25,
		},
		{
			ID:          "humidity_pollen",
			Description: "Humid air ruptures pollen grains into finer, deeper-reaching fragments.",
			Conditions: []Condition{
				{Field: FieldHumidity, Op: OpAtLeast, Threshold: 70},
				{Field: string(FactorPollen), Op: OpAtLeast, Threshold: 1, Relative: true},
			},
			Bonus: 10,
		},
		{
			ID:          "heat_ozone_uv",
			Description: "Heat and strong sunlight accelerate ozone formation near the ground.",
			Conditions: []Condition{
				{Field: FieldTemperature, Op: OpAtLeast, Threshold: 30},
				{Field: string(FactorO3), Op: OpAtLeast, Threshold: 0.8, Relative: true},
				{Field: FieldUVIndex, Op: OpAtLeast, Threshold: 6},
			},
			Bonus: 12,
		},
		{
			ID:          "nitrogen_ozone",
			Description: "Nitrogen dioxide primes the lungs to react more strongly to ozone.",
			Conditions: []Condition{
				{Field: string(FactorNO2), Op: OpAtLeast, Threshold: 1, Relative: true},
				{Field: string(FactorO3), Op: OpAtLeast, Threshold: 1, Relative: true},
			},
			Bonus: 8,
		},
		{
			ID:          "stagnant_particulate",
			Description: "Still air lets fine particles accumulate close to street level.",
			Conditions: []Condition{
				{Field: FieldWindSpeed, Op: OpBelow, Threshold: 2},
				{Field: string(FactorPM25), Op: OpAtLeast, Threshold: 1, Relative: true},
			},
			Bonus: 8,
		},
		{
			ID:          "sulfur_coarse_particulate",
			Description: "Sulfur dioxide binds to coarse particles and is carried deeper into the lungs.",
			Conditions: []Condition{
				{Field: string(FactorSO2), Op: OpAtLeast, Threshold: 1, Relative: true},
				{Field: string(FactorPM10), Op: OpAtLeast, Threshold: 1, Relative: true},
			},
			Bonus: 6,
		},
		{
			ID:          "particulate_pollen",
			Description: "Particulate pollution makes pollen allergens more potent.",
			Conditions: []Condition{
				{Field: string(FactorPM25), Op: OpAtLeast, Threshold: 1, Relative: true},
				{Field: string(FactorPollen), Op: OpAtLeast, Threshold: 1, Relative: true},
			},
			Bonus: 8,
		},
	}
}

// Factor returns the threshold row for f.
func (t Table) Factor(f Factor) (Threshold, bool) {
	th, ok := t.Factors[f]
	return th, ok
}

// Validate checks the table is complete and keeps scoring monotonic.
func (t Table) Validate() error {
	for _, f := range Factors {
		th, ok := t.Factor(f)
		if !ok {
			return fmt.Errorf("factor %s missing from threshold table", f)
		}
		if th.SafeThreshold <= 0 || th.Weight <= 0 || th.Cap <= 0 {
			return fmt.Errorf("factor %s: safeThreshold, weight and cap must be positive", f)
		}
	}
	if t.DriverFloor < 0 || t.DriverFloor > 1 {
		return errors.New("driver floor must be within [0, 1]")
	}
	seen := make(map[string]struct{}, len(t.Synergies))
	for _, rule := range t.Synergies {
		if rule.ID == "" {
			return errors.New("synergy rule id cannot be empty")
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("duplicate synergy rule %s", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if rule.Bonus < 0 {
			return fmt.Errorf("synergy %s: bonus cannot be negative", rule.ID)
		}
		if len(rule.Conditions) == 0 {
			return fmt.Errorf("synergy %s: at least one condition required", rule.ID)
		}
		for _, cond := range rule.Conditions {
			if err := t.validateCondition(cond); err != nil {
				return fmt.Errorf("synergy %s: %w", rule.ID, err)
			}
		}
	}
	return nil
}

func (t Table) validateCondition(c Condition) error {
	if c.Op != OpAtLeast && c.Op != OpBelow {
		return fmt.Errorf("unknown operator %q", c.Op)
	}
	_, isFactor := t.Factors[Factor(c.Field)]
	if !isFactor && !isWeatherField(c.Field) {
		return fmt.Errorf("unknown field %q", c.Field)
	}
	if c.Relative && !isFactor {
		return fmt.Errorf("field %q has no safe threshold to be relative to", c.Field)
	}
	// A "below" clause on a concentration would let more pollution lower the score.
	if isFactor && c.Op != OpAtLeast {
		return fmt.Errorf("factor %q only supports %q conditions", c.Field, OpAtLeast)
	}
	return nil
}

func isWeatherField(name string) bool {
	switch name {
	case FieldTemperature, FieldHumidity, FieldWindSpeed, FieldPressure, FieldPrecipitation, FieldUVIndex:
		return true
	}
	return false
}
