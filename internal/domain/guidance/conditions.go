package guidance

import "github.com/yanqian/airwise/internal/domain/risk"

// Weather condition tags attached to a key.
const (
	ConditionHot      = "hot"
	ConditionCold     = "cold"
	ConditionHumid    = "humid"
	ConditionDry      = "dry"
	ConditionWindy    = "windy"
	ConditionRainy    = "rainy"
	ConditionHighUV   = "high_uv"
	ConditionStagnant = "stagnant"
)

// Semantic tags that can contradict the current conditions.
const (
	TagIncreaseHumidity = "increase_humidity"
	TagDecreaseHumidity = "decrease_humidity"
	TagWarmUp           = "warm_up"
	TagCoolDown         = "cool_down"
	TagVentilate        = "ventilate"
	TagOutdoorActivity  = "outdoor_activity"
	TagSunProtection    = "sun_protection"
)

// Comfort describes the band of conditions guidance treats as neutral.
type Comfort struct {
	HumidityMin float64
	HumidityMax float64
	HotAbove    float64
	ColdBelow   float64
	WindyAbove  float64
	HighUVFrom  float64
	StillBelow  float64
}

// DefaultComfort returns indoor-comfort oriented defaults.
func DefaultComfort() Comfort {
	return Comfort{
		HumidityMin: 30,
		HumidityMax: 60,
		HotAbove:    28,
		ColdBelow:   5,
		WindyAbove:  8,
		HighUVFrom:  6,
		StillBelow:  2,
	}
}

// Context is what a snapshot implies for guidance selection.
type Context struct {
	Conditions []string
	Excluded   []string
}

// Derive computes condition tags and contradiction exclusions. Readings that
// are absent neither add a condition nor exclude anything.
func Derive(snap risk.Snapshot, band risk.Band, c Comfort) Context {
	var ctx Context
	add := func(cond string) { ctx.Conditions = append(ctx.Conditions, cond) }
	exclude := func(tag string) { ctx.Excluded = append(ctx.Excluded, tag) }

	if t, ok := snap.Value(risk.FieldTemperature); ok {
		if t > c.HotAbove {
			add(ConditionHot)
			exclude(TagWarmUp)
		}
		if t < c.ColdBelow {
			add(ConditionCold)
			exclude(TagCoolDown)
		}
	}
	if h, ok := snap.Value(risk.FieldHumidity); ok {
		if h > c.HumidityMax {
			add(ConditionHumid)
			exclude(TagIncreaseHumidity)
		}
		if h < c.HumidityMin {
			add(ConditionDry)
			exclude(TagDecreaseHumidity)
		}
	}
	if w, ok := snap.Value(risk.FieldWindSpeed); ok {
		if w > c.WindyAbove {
			add(ConditionWindy)
		}
		if w < c.StillBelow {
			add(ConditionStagnant)
		}
	}
	if p, ok := snap.Value(risk.FieldPrecipitation); ok && p > 0 {
		add(ConditionRainy)
	}
	if uv, ok := snap.Value(risk.FieldUVIndex); ok {
		if uv >= c.HighUVFrom {
			add(ConditionHighUV)
		} else {
			exclude(TagSunProtection)
		}
	}

	switch band {
	case risk.BandHigh, risk.BandVeryHigh:
		exclude(TagVentilate)
		exclude(TagOutdoorActivity)
	}
	return ctx
}
