package risk

import "time"

// Factor names a scored pollutant or pollen.
type Factor string

const (
	FactorPM25   Factor = "pm2_5"
	FactorPM10   Factor = "pm10"
	FactorO3     Factor = "o3"
	FactorNO2    Factor = "no2"
	FactorSO2    Factor = "so2"
	FactorCO     Factor = "co"
	FactorNH3    Factor = "nh3"
	FactorPollen Factor = "pollen"
)

// Pollutants lists the seven gases/particulates in driver priority order.
var Pollutants = []Factor{FactorPM25, FactorPM10, FactorO3, FactorNO2, FactorSO2, FactorCO, FactorNH3}

// Factors lists every scored factor in driver priority order. Particulate
// matter outranks ozone, ozone outranks pollen, pollen outranks nitrogen dioxide.
var Factors = []Factor{FactorPM25, FactorPM10, FactorO3, FactorPollen, FactorNO2, FactorSO2, FactorCO, FactorNH3}

// Weather and sky fields addressable by synergy conditions.
const (
	FieldTemperature   = "temperature"
	FieldHumidity      = "humidity"
	FieldWindSpeed     = "wind_speed"
	FieldPressure      = "pressure"
	FieldPrecipitation = "precipitation"
	FieldUVIndex       = "uv_index"
)

// Band is the coarse risk classification derived from the total score.
type Band string

const (
	BandLow      Band = "low"
	BandModerate Band = "moderate"
	BandHigh     Band = "high"
	BandVeryHigh Band = "very_high"
)

// Bands lists every band from least to most severe.
var Bands = []Band{BandLow, BandModerate, BandHigh, BandVeryHigh}

// BandFor maps a total score onto its band.
func BandFor(score float64) Band {
	switch {
	case score < 25:
		return BandLow
	case score < 50:
		return BandModerate
	case score < 75:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

// Weather holds optional meteorological readings. A nil field means the
// provider did not report it.
type Weather struct {
	Temperature   *float64 `json:"temperature,omitempty"`   // °C
	Humidity      *float64 `json:"humidity,omitempty"`      // %
	WindSpeed     *float64 `json:"windSpeed,omitempty"`     // m/s
	Pressure      *float64 `json:"pressure,omitempty"`      // hPa
	Precipitation *float64 `json:"precipitation,omitempty"` // mm
}

// Snapshot is the environmental state at one point and time. Treat it as
// immutable once built; absent readings are simply left out.
type Snapshot struct {
	Pollutants map[Factor]float64 `json:"pollutants,omitempty"` // µg/m³
	Pollen     *float64           `json:"pollen,omitempty"`     // 0-100 index
	UVIndex    *float64           `json:"uvIndex,omitempty"`
	Weather    Weather            `json:"weather"`
	CapturedAt time.Time          `json:"capturedAt"`
}

// Value resolves a factor or weather field name against the snapshot.
func (s Snapshot) Value(name string) (float64, bool) {
	switch name {
	case string(FactorPollen):
		return deref(s.Pollen)
	case FieldUVIndex:
		return deref(s.UVIndex)
	case FieldTemperature:
		return deref(s.Weather.Temperature)
	case FieldHumidity:
		return deref(s.Weather.Humidity)
	case FieldWindSpeed:
		return deref(s.Weather.WindSpeed)
	case FieldPressure:
		return deref(s.Weather.Pressure)
	case FieldPrecipitation:
		return deref(s.Weather.Precipitation)
	}
	v, ok := s.Pollutants[Factor(name)]
	return v, ok
}

// IsEmpty reports whether the snapshot carries no readings at all.
func (s Snapshot) IsEmpty() bool {
	w := s.Weather
	return len(s.Pollutants) == 0 && s.Pollen == nil && s.UVIndex == nil &&
		w.Temperature == nil && w.Humidity == nil && w.WindSpeed == nil &&
		w.Pressure == nil && w.Precipitation == nil
}

// Merge overlays partial snapshots from several providers. Later parts win
// for fields they report; CapturedAt is the most recent capture.
func Merge(parts ...Snapshot) Snapshot {
	out := Snapshot{}
	for _, p := range parts {
		for f, v := range p.Pollutants {
			if out.Pollutants == nil {
				out.Pollutants = make(map[Factor]float64, len(p.Pollutants))
			}
			out.Pollutants[f] = v
		}
		out.Pollen = pick(out.Pollen, p.Pollen)
		out.UVIndex = pick(out.UVIndex, p.UVIndex)
		out.Weather.Temperature = pick(out.Weather.Temperature, p.Weather.Temperature)
		out.Weather.Humidity = pick(out.Weather.Humidity, p.Weather.Humidity)
		out.Weather.WindSpeed = pick(out.Weather.WindSpeed, p.Weather.WindSpeed)
		out.Weather.Pressure = pick(out.Weather.Pressure, p.Weather.Pressure)
		out.Weather.Precipitation = pick(out.Weather.Precipitation, p.Weather.Precipitation)
		if p.CapturedAt.After(out.CapturedAt) {
			out.CapturedAt = p.CapturedAt
		}
	}
	return out
}

// Ptr returns a pointer to v, handy when building snapshots by hand.
func Ptr(v float64) *float64 {
	return &v
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func pick(cur, next *float64) *float64 {
	if next != nil {
		v := *next
		return &v
	}
	return cur
}

// SynergyEffect records one interaction rule that fired.
type SynergyEffect struct {
	ID          string   `json:"id"`
	Factors     []string `json:"factors"`
	Description string   `json:"description"`
	Bonus       float64  `json:"bonus"`
}

// Assessment is the explainable result of scoring a snapshot.
type Assessment struct {
	Score         float64            `json:"score"`
	Band          Band               `json:"band"`
	Contributions map[Factor]float64 `json:"contributions"`
	Penalties     map[string]float64 `json:"penalties"`
	Synergies     []SynergyEffect    `json:"synergies"`
	Missing       []Factor           `json:"missing,omitempty"`
}

// HasSynergyWith reports whether any active synergy involves the factor.
func (a Assessment) HasSynergyWith(f Factor) bool {
	for _, s := range a.Synergies {
		for _, name := range s.Factors {
			if name == string(f) {
				return true
			}
		}
	}
	return false
}
