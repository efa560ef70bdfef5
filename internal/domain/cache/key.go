package cache

import (
	"math"
	"strconv"
	"strings"
)

// GeoKey composes a cache key from the calling function, the category and
// coordinates rounded to the configured precision, so callers inside the same
// cell share one entry.
func (m *Manager) GeoKey(function, category string, lat, lon float64) string {
	return GeoKey(m.cfg.Precision, function, category, lat, lon)
}

// GeoKey is the free-standing form of Manager.GeoKey.
func GeoKey(precision int, function, category string, lat, lon float64) string {
	var b strings.Builder
	b.WriteString(function)
	b.WriteByte(':')
	b.WriteString(category)
	b.WriteByte(':')
	b.WriteString(roundCoord(lat, precision))
	b.WriteByte(':')
	b.WriteString(roundCoord(lon, precision))
	return b.String()
}

func roundCoord(v float64, precision int) string {
	scale := math.Pow10(precision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		// -0.001 rounds to -0, which would otherwise format as "-0.00".
		r = 0
	}
	return strconv.FormatFloat(r, 'f', precision, 64)
}
