package advisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/yanqian/airwise/internal/domain/guidance"
	"github.com/yanqian/airwise/internal/domain/risk"
)

// ErrNoData means the provider answered but had nothing for the location.
// It is never replaced by assumed values.
var ErrNoData = errors.New("no data available")

// FetchError wraps an upstream failure with the provider that produced it.
type FetchError struct {
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Request is the payload accepted by Brief.
type Request struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Tags      []string `json:"tags"`
	Count     int      `json:"count"`
}

// Source reports how one data category was obtained.
type Source struct {
	Category string `json:"category"`
	Provider string `json:"provider"`
	Cached   bool   `json:"cached"`
	Error    string `json:"error,omitempty"`
}

// Response is the assembled briefing.
type Response struct {
	ID            string          `json:"id"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	Score         float64         `json:"score"`
	Band          risk.Band       `json:"band"`
	PrimaryDriver string          `json:"primaryDriver"`
	Assessment    risk.Assessment `json:"assessment"`
	Conditions    []string        `json:"conditions"`
	Tips          []string        `json:"tips"`
	Actions       []string        `json:"actions"`
	Sources       []Source        `json:"sources"`
	Missing       []string        `json:"missing,omitempty"`
	Snapshot      risk.Snapshot   `json:"snapshot"`
	GeneratedAt   time.Time       `json:"generatedAt"`
}

// Evaluation is the result of scoring a caller-supplied snapshot.
type Evaluation struct {
	Assessment    risk.Assessment `json:"assessment"`
	PrimaryDriver string          `json:"primaryDriver"`
	Conditions    []string        `json:"conditions"`
}

// GuidanceRequest samples one pool directly.
type GuidanceRequest struct {
	Pool       string
	Band       risk.Band
	Driver     string
	Count      int
	Conditions []string
	Exclude    []string
}

// Config wires runtime knobs for the advisor domain.
type Config struct {
	DefaultCount int
	MaxCount     int
	Comfort      guidance.Comfort
}

// DefaultConfig returns the shipped defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCount: 3,
		MaxCount:     10,
		Comfort:      guidance.DefaultComfort(),
	}
}
