package environ

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/airwise/internal/domain/advisor"
)

const (
	defaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	defaultWeatherURL    = "https://api.open-meteo.com/v1/forecast"
	defaultUserAgent     = "airwise/1.0"
	currentTimeLayout    = "2006-01-02T15:04"
)

// Config locates the upstream endpoints.
type Config struct {
	AirQualityURL string
	WeatherURL    string
	Timeout       time.Duration
	Retry         RetryPolicy
	UserAgent     string
}

// Client talks to the Open-Meteo APIs. Each data category is exposed as its
// own advisor.Fetcher so they can be cached and monitored independently.
type Client struct {
	airURL     string
	weatherURL string
	base       *BaseClient
}

// NewClient builds an API client.
func NewClient(cfg Config, opts ...BaseClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	retry := cfg.Retry
	if retry.MinWait <= 0 || retry.MaxWait <= 0 {
		retry = DefaultRetryPolicy()
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		airURL:     trimURL(cfg.AirQualityURL, defaultAirQualityURL),
		weatherURL: trimURL(cfg.WeatherURL, defaultWeatherURL),
		base:       NewBaseClient(&http.Client{Timeout: timeout}, "open-meteo", retry, ua, opts...),
	}
}

// Fetchers returns one fetcher per data category.
func (c *Client) Fetchers() []advisor.Fetcher {
	return []advisor.Fetcher{c.AirQuality(), c.Weather(), c.Pollen()}
}

func trimURL(raw, fallback string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		u = fallback
	}
	return strings.TrimRight(u, "/")
}

// currentBlock decodes the "current" block shared by every Open-Meteo endpoint.
// Absent or null variables stay nil.
type currentBlock struct {
	Time   string
	Values map[string]*float64
}

func (b *currentBlock) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Values = make(map[string]*float64, len(raw))
	for k, v := range raw {
		switch k {
		case "time":
			if err := json.Unmarshal(v, &b.Time); err != nil {
				return fmt.Errorf("decode current.time: %w", err)
			}
		case "interval":
		default:
			var f *float64
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decode current.%s: %w", k, err)
			}
			b.Values[k] = f
		}
	}
	return nil
}

func (b currentBlock) capturedAt() time.Time {
	ts, err := time.Parse(currentTimeLayout, b.Time)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

type apiResponse struct {
	Current currentBlock `json:"current"`
	Error   bool         `json:"error"`
	Reason  string       `json:"reason"`
}

func (c *Client) getCurrent(ctx context.Context, provider, endpoint string, lat, lon float64, variables []string, extra url.Values) (currentBlock, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", strings.Join(variables, ","))
	q.Set("timezone", "GMT")
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return currentBlock{}, &advisor.FetchError{Provider: provider, Err: fmt.Errorf("build request: %w", err)}
	}
	resp, err := c.base.Do(req)
	if err != nil {
		return currentBlock{}, &advisor.FetchError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return currentBlock{}, &advisor.FetchError{Provider: provider, Err: fmt.Errorf("read response: %w", err)}
	}
	var raw apiResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return currentBlock{}, &advisor.FetchError{Provider: provider, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.StatusCode >= 300 || raw.Error {
		reason := raw.Reason
		if reason == "" {
			reason = string(body)
		}
		return currentBlock{}, &advisor.FetchError{
			Provider: provider,
			Err:      fmt.Errorf("status=%d reason=%s", resp.StatusCode, reason),
		}
	}
	return raw.Current, nil
}
