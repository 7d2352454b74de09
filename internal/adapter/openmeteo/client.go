// Package openmeteo implements domain.ForecastProvider on the Open-Meteo
// daily forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/upstream"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
)

// DefaultBaseURL is the public Open-Meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// Client implements domain.ForecastProvider using the Open-Meteo API.
type Client struct {
	baseURL  string
	upstream *upstream.Client
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewClient creates an Open-Meteo client. Each request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		upstream: upstream.NewClient("open-meteo", timeout),
		metrics:  metrics,
		logger:   logger,
	}
}

// DailyTemperatures returns days of daily max/min temperatures in °F for loc.
// Days the API reports as null come back as NaN so the degree-day conversion
// can reject the series.
func (c *Client) DailyTemperatures(ctx context.Context, loc domain.Location, days int) ([]domain.TemperaturePair, error) {
	params := url.Values{
		"latitude":         {strconv.FormatFloat(loc.Lat, 'f', -1, 64)},
		"longitude":        {strconv.FormatFloat(loc.Lon, 'f', -1, 64)},
		"daily":            {"temperature_2m_max,temperature_2m_min"},
		"temperature_unit": {"fahrenheit"},
		"forecast_days":    {strconv.Itoa(days)},
		"timezone":         {"auto"},
	}

	start := time.Now()
	body, err := c.upstream.Get(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.ForecastAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("forecast for %s: %w", loc.ID, err)
	}

	temps, err := decodeDaily(body)
	if err != nil {
		c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("forecast for %s: %w", loc.ID, err)
	}

	c.metrics.ForecastRequests.WithLabelValues("success").Inc()
	c.logger.Debug("forecast fetched", "location", loc.ID, "days", len(temps))
	return temps, nil
}

func decodeDaily(body []byte) ([]domain.TemperaturePair, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.Error {
		return nil, fmt.Errorf("%w: api error: %s", domain.ErrProviderUnavailable, resp.Reason)
	}
	if len(resp.Daily.Max) != len(resp.Daily.Min) {
		return nil, fmt.Errorf("%w: %d max values but %d min values",
			domain.ErrProviderUnavailable, len(resp.Daily.Max), len(resp.Daily.Min))
	}

	temps := make([]domain.TemperaturePair, len(resp.Daily.Max))
	for i := range temps {
		temps[i] = domain.TemperaturePair{Max: valueOrNaN(resp.Daily.Max[i]), Min: valueOrNaN(resp.Daily.Min[i])}
	}
	return temps, nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Open-Meteo API response types.

type response struct {
	Daily  daily  `json:"daily"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

type daily struct {
	Time []string   `json:"time"`
	Max  []*float64 `json:"temperature_2m_max"`
	Min  []*float64 `json:"temperature_2m_min"`
}
