// Package mapbox resolves registry location names to coordinates with the
// Mapbox Geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/upstream"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// DefaultBaseURL is the Mapbox places endpoint.
const DefaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token    string
	baseURL  string
	upstream *upstream.Client
	logger   *slog.Logger
}

// NewClient creates a Mapbox geocoding client. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:    token,
		baseURL:  strings.TrimRight(baseURL, "/"),
		upstream: upstream.NewClient("mapbox", timeout),
		logger:   logger,
	}
}

// ForwardGeocode converts a place name and region to coordinates.
func (c *Client) ForwardGeocode(ctx context.Context, name, region string) (domain.GeocodingResult, error) {
	query := name
	if region != "" {
		query = fmt.Sprintf("%s, %s", name, region)
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place,locality"},
	}

	body, err := c.upstream.Get(ctx, u+"?"+params.Encode())
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("forward geocode %q: %w", query, err)
	}

	var mapboxResp response
	if err := json.Unmarshal(body, &mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}

	if len(mapboxResp.Features) == 0 {
		c.logger.Debug("no geocoding match", "query", query)
		return domain.GeocodingResult{}, nil
	}

	f := mapboxResp.Features[0]
	result := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}
	return result, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
