package domain

import "context"

// GeocodingResult is a place resolved from a name.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves place names to coordinates.
type Geocoder interface {
	// ForwardGeocode converts a place name and region (state, province, or
	// country) to coordinates. An empty result means no match.
	ForwardGeocode(ctx context.Context, name, region string) (GeocodingResult, error)
}
