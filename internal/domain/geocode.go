package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// MinGeocodeConfidence is the lowest provider confidence accepted for a
// registry location.
const MinGeocodeConfidence = 0.5

// GeocodeLocation fills loc's coordinates by forward-geocoding its name.
// Registry entries are configuration, so every failure is ErrInvalidRegistry:
// the service should not start with a location it cannot place.
func GeocodeLocation(ctx context.Context, loc Location, region string, geocoder Geocoder, logger *slog.Logger) (Location, error) {
	if loc.Name == "" {
		return loc, fmt.Errorf("%w: location %q has no coordinates and no name to geocode", ErrInvalidRegistry, loc.ID)
	}
	if geocoder == nil {
		return loc, fmt.Errorf("%w: location %q has no coordinates and geocoding is disabled", ErrInvalidRegistry, loc.ID)
	}

	result, err := geocoder.ForwardGeocode(ctx, loc.Name, region)
	if err != nil {
		return loc, fmt.Errorf("%w: geocode %q: %v", ErrInvalidRegistry, loc.ID, err)
	}
	if result.Lat == 0 && result.Lon == 0 {
		return loc, fmt.Errorf("%w: geocode %q: no match for %q", ErrInvalidRegistry, loc.ID, loc.Name)
	}
	if result.Confidence < MinGeocodeConfidence {
		return loc, fmt.Errorf("%w: geocode %q: best match %q has confidence %.2f",
			ErrInvalidRegistry, loc.ID, result.FormattedAddress, result.Confidence)
	}

	loc.Lat, loc.Lon = result.Lat, result.Lon
	logger.Info("registry location geocoded",
		"location", loc.ID,
		"match", result.FormattedAddress,
		"lat", loc.Lat,
		"lon", loc.Lon,
		"confidence", result.Confidence,
	)
	return loc, nil
}
