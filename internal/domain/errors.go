package domain

import "errors"

var (
	// ErrProviderUnavailable marks a network, timeout, or malformed-payload
	// failure from an external data source.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrArchiveCorrupt marks a persisted archive that could not be read or parsed.
	ErrArchiveCorrupt = errors.New("archive corrupt")

	// ErrIncompleteLocationData marks a location series that does not cover the
	// full forecast horizon, or an aggregation that is missing locations.
	ErrIncompleteLocationData = errors.New("incomplete location data")

	// ErrInvalidRegistry is a configuration error raised while building a Registry.
	ErrInvalidRegistry = errors.New("invalid location registry")

	// ErrUnknownIndicator is returned when no threshold table exists for an indicator.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrPositioningParse marks a positioning report whose text could not be parsed.
	ErrPositioningParse = errors.New("positioning report parse failure")
)
