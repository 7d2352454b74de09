package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// RegistryFile is the YAML layout of REGISTRY_PATH:
//
//	version: gw-2024
//	region: United States
//	locations:
//	  - {id: chicago, name: Chicago, lat: 41.87, lon: -87.62, weight: 0.25}
//	  - {id: toronto, name: Toronto, region: Ontario, weight: 0.05}
//	indicators:
//	  EPO:
//	    direction: descending
//	    cuts: [{label: extreme, bound: -1.5}]
//
// Omitted locations fall back to the built-in eight-city table. A location
// without lat/lon is geocoded by name, qualified by its own region or the
// file-level one. Indicator entries replace or extend the built-in threshold
// tables.
type RegistryFile struct {
	Version    string                                     `yaml:"version"`
	Region     string                                     `yaml:"region"`
	Locations  []RegistryLocation                         `yaml:"locations"`
	Indicators map[domain.Indicator]domain.ThresholdTable `yaml:"indicators"`
}

// RegistryLocation is one YAML location entry. Lat and Lon must be given
// together or not at all.
type RegistryLocation struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Region string   `yaml:"region"`
	Lat    *float64 `yaml:"lat"`
	Lon    *float64 `yaml:"lon"`
	Weight float64  `yaml:"weight"`
}

// LoadRegistry builds the location registry and threshold tables. An empty
// path yields the built-in defaults. geocoder may be nil when every entry
// carries coordinates.
func LoadRegistry(ctx context.Context, path string, geocoder domain.Geocoder, logger *slog.Logger) (*domain.Registry, map[domain.Indicator]domain.ThresholdTable, error) {
	var file RegistryFile
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read registry %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidRegistry, path, err)
		}
	}

	locs := domain.DefaultLocations()
	if len(file.Locations) > 0 {
		var err error
		locs, err = resolveLocations(ctx, file, geocoder, logger)
		if err != nil {
			return nil, nil, err
		}
	}
	reg, err := domain.NewRegistry(file.Version, locs)
	if err != nil {
		return nil, nil, err
	}

	tables := domain.DefaultThresholdTables()
	for ind, table := range file.Indicators {
		tables[domain.Indicator(strings.ToUpper(string(ind)))] = table
	}
	return reg, tables, nil
}

func resolveLocations(ctx context.Context, file RegistryFile, geocoder domain.Geocoder, logger *slog.Logger) ([]domain.Location, error) {
	locs := make([]domain.Location, 0, len(file.Locations))
	for _, entry := range file.Locations {
		loc := domain.Location{ID: entry.ID, Name: entry.Name, Weight: entry.Weight}

		switch {
		case entry.Lat != nil && entry.Lon != nil:
			loc.Lat, loc.Lon = *entry.Lat, *entry.Lon
		case entry.Lat != nil || entry.Lon != nil:
			return nil, fmt.Errorf("%w: location %q sets only one of lat/lon", domain.ErrInvalidRegistry, entry.ID)
		default:
			region := entry.Region
			if region == "" {
				region = file.Region
			}
			var err error
			loc, err = domain.GeocodeLocation(ctx, loc, region, geocoder, logger)
			if err != nil {
				return nil, err
			}
		}
		locs = append(locs, loc)
	}
	return locs, nil
}
