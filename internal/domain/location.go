package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// WeightTolerance is how far the raw weight sum may drift from 1 before the
// registry is rejected.
const WeightTolerance = 0.01

var validate = validator.New()

// Location is a weighted forecast point.
type Location struct {
	ID     string  `json:"id" yaml:"id" validate:"required"`
	Name   string  `json:"name,omitempty" yaml:"name"`
	Lat    float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon    float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
	Weight float64 `json:"weight" yaml:"weight" validate:"gte=0"`
}

// Registry is an immutable, validated set of locations whose weights sum to 1.
type Registry struct {
	version   string
	locations []Location
	index     map[string]int
}

// NewRegistry validates locs and returns a registry with weights normalised to
// sum exactly to 1. An empty version is replaced by a deterministic hash of the
// ids and weights so archive records can always name the table that produced them.
func NewRegistry(version string, locs []Location) (*Registry, error) {
	if len(locs) == 0 {
		return nil, fmt.Errorf("%w: no locations", ErrInvalidRegistry)
	}

	index := make(map[string]int, len(locs))
	var sum float64
	for i, loc := range locs {
		if err := validate.Struct(loc); err != nil {
			return nil, fmt.Errorf("%w: location %d (%q): %v", ErrInvalidRegistry, i, loc.ID, err)
		}
		if _, dup := index[loc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate location id %q", ErrInvalidRegistry, loc.ID)
		}
		index[loc.ID] = i
		sum += loc.Weight
	}

	if sum == 0 {
		return nil, fmt.Errorf("%w: all weights are zero", ErrInvalidRegistry)
	}
	if math.Abs(sum-1) > WeightTolerance {
		return nil, fmt.Errorf("%w: weights sum to %.4f, want 1 ± %.2f", ErrInvalidRegistry, sum, WeightTolerance)
	}

	normalised := make([]Location, len(locs))
	for i, loc := range locs {
		loc.Weight /= sum
		normalised[i] = loc
	}

	if version == "" {
		version = weightTableVersion(normalised)
	}

	return &Registry{version: version, locations: normalised, index: index}, nil
}

// Version identifies the weight table.
func (r *Registry) Version() string { return r.version }

// Len returns the number of locations.
func (r *Registry) Len() int { return len(r.locations) }

// Locations returns a copy of the locations in registry order.
func (r *Registry) Locations() []Location {
	out := make([]Location, len(r.locations))
	copy(out, r.locations)
	return out
}

// Weights returns a copy of the id → weight table.
func (r *Registry) Weights() map[string]float64 {
	out := make(map[string]float64, len(r.locations))
	for _, loc := range r.locations {
		out[loc.ID] = loc.Weight
	}
	return out
}

// Weight returns the weight for id and whether the id is registered.
func (r *Registry) Weight(id string) (float64, bool) {
	i, ok := r.index[id]
	if !ok {
		return 0, false
	}
	return r.locations[i].Weight, true
}

// Location looks up a location by id.
func (r *Registry) Location(id string) (Location, bool) {
	i, ok := r.index[id]
	if !ok {
		return Location{}, false
	}
	return r.locations[i], true
}

// weightTableVersion hashes the sorted id=weight pairs, e.g. "w-3f2a9c01d4e5b678".
func weightTableVersion(locs []Location) string {
	parts := make([]string, len(locs))
	for i, loc := range locs {
		parts[i] = fmt.Sprintf("%s=%.6f", loc.ID, loc.Weight)
	}
	sort.Strings(parts)
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "w-" + hex.EncodeToString(hash[:8])
}

// DefaultLocations is the eight-city gas-weighted proxy for US residential
// heating demand.
func DefaultLocations() []Location {
	return []Location{
		{ID: "chicago", Name: "Chicago", Lat: 41.87, Lon: -87.62, Weight: 0.25},
		{ID: "new-york", Name: "New York", Lat: 40.71, Lon: -74.00, Weight: 0.20},
		{ID: "detroit", Name: "Detroit", Lat: 42.33, Lon: -83.04, Weight: 0.15},
		{ID: "philadelphia", Name: "Philadelphia", Lat: 39.95, Lon: -75.16, Weight: 0.10},
		{ID: "boston", Name: "Boston", Lat: 42.36, Lon: -71.05, Weight: 0.10},
		{ID: "indianapolis", Name: "Indianapolis", Lat: 39.76, Lon: -86.15, Weight: 0.08},
		{ID: "minneapolis", Name: "Minneapolis", Lat: 44.97, Lon: -93.26, Weight: 0.07},
		{ID: "columbus", Name: "Columbus", Lat: 39.96, Lon: -82.99, Weight: 0.05},
	}
}
