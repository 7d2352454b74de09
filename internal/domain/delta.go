package domain

import (
	"math"
	"sort"
)

// flatEpsilon is the |total delta| below which a shift counts as flat.
const flatEpsilon = 1e-9

// Direction is the sign of a composite shift between two snapshots.
type Direction string

const (
	DirectionRising  Direction = "rising"  // colder forecast, more demand
	DirectionFalling Direction = "falling" // warmer forecast, less demand
	DirectionFlat    Direction = "flat"
)

// LocationDelta is one location's change between snapshots.
type LocationDelta struct {
	Raw      float64 `json:"raw"`      // unweighted series-total difference
	Weighted float64 `json:"weighted"` // Raw scaled by the current weight
}

// DeltaResult is the difference current - reference.
type DeltaResult struct {
	HasReference bool                     `json:"has_reference"`
	Days         [Horizon]float64         `json:"days"`
	ShortTerm    float64                  `json:"short_term"`
	LongTerm     float64                  `json:"long_term"`
	Total        float64                  `json:"total"`
	Locations    map[string]LocationDelta `json:"locations"`
	Unmatched    []string                 `json:"unmatched,omitempty"`
	// MatchedWeight is the current weight share of the locations compared.
	MatchedWeight float64   `json:"matched_weight"`
	Direction     Direction `json:"direction"`
}

// Delta compares current against reference. A nil reference is a cold start:
// every field is zero and HasReference is false.
//
// Only locations usable on both sides are compared, each weighted by its
// current weight, so a location that dropped out or came back moves nothing;
// it is listed in Unmatched instead.
func Delta(current CompositeSnapshot, reference *CompositeSnapshot) DeltaResult {
	res := DeltaResult{
		Locations: make(map[string]LocationDelta),
		Direction: DirectionFlat,
	}
	if reference == nil {
		return res
	}
	res.HasReference = true

	for id, cur := range current.Locations {
		ref, ok := reference.Locations[id]
		if !ok {
			res.Unmatched = append(res.Unmatched, id)
			continue
		}
		for i := range res.Days {
			res.Days[i] += cur.Weight * (at(cur.Series, i) - at(ref.Series, i))
		}
		raw := cur.Total - ref.Total
		res.Locations[id] = LocationDelta{Raw: raw, Weighted: cur.Weight * raw}
		res.MatchedWeight += cur.Weight
	}
	for id := range reference.Locations {
		if _, ok := current.Locations[id]; !ok {
			res.Unmatched = append(res.Unmatched, id)
		}
	}
	sort.Strings(res.Unmatched)

	for i, d := range res.Days {
		if i < ShortTermDays {
			res.ShortTerm += d
		} else {
			res.LongTerm += d
		}
	}
	res.Total = res.ShortTerm + res.LongTerm

	switch {
	case math.Abs(res.Total) < flatEpsilon:
		res.Direction = DirectionFlat
	case res.Total > 0:
		res.Direction = DirectionRising
	default:
		res.Direction = DirectionFalling
	}
	return res
}

func at(s DegreeDaySeries, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
