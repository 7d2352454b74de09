package domain

import "sort"

// SeriesStatus describes where a location's series came from.
type SeriesStatus string

const (
	SeriesOK      SeriesStatus = "ok"
	SeriesMissing SeriesStatus = "missing" // fetch or conversion failed
	SeriesStale   SeriesStatus = "stale"   // served from an expired source; excluded like missing
)

// LocationSeries is a location's degree-day series together with its status.
// A missing series is distinct from a legitimate all-zero series.
type LocationSeries struct {
	Series DegreeDaySeries `json:"series,omitempty"`
	Status SeriesStatus    `json:"status"`
	Err    error           `json:"-"`
}

// Usable reports whether the series can contribute to a composite.
func (s LocationSeries) Usable() bool {
	return s.Status == SeriesOK && len(s.Series) == Horizon
}

// LocationContribution is one location's share of a composite.
type LocationContribution struct {
	Weight float64         `json:"weight"`
	Total  float64         `json:"total"` // unweighted series sum, for attribution
	Series DegreeDaySeries `json:"series"`
}

// CompositeSnapshot is one full-horizon weighted HDD curve.
type CompositeSnapshot struct {
	Days               [Horizon]float64                `json:"days"`
	Total              float64                         `json:"total"`
	ShortTermAvg       float64                         `json:"short_term_avg"`
	LongTermAvg        float64                         `json:"long_term_avg"`
	Locations          map[string]LocationContribution `json:"locations"`
	Missing            []string                        `json:"missing,omitempty"`
	Partial            bool                            `json:"partial"`
	CoveredWeight      float64                         `json:"covered_weight"`
	WeightTableVersion string                          `json:"weight_table_version"`
}

// ComputeSnapshot aggregates per-location series into a weighted composite.
// Registry locations without a usable series are listed in Missing and the
// result is flagged partial; the remaining locations are not renormalised.
// Series for ids outside the registry are ignored.
func ComputeSnapshot(reg *Registry, series map[string]LocationSeries) (CompositeSnapshot, bool) {
	snap := CompositeSnapshot{
		Locations:          make(map[string]LocationContribution, reg.Len()),
		WeightTableVersion: reg.Version(),
	}

	for _, loc := range reg.locations {
		s, ok := series[loc.ID]
		if !ok || !s.Usable() {
			snap.Missing = append(snap.Missing, loc.ID)
			continue
		}

		values := make(DegreeDaySeries, Horizon)
		copy(values, s.Series)
		for i, v := range values {
			snap.Days[i] += loc.Weight * v
		}
		snap.CoveredWeight += loc.Weight
		snap.Locations[loc.ID] = LocationContribution{
			Weight: loc.Weight,
			Total:  values.Total(),
			Series: values,
		}
	}

	for i, v := range snap.Days {
		snap.Total += v
		if i < ShortTermDays {
			snap.ShortTermAvg += v
		} else {
			snap.LongTermAvg += v
		}
	}
	snap.ShortTermAvg /= ShortTermDays
	snap.LongTermAvg /= Horizon - ShortTermDays

	sort.Strings(snap.Missing)
	snap.Partial = len(snap.Missing) > 0
	return snap, snap.Partial
}

// ShortTermTotal sums days 0-6.
func (s CompositeSnapshot) ShortTermTotal() float64 {
	var total float64
	for _, v := range s.Days[:ShortTermDays] {
		total += v
	}
	return total
}

// LongTermTotal sums days 7-13.
func (s CompositeSnapshot) LongTermTotal() float64 {
	var total float64
	for _, v := range s.Days[ShortTermDays:] {
		total += v
	}
	return total
}
