package domain

import (
	"context"
	"fmt"
	"math"
)

const (
	// Horizon is the number of forecast days in every series and snapshot.
	Horizon = 14

	// ShortTermDays is the length of the short-term sub-horizon (days 0-6).
	// The long-term sub-horizon covers the remaining days.
	ShortTermDays = 7

	// DefaultBaseline is the HDD baseline in degrees Fahrenheit.
	DefaultBaseline = 65.0
)

// TemperaturePair is one forecast day's maximum and minimum temperature.
type TemperaturePair struct {
	Max float64 `json:"max"`
	Min float64 `json:"min"`
}

// DegreeDaySeries holds one non-negative degree-day value per forecast day.
type DegreeDaySeries []float64

// Total sums the series.
func (s DegreeDaySeries) Total() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// ForecastProvider returns daily temperatures for a location.
type ForecastProvider interface {
	DailyTemperatures(ctx context.Context, loc Location, days int) ([]TemperaturePair, error)
}

// ToDegreeDays converts daily temperature pairs into a degree-day series.
// The series must cover exactly horizon days; anything else is reported as
// ErrIncompleteLocationData instead of being truncated or padded.
func ToDegreeDays(temps []TemperaturePair, baseline float64, horizon int) (DegreeDaySeries, error) {
	if len(temps) != horizon {
		return nil, fmt.Errorf("%w: got %d days, want %d", ErrIncompleteLocationData, len(temps), horizon)
	}

	series := make(DegreeDaySeries, horizon)
	for i, t := range temps {
		if math.IsNaN(t.Max) || math.IsNaN(t.Min) {
			return nil, fmt.Errorf("%w: day %d has no temperature", ErrIncompleteLocationData, i)
		}
		series[i] = degreeDay(t, baseline)
	}
	return series, nil
}

func degreeDay(t TemperaturePair, baseline float64) float64 {
	return math.Max(0, baseline-(t.Max+t.Min)/2)
}
