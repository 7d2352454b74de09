package domain

import (
	"context"
	"time"
)

// IndexReading is the latest value of a daily climate index plus its change
// against one and seven days earlier.
type IndexReading struct {
	Indicator  Indicator `json:"indicator"`
	AsOf       time.Time `json:"as_of"`
	Latest     float64   `json:"latest"`
	DayChange  float64   `json:"day_change"`
	WeekChange float64   `json:"week_change"`
	Stale      bool      `json:"stale"`
}

// IndexProvider fetches climate-index readings.
type IndexProvider interface {
	Index(ctx context.Context, indicator Indicator) (IndexReading, error)
}
