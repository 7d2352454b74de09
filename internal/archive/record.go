package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// CurrentSchemaVersion is written into every new record.
const CurrentSchemaVersion = 2

// Record is one archived cycle.
type Record struct {
	SchemaVersion      int                  `json:"schema_version" default:"1"`
	ID                 string               `json:"id"`
	Key                domain.Key           `json:"key"`
	CapturedAt         time.Time            `json:"captured_at"`
	WeightTableVersion string               `json:"weight_table_version" default:"legacy"`
	Baseline           float64              `json:"baseline" default:"65"`
	Horizon            int                  `json:"horizon" default:"14"`
	Series             map[string][]float64 `json:"series"`
	Missing            []string             `json:"missing,omitempty"`
}

// Archive stores records by cycle key.
type Archive interface {
	// Put inserts or overwrites the record stored under rec.Key.
	Put(ctx context.Context, rec Record) error
	// Get returns the record for key; false when absent.
	Get(ctx context.Context, key domain.Key) (Record, bool, error)
	// LatestBefore returns the newest record strictly earlier than key.
	// false means there is no reference yet: a cold start, not a failure.
	LatestBefore(ctx context.Context, key domain.Key) (Record, bool, error)
	// Status reports the health of the last load.
	Status() Status
	Close() error
}

// Status describes the archive's state after its most recent load.
type Status struct {
	Backend   string    `json:"backend"`
	Records   int       `json:"records"`
	Corrupt   bool      `json:"corrupt"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// NewRecord builds a record from the usable series of a fetch.
func NewRecord(key domain.Key, reg *domain.Registry, baseline float64, series map[string]domain.LocationSeries, capturedAt time.Time) Record {
	rec := Record{
		SchemaVersion:      CurrentSchemaVersion,
		ID:                 uuid.NewString(),
		Key:                key,
		CapturedAt:         capturedAt.UTC(),
		WeightTableVersion: reg.Version(),
		Baseline:           baseline,
		Horizon:            domain.Horizon,
		Series:             make(map[string][]float64, len(series)),
	}
	for _, loc := range reg.Locations() {
		s, ok := series[loc.ID]
		if !ok || !s.Usable() {
			rec.Missing = append(rec.Missing, loc.ID)
			continue
		}
		values := make([]float64, len(s.Series))
		copy(values, s.Series)
		rec.Series[loc.ID] = values
	}
	sort.Strings(rec.Missing)
	return rec
}

// LocationSeries converts the stored series back into aggregator input.
func (r Record) LocationSeries() map[string]domain.LocationSeries {
	out := make(map[string]domain.LocationSeries, len(r.Series))
	for id, values := range r.Series {
		series := make(domain.DegreeDaySeries, len(values))
		copy(series, values)
		out[id] = domain.LocationSeries{Series: series, Status: domain.SeriesOK}
	}
	for _, id := range r.Missing {
		if _, ok := out[id]; !ok {
			out[id] = domain.LocationSeries{Status: domain.SeriesMissing}
		}
	}
	return out
}

// decodeRecord unmarshals data over a defaults-populated Record so absent
// fields keep their documented defaults.
func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := defaults.Set(&rec); err != nil {
		return Record{}, fmt.Errorf("apply record defaults: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.Series == nil {
		rec.Series = map[string][]float64{}
	}
	return rec, nil
}

func validateRecord(rec Record) error {
	if rec.Key.IsZero() {
		return errors.New("record has no key")
	}
	if _, err := domain.ParseKey(rec.Key.String()); err != nil {
		return err
	}
	return nil
}
