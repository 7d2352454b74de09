package pipeline

import (
	"time"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/market"
)

// Session is the complete, immutable result of one refresh.
type Session struct {
	ID          string     `json:"id"`
	Key         domain.Key `json:"key"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Baseline    float64    `json:"baseline"`

	Snapshot   domain.CompositeSnapshot `json:"snapshot"`
	Incomplete bool                     `json:"incomplete"`
	Failures   map[string]string        `json:"failures,omitempty"` // location id → error

	Reference *Reference         `json:"reference,omitempty"`
	Delta     domain.DeltaResult `json:"delta"`
	Sentiment domain.Sentiment   `json:"sentiment"` // HDD_DELTA classification of Delta.Total

	Indices []IndexResult   `json:"indices,omitempty"`
	Market  *market.Context `json:"market,omitempty"`

	Archived   bool   `json:"archived"`
	ArchiveErr string `json:"archive_error,omitempty"`
	Published  bool   `json:"published"`
}

// Reference describes the snapshot a session was compared against.
type Reference struct {
	Key                domain.Key               `json:"key"`
	Pinned             bool                     `json:"pinned"`
	CapturedAt         time.Time                `json:"captured_at"`
	Baseline           float64                  `json:"baseline"`
	RecordedWeightsVer string                   `json:"recorded_weight_table_version"`
	Snapshot           domain.CompositeSnapshot `json:"snapshot"`
}

// IndexResult is one climate index reading and its classification. Err is
// set instead when the reading could not be fetched.
type IndexResult struct {
	Indicator domain.Indicator     `json:"indicator"`
	Reading   *domain.IndexReading `json:"reading,omitempty"`
	Sentiment domain.Sentiment     `json:"sentiment,omitempty"`
	Err       string               `json:"error,omitempty"`
}
