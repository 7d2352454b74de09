package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hdd-momentum-service/internal/config"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes one snapshot event per completed refresh.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes the session summary and writes it keyed by cycle, so
// every event for a cycle lands on the same partition.
func (w *Writer) Publish(ctx context.Context, s *pipeline.Session) error {
	msg, err := serializeToMessage(NewSnapshotEvent(s))
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot event %s: %w", s.Key, err)
	}
	w.logger.Debug("snapshot event published", "key", s.Key.String(), "session_id", s.ID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// SnapshotEvent is the wire form of a refresh published to Kafka.
type SnapshotEvent struct {
	EventID            string                            `json:"event_id"`
	SessionID          string                            `json:"session_id"`
	Key                string                            `json:"key"`
	Date               string                            `json:"date"`
	Cycle              domain.CycleTag                   `json:"cycle"`
	CompletedAt        time.Time                         `json:"completed_at"`
	Baseline           float64                           `json:"baseline"`
	WeightTableVersion string                            `json:"weight_table_version"`
	Days               [domain.Horizon]float64           `json:"days"`
	Total              float64                           `json:"total"`
	ShortTermAvg       float64                           `json:"short_term_avg"`
	LongTermAvg        float64                           `json:"long_term_avg"`
	Incomplete         bool                              `json:"incomplete"`
	Missing            []string                          `json:"missing,omitempty"`
	ReferenceKey       string                            `json:"reference_key,omitempty"`
	Delta              DeltaSummary                      `json:"delta"`
	Sentiment          domain.Sentiment                  `json:"sentiment"`
	Indices            map[domain.Indicator]IndexSummary `json:"indices,omitempty"`
}

// DeltaSummary carries the headline delta figures without per-location detail.
type DeltaSummary struct {
	HasReference bool             `json:"has_reference"`
	Total        float64          `json:"total"`
	ShortTerm    float64          `json:"short_term"`
	LongTerm     float64          `json:"long_term"`
	Direction    domain.Direction `json:"direction"`
}

// IndexSummary is one classified climate index reading.
type IndexSummary struct {
	Latest    float64          `json:"latest"`
	Sentiment domain.Sentiment `json:"sentiment"`
}

// NewSnapshotEvent flattens a session into its published form.
func NewSnapshotEvent(s *pipeline.Session) SnapshotEvent {
	ev := SnapshotEvent{
		EventID:            uuid.NewString(),
		SessionID:          s.ID,
		Key:                s.Key.String(),
		Date:               s.Key.Date,
		Cycle:              s.Key.Cycle,
		CompletedAt:        s.CompletedAt.UTC(),
		Baseline:           s.Baseline,
		WeightTableVersion: s.Snapshot.WeightTableVersion,
		Days:               s.Snapshot.Days,
		Total:              s.Snapshot.Total,
		ShortTermAvg:       s.Snapshot.ShortTermAvg,
		LongTermAvg:        s.Snapshot.LongTermAvg,
		Incomplete:         s.Incomplete,
		Missing:            s.Snapshot.Missing,
		Delta: DeltaSummary{
			HasReference: s.Delta.HasReference,
			Total:        s.Delta.Total,
			ShortTerm:    s.Delta.ShortTerm,
			LongTerm:     s.Delta.LongTerm,
			Direction:    s.Delta.Direction,
		},
		Sentiment: s.Sentiment,
	}
	if s.Reference != nil {
		ev.ReferenceKey = s.Reference.Key.String()
	}
	for _, ir := range s.Indices {
		if ir.Reading == nil {
			continue
		}
		if ev.Indices == nil {
			ev.Indices = make(map[domain.Indicator]IndexSummary, len(s.Indices))
		}
		ev.Indices[ir.Indicator] = IndexSummary{Latest: ir.Reading.Latest, Sentiment: ir.Sentiment}
	}
	return ev
}

// serializeToMessage marshals a SnapshotEvent into a Kafka message.
func serializeToMessage(ev SnapshotEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "sentiment", Value: []byte(ev.Sentiment)},
			{Key: "completed_at", Value: []byte(ev.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
