package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hdd-momentum-service/internal/archive"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/market"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
)

// ErrBaselineNotFound is returned when a pinned baseline key has no record.
var ErrBaselineNotFound = errors.New("baseline record not found")

// Publisher delivers completed sessions to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, s *Session) error
}

// MarketContext builds the market backdrop for a refresh.
type MarketContext interface {
	Build(ctx context.Context, hddDelta float64) market.Context
}

// Options wires an Engine. Registry, Classifier, Forecasts and Archive are
// required; the rest are optional.
type Options struct {
	Registry   *domain.Registry
	Classifier *domain.Classifier
	Forecasts  domain.ForecastProvider
	Archive    archive.Archive

	Indices    domain.IndexProvider
	Indicators []domain.Indicator // indices fetched on each refresh
	Market     MarketContext
	Publisher  Publisher

	Schedule     domain.CycleSchedule
	Baseline     float64
	Concurrency  int
	FetchTimeout time.Duration
	Clock        clockwork.Clock
}

// RefreshOptions adjusts a single refresh.
type RefreshOptions struct {
	// Baseline pins the comparison to a specific archived cycle instead of
	// the latest one before the current cycle.
	Baseline *domain.Key
}

// Engine runs refreshes: fetch, aggregate, compare, archive, classify.
type Engine struct {
	opts    Options
	fetcher *Fetcher
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	latest  atomic.Pointer[Session]
}

// New creates an Engine.
func New(opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	switch {
	case opts.Registry == nil:
		return nil, errors.New("pipeline: registry is required")
	case opts.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case opts.Forecasts == nil:
		return nil, errors.New("pipeline: forecast provider is required")
	case opts.Archive == nil:
		return nil, errors.New("pipeline: archive is required")
	}
	if opts.Schedule == (domain.CycleSchedule{}) {
		opts.Schedule = domain.DefaultCycleSchedule()
	}
	if err := opts.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if opts.Baseline == 0 {
		opts.Baseline = domain.DefaultBaseline
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Engine{
		opts:    opts,
		fetcher: NewFetcher(opts.Forecasts, opts.Baseline, opts.Concurrency, opts.FetchTimeout, logger),
		clock:   opts.Clock,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Refresh runs one complete refresh for the current cycle. It fails only
// when no location produced a usable series or a pinned baseline is absent;
// every other problem is recorded in the returned Session.
func (e *Engine) Refresh(ctx context.Context, ro RefreshOptions) (*Session, error) {
	start := e.clock.Now()
	key := e.opts.Schedule.KeyFor(start)
	logger := e.logger.With("key", key.String())

	// Resolve a pinned baseline first so a bad request costs no upstream calls.
	var pinned *archive.Record
	if ro.Baseline != nil {
		rec, ok, err := e.opts.Archive.Get(ctx, *ro.Baseline)
		if err != nil {
			return nil, fmt.Errorf("load baseline %s: %w", ro.Baseline, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBaselineNotFound, ro.Baseline)
		}
		pinned = &rec
	}

	series := e.fetcher.FetchAll(ctx, e.opts.Registry)
	snap, partial := domain.ComputeSnapshot(e.opts.Registry, series)

	e.metrics.LocationsMissing.Set(float64(len(snap.Missing)))
	if len(snap.Locations) == 0 {
		e.metrics.Refreshes.WithLabelValues("failed").Inc()
		e.metrics.ArchiveWrites.WithLabelValues("skipped").Inc()
		logger.Error("refresh failed, no usable location series", "missing", snap.Missing)
		return nil, fmt.Errorf("%w: none of %d locations produced a usable series",
			domain.ErrIncompleteLocationData, e.opts.Registry.Len())
	}

	sess := &Session{
		ID:         uuid.NewString(),
		Key:        key,
		StartedAt:  start,
		Baseline:   e.opts.Baseline,
		Snapshot:   snap,
		Incomplete: partial,
		Failures:   failures(series),
	}

	ref := pinned
	if ref == nil {
		rec, ok, err := e.opts.Archive.LatestBefore(ctx, key)
		if err != nil {
			logger.Warn("reference lookup failed, treating as cold start", "error", err)
		} else if ok {
			ref = &rec
		}
	}
	sess.Delta = e.compare(sess, ref, pinned != nil)

	e.store(ctx, sess, series, logger)

	sentiment, err := e.opts.Classifier.Classify(sess.Delta.Total, domain.IndicatorHDDDelta)
	if err != nil {
		logger.Warn("hdd delta not classified", "error", err)
	}
	sess.Sentiment = sentiment

	sess.Indices = e.indices(ctx, logger)
	if e.opts.Market != nil {
		mc := e.opts.Market.Build(ctx, sess.Delta.Total)
		sess.Market = &mc
	}

	sess.CompletedAt = e.clock.Now()
	e.publish(ctx, sess, logger)

	outcome := "complete"
	if partial {
		outcome = "partial"
	}
	e.metrics.Refreshes.WithLabelValues(outcome).Inc()
	e.metrics.RefreshDuration.Observe(sess.CompletedAt.Sub(start).Seconds())
	e.metrics.LastRefresh.Set(float64(sess.CompletedAt.Unix()))
	e.metrics.CompositeTotal.Set(snap.Total)
	e.metrics.DeltaTotal.Set(sess.Delta.Total)
	e.metrics.CoveredWeight.Set(snap.CoveredWeight)

	e.latest.Store(sess)
	logger.Info("refresh complete",
		"total", snap.Total,
		"delta", sess.Delta.Total,
		"direction", sess.Delta.Direction,
		"sentiment", sess.Sentiment,
		"partial", partial,
		"missing", len(snap.Missing),
	)
	return sess, nil
}

// compare rebuilds the reference composite from its raw series under the
// current registry and computes the delta.
func (e *Engine) compare(sess *Session, ref *archive.Record, pinned bool) domain.DeltaResult {
	if ref == nil {
		return domain.Delta(sess.Snapshot, nil)
	}
	refSnap, _ := domain.ComputeSnapshot(e.opts.Registry, ref.LocationSeries())
	sess.Reference = &Reference{
		Key:                ref.Key,
		Pinned:             pinned,
		CapturedAt:         ref.CapturedAt,
		Baseline:           ref.Baseline,
		RecordedWeightsVer: ref.WeightTableVersion,
		Snapshot:           refSnap,
	}
	return domain.Delta(sess.Snapshot, &refSnap)
}

func (e *Engine) store(ctx context.Context, sess *Session, series map[string]domain.LocationSeries, logger *slog.Logger) {
	rec := archive.NewRecord(sess.Key, e.opts.Registry, e.opts.Baseline, series, sess.StartedAt)
	if err := e.opts.Archive.Put(ctx, rec); err != nil {
		logger.Error("archive write failed", "error", err)
		e.metrics.ArchiveWrites.WithLabelValues("error").Inc()
		sess.ArchiveErr = err.Error()
	} else {
		e.metrics.ArchiveWrites.WithLabelValues("success").Inc()
		sess.Archived = true
	}

	corrupt := 0.0
	if e.opts.Archive.Status().Corrupt {
		corrupt = 1
	}
	e.metrics.ArchiveCorrupt.Set(corrupt)
}

func (e *Engine) indices(ctx context.Context, logger *slog.Logger) []IndexResult {
	if e.opts.Indices == nil || len(e.opts.Indicators) == 0 {
		return nil
	}

	results := make([]IndexResult, len(e.opts.Indicators))
	var g errgroup.Group
	for i, ind := range e.opts.Indicators {
		g.Go(func() error {
			results[i] = e.index(ctx, ind, logger)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) index(ctx context.Context, ind domain.Indicator, logger *slog.Logger) IndexResult {
	res := IndexResult{Indicator: ind}
	reading, err := e.opts.Indices.Index(ctx, ind)
	if err != nil {
		logger.Warn("climate index unavailable", "indicator", ind, "error", err)
		res.Err = err.Error()
		return res
	}
	res.Reading = &reading

	sentiment, err := e.opts.Classifier.Classify(reading.Latest, ind)
	if err != nil {
		logger.Warn("climate index not classified", "indicator", ind, "error", err)
	}
	res.Sentiment = sentiment
	return res
}

func (e *Engine) publish(ctx context.Context, sess *Session, logger *slog.Logger) {
	if e.opts.Publisher == nil {
		return
	}
	if err := e.opts.Publisher.Publish(ctx, sess); err != nil {
		logger.Error("publish snapshot failed", "error", err)
		e.metrics.PublishErrors.Inc()
		return
	}
	e.metrics.SnapshotsPublished.Inc()
	sess.Published = true
}

// Latest returns the most recent successful session, or nil.
func (e *Engine) Latest() *Session {
	return e.latest.Load()
}

// StoredSnapshot is an archived cycle rebuilt under the current registry.
type StoredSnapshot struct {
	Record   archive.Record           `json:"record"`
	Snapshot domain.CompositeSnapshot `json:"snapshot"`
}

// Snapshot loads the archived cycle for key. The bool is false when absent.
func (e *Engine) Snapshot(ctx context.Context, key domain.Key) (*StoredSnapshot, bool, error) {
	rec, ok, err := e.opts.Archive.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	snap, _ := domain.ComputeSnapshot(e.opts.Registry, rec.LocationSeries())
	return &StoredSnapshot{Record: rec, Snapshot: snap}, true, nil
}

// Classify labels value with the engine's threshold tables.
func (e *Engine) Classify(value float64, indicator domain.Indicator) (domain.Sentiment, error) {
	return e.opts.Classifier.Classify(value, indicator)
}

// CurrentKey returns the archive key for the current instant.
func (e *Engine) CurrentKey() domain.Key {
	return e.opts.Schedule.KeyFor(e.clock.Now())
}

// CheckReadiness reports the archive as not ready while it is in a corrupt
// state. A successful refresh rewrites the archive and clears the condition.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if st := e.opts.Archive.Status(); st.Corrupt {
		return fmt.Errorf("%w: %s", domain.ErrArchiveCorrupt, st.Detail)
	}
	return nil
}

func failures(series map[string]domain.LocationSeries) map[string]string {
	var out map[string]string
	for id, s := range series {
		if s.Usable() {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		msg := string(s.Status)
		if s.Err != nil {
			msg = s.Err.Error()
		}
		out[id] = msg
	}
	return out
}
