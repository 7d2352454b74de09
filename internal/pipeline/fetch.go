package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// Fetcher retrieves and converts every registry location's forecast in
// parallel. A failing location is marked missing; it never fails the batch.
type Fetcher struct {
	provider    domain.ForecastProvider
	baseline    float64
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewFetcher creates a Fetcher running at most concurrency requests at once,
// each bounded by timeout.
func NewFetcher(provider domain.ForecastProvider, baseline float64, concurrency int, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		provider:    provider,
		baseline:    baseline,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}
}

// FetchAll returns one LocationSeries per registry location.
func (f *Fetcher) FetchAll(ctx context.Context, reg *domain.Registry) map[string]domain.LocationSeries {
	locs := reg.Locations()
	results := make([]domain.LocationSeries, len(locs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, loc := range locs {
		g.Go(func() error {
			results[i] = f.fetchOne(gctx, loc)
			return nil // per-location failures are recorded, not propagated
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.LocationSeries, len(locs))
	for i, loc := range locs {
		out[loc.ID] = results[i]
	}
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, loc domain.Location) domain.LocationSeries {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	temps, err := f.provider.DailyTemperatures(ctx, loc, domain.Horizon)
	if err != nil {
		f.logger.Warn("forecast unavailable, marking location missing", "location", loc.ID, "error", err)
		return domain.LocationSeries{Status: domain.SeriesMissing, Err: err}
	}

	series, err := domain.ToDegreeDays(temps, f.baseline, domain.Horizon)
	if err != nil {
		f.logger.Warn("incomplete forecast, marking location missing", "location", loc.ID, "error", err)
		return domain.LocationSeries{Status: domain.SeriesMissing, Err: err}
	}
	return domain.LocationSeries{Series: series, Status: domain.SeriesOK}
}
