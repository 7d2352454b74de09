package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
)

// ForecastProvider wraps a domain.ForecastProvider with a time-bounded cache.
// Entries are scoped to the forecast cycle they were fetched in and never
// outlive it, so a new model run always reaches the inner provider.
// Cache failures are logged and fall through to the inner provider.
type ForecastProvider struct {
	inner    domain.ForecastProvider
	cache    Cache
	ttl      time.Duration
	schedule domain.CycleSchedule
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewForecastProvider creates a cache decorator around a forecast provider.
// A zero schedule falls back to domain.DefaultCycleSchedule.
func NewForecastProvider(inner domain.ForecastProvider, c Cache, ttl time.Duration, schedule domain.CycleSchedule, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *ForecastProvider {
	if schedule == (domain.CycleSchedule{}) {
		schedule = domain.DefaultCycleSchedule()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ForecastProvider{inner: inner, cache: c, ttl: ttl, schedule: schedule, clock: clock, metrics: metrics, logger: logger}
}

// DailyTemperatures returns cached temperatures for loc when available.
func (p *ForecastProvider) DailyTemperatures(ctx context.Context, loc domain.Location, days int) ([]domain.TemperaturePair, error) {
	now := p.clock.Now()
	key := forecastKey(p.schedule.KeyFor(now), loc, days)

	data, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("forecast cache read failed", "location", loc.ID, "error", err)
	}
	if ok {
		var temps []domain.TemperaturePair
		if err := json.Unmarshal(data, &temps); err == nil && len(temps) == days {
			p.metrics.ForecastCache.WithLabelValues("hit").Inc()
			return temps, nil
		}
		p.logger.Warn("discarding unreadable cached forecast", "location", loc.ID)
	}

	p.metrics.ForecastCache.WithLabelValues("miss").Inc()

	temps, err := p.inner.DailyTemperatures(ctx, loc, days)
	if err != nil {
		return nil, err
	}

	// Only complete forecasts are cached so short responses are retried.
	if len(temps) == days {
		payload, err := json.Marshal(temps)
		if err == nil {
			err = p.cache.Set(ctx, key, payload, p.entryTTL(now))
		}
		if err != nil {
			p.logger.Warn("forecast cache write failed", "location", loc.ID, "error", err)
		}
	}
	return temps, nil
}

// entryTTL caps the configured TTL at the next cycle boundary.
func (p *ForecastProvider) entryTTL(now time.Time) time.Duration {
	ttl := p.ttl
	if untilNext := p.schedule.NextBoundary(now).Sub(now); untilNext < ttl {
		ttl = untilNext
	}
	return ttl
}

func forecastKey(cycle domain.Key, loc domain.Location, days int) string {
	return fmt.Sprintf("forecast:%s:%.2f,%.2f:%d", cycle, loc.Lat, loc.Lon, days)
}
