package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

type funcProvider func(ctx context.Context, loc domain.Location) ([]domain.TemperaturePair, error)

func (f funcProvider) DailyTemperatures(ctx context.Context, loc domain.Location, _ int) ([]domain.TemperaturePair, error) {
	return f(ctx, loc)
}

func eightCities(t *testing.T) *domain.Registry {
	t.Helper()
	reg, err := domain.NewRegistry("", domain.DefaultLocations())
	require.NoError(t, err)
	return reg
}

func coldWeek() []domain.TemperaturePair {
	temps := make([]domain.TemperaturePair, domain.Horizon)
	for i := range temps {
		temps[i] = domain.TemperaturePair{Max: 40, Min: 20}
	}
	return temps
}

func TestFetcher_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	provider := funcProvider(func(context.Context, domain.Location) ([]domain.TemperaturePair, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return coldWeek(), nil
	})

	f := NewFetcher(provider, domain.DefaultBaseline, 3, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	got := f.FetchAll(context.Background(), eightCities(t))

	assert.Len(t, got, 8)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	for id, s := range got {
		assert.True(t, s.Usable(), id)
		assert.InDelta(t, 35.0*14, s.Series.Total(), 1e-9)
	}
}

func TestFetcher_PerLocationTimeout(t *testing.T) {
	provider := funcProvider(func(ctx context.Context, loc domain.Location) ([]domain.TemperaturePair, error) {
		if loc.ID == "chicago" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return coldWeek(), nil
	})

	f := NewFetcher(provider, domain.DefaultBaseline, 8, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	got := f.FetchAll(context.Background(), eightCities(t))

	assert.Equal(t, domain.SeriesMissing, got["chicago"].Status)
	assert.ErrorIs(t, got["chicago"].Err, context.DeadlineExceeded)
	assert.True(t, got["boston"].Usable(), "one slow location does not affect the others")
}
