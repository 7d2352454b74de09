//go:build smoke

package openmeteo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// These tests hit the real Open-Meteo API.
// Run with: go test -tags=smoke ./internal/adapter/openmeteo/ -v -count=1

func TestSmoke_DailyTemperatures(t *testing.T) {
	c := testClient(DefaultBaseURL)

	temps, err := c.DailyTemperatures(context.Background(), chicago, domain.Horizon)
	require.NoError(t, err)
	require.Len(t, temps, domain.Horizon)

	for _, tp := range temps {
		assert.GreaterOrEqual(t, tp.Max, tp.Min)
		assert.Greater(t, tp.Max, -60.0)
		assert.Less(t, tp.Max, 130.0)
	}

	series, err := domain.ToDegreeDays(temps, domain.DefaultBaseline, domain.Horizon)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, series.Total(), 0.0)
}
