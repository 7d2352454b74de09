package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleSchedule_KeyFor(t *testing.T) {
	s := DefaultCycleSchedule()

	tests := []struct {
		name     string
		at       time.Time
		expected string
	}{
		{"midnight belongs to previous 12z", time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), "2024-01-10/12z"},
		{"just before morning boundary", time.Date(2024, 1, 11, 6, 59, 59, 999, time.UTC), "2024-01-10/12z"},
		{"morning boundary", time.Date(2024, 1, 11, 7, 0, 0, 0, time.UTC), "2024-01-11/00z"},
		{"midday", time.Date(2024, 1, 11, 12, 30, 0, 0, time.UTC), "2024-01-11/00z"},
		{"just before evening boundary", time.Date(2024, 1, 11, 18, 59, 59, 0, time.UTC), "2024-01-11/00z"},
		{"evening boundary", time.Date(2024, 1, 11, 19, 0, 0, 0, time.UTC), "2024-01-11/12z"},
		{"late evening", time.Date(2024, 1, 11, 23, 59, 0, 0, time.UTC), "2024-01-11/12z"},
		{"year rollover", time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), "2023-12-31/12z"},
		{"non-UTC input", time.Date(2024, 1, 11, 3, 0, 0, 0, time.FixedZone("EST", -5*3600)), "2024-01-11/00z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.KeyFor(tt.at).String())
		})
	}
}

func TestCycleSchedule_StableWithinWindow(t *testing.T) {
	s := DefaultCycleSchedule()
	start := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	want := s.KeyFor(start)

	for m := 0; m < 12*60; m += 17 {
		assert.Equal(t, want, s.KeyFor(start.Add(time.Duration(m)*time.Minute)))
	}
}

func TestCycleSchedule_NextBoundary(t *testing.T) {
	s := DefaultCycleSchedule()

	assert.Equal(t, time.Date(2024, 1, 11, 7, 0, 0, 0, time.UTC), s.NextBoundary(time.Date(2024, 1, 11, 2, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 1, 11, 19, 0, 0, 0, time.UTC), s.NextBoundary(time.Date(2024, 1, 11, 7, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 1, 12, 7, 0, 0, 0, time.UTC), s.NextBoundary(time.Date(2024, 1, 11, 20, 0, 0, 0, time.UTC)))
}

func TestCycleSchedule_Validate(t *testing.T) {
	assert.NoError(t, DefaultCycleSchedule().Validate())
	assert.Error(t, CycleSchedule{Morning: 0, Evening: 12 * time.Hour}.Validate())
	assert.Error(t, CycleSchedule{Morning: 12 * time.Hour, Evening: 6 * time.Hour}.Validate())
	assert.Error(t, CycleSchedule{Morning: time.Hour, Evening: 24 * time.Hour}.Validate())
}

func TestKey_ParseAndOrder(t *testing.T) {
	k00, err := ParseKey("2024-01-10/00z")
	require.NoError(t, err)
	k12, err := ParseKey("2024-01-10/12Z")
	require.NoError(t, err)
	next, err := ParseKey("2024-01-11/00z")
	require.NoError(t, err)

	assert.Equal(t, Key{Date: "2024-01-10", Cycle: Cycle12Z}, k12)
	assert.True(t, k00.Before(k12))
	assert.True(t, k12.Before(next))
	assert.False(t, next.Before(k00))
	assert.False(t, k00.Before(k00))
	assert.Equal(t, "2024-01-10/00z", k00.String())
	assert.False(t, k00.IsZero())
	assert.True(t, Key{}.IsZero())
}

func TestParseKey_Errors(t *testing.T) {
	for _, s := range []string{"", "2024-01-10", "2024-13-01/00z", "2024-01-10/06z", "yesterday/00z"} {
		_, err := ParseKey(s)
		assert.Error(t, err, s)
	}
}

func TestParseClockOffset(t *testing.T) {
	d, err := ParseClockOffset("07:30")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Hour+30*time.Minute, d)

	_, err = ParseClockOffset("7am")
	assert.Error(t, err)
}
