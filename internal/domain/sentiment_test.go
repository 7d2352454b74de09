package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_IndicatorXScenario(t *testing.T) {
	c, err := NewClassifier(map[Indicator]ThresholdTable{
		"X": {
			Direction: Descending,
			Cuts:      []Cut{{Label: SentimentExtreme, Bound: -2.0}, {Label: SentimentElevated, Bound: -0.5}},
			Default:   SentimentBaseline,
		},
	})
	require.NoError(t, err)

	tests := []struct {
		value    float64
		expected Sentiment
	}{
		{-2.5, SentimentExtreme},
		{-2.0, SentimentElevated},
		{-1.0, SentimentElevated},
		{-0.5, SentimentBaseline},
		{1.0, SentimentBaseline},
	}
	for _, tt := range tests {
		got, err := c.Classify(tt.value, "X")
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "value %v", tt.value)
	}
}

func TestClassifier_DefaultTables(t *testing.T) {
	c, err := NewClassifier(DefaultThresholdTables())
	require.NoError(t, err)

	tests := []struct {
		name      string
		indicator Indicator
		value     float64
		expected  Sentiment
	}{
		{"AO strongly negative", IndicatorAO, -3.1, SentimentExtreme},
		{"AO mildly negative", IndicatorAO, -0.8, SentimentElevated},
		{"AO positive", IndicatorAO, 1.2, SentimentBaseline},
		{"NAO block", IndicatorNAO, -2.2, SentimentExtreme},
		{"PNA strongly positive", IndicatorPNA, 2.4, SentimentExtreme},
		{"PNA mildly positive", IndicatorPNA, 0.9, SentimentElevated},
		{"PNA negative", IndicatorPNA, -1.5, SentimentBaseline},
		{"HDD jump", IndicatorHDDDelta, 12, SentimentExtreme},
		{"HDD nudge", IndicatorHDDDelta, 3, SentimentElevated},
		{"HDD drop", IndicatorHDDDelta, -8, SentimentBaseline},
		{"lower-case indicator", "pna", 2.4, SentimentExtreme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.value, tt.indicator)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClassifier_UnknownIndicator(t *testing.T) {
	c, err := NewClassifier(DefaultThresholdTables())
	require.NoError(t, err)

	got, err := c.Classify(-5, "ENSO")
	assert.ErrorIs(t, err, ErrUnknownIndicator)
	assert.Equal(t, SentimentBaseline, got)
}

func TestClassifier_NewTableEntryOnly(t *testing.T) {
	tables := DefaultThresholdTables()
	tables["EPO"] = ThresholdTable{
		Direction: Descending,
		Cuts:      []Cut{{Label: SentimentExtreme, Bound: -1.5}},
	}
	c, err := NewClassifier(tables)
	require.NoError(t, err)

	got, err := c.Classify(-1.6, "EPO")
	require.NoError(t, err)
	assert.Equal(t, SentimentExtreme, got)

	got, err = c.Classify(0, "EPO")
	require.NoError(t, err)
	assert.Equal(t, SentimentBaseline, got, "empty default falls back to baseline")

	assert.Contains(t, c.Indicators(), Indicator("EPO"))
}

func TestNewClassifier_RejectsBadTables(t *testing.T) {
	_, err := NewClassifier(map[Indicator]ThresholdTable{
		"BAD": {Direction: "sideways"},
	})
	assert.Error(t, err)

	_, err = NewClassifier(map[Indicator]ThresholdTable{
		"MISORDERED": {
			Direction: Descending,
			Cuts:      []Cut{{Label: SentimentElevated, Bound: -0.5}, {Label: SentimentExtreme, Bound: -2.0}},
		},
	})
	assert.Error(t, err)
}
