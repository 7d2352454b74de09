package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Sentiment is an ordinal label for how extreme a value is.
type Sentiment string

const (
	SentimentExtreme  Sentiment = "extreme"
	SentimentElevated Sentiment = "elevated"
	SentimentBaseline Sentiment = "baseline"
)

// Indicator names a classified quantity, e.g. "AO" or "HDD_DELTA".
type Indicator string

const (
	IndicatorAO       Indicator = "AO"
	IndicatorNAO      Indicator = "NAO"
	IndicatorPNA      Indicator = "PNA"
	IndicatorHDDDelta Indicator = "HDD_DELTA"
)

// ThresholdDirection says which way a table's values grow more extreme.
type ThresholdDirection string

const (
	// Descending: more negative is more extreme; a cut matches when value < Bound.
	Descending ThresholdDirection = "descending"
	// Ascending: more positive is more extreme; a cut matches when value > Bound.
	Ascending ThresholdDirection = "ascending"
)

// Cut assigns Label to values beyond Bound.
type Cut struct {
	Label Sentiment `json:"label" yaml:"label"`
	Bound float64   `json:"bound" yaml:"bound"`
}

// ThresholdTable is one indicator's classification rule. Cuts are ordered
// most extreme first; the first match wins and Default applies otherwise.
type ThresholdTable struct {
	Direction ThresholdDirection `json:"direction" yaml:"direction"`
	Cuts      []Cut              `json:"cuts" yaml:"cuts"`
	Default   Sentiment          `json:"default" yaml:"default"`
}

// Validate checks the direction and that cuts are ordered most extreme first.
func (t ThresholdTable) Validate() error {
	if t.Direction != Descending && t.Direction != Ascending {
		return fmt.Errorf("unknown threshold direction %q", t.Direction)
	}
	for i := 1; i < len(t.Cuts); i++ {
		prev, cur := t.Cuts[i-1].Bound, t.Cuts[i].Bound
		if (t.Direction == Descending && cur < prev) || (t.Direction == Ascending && cur > prev) {
			return fmt.Errorf("cut %d (%g) is more extreme than cut %d (%g)", i, cur, i-1, prev)
		}
	}
	return nil
}

func (t ThresholdTable) classify(value float64) Sentiment {
	for _, c := range t.Cuts {
		if t.Direction == Descending && value < c.Bound {
			return c.Label
		}
		if t.Direction == Ascending && value > c.Bound {
			return c.Label
		}
	}
	if t.Default == "" {
		return SentimentBaseline
	}
	return t.Default
}

// DefaultThresholdTables returns the built-in indicator tables.
func DefaultThresholdTables() map[Indicator]ThresholdTable {
	return map[Indicator]ThresholdTable{
		IndicatorAO: {
			Direction: Descending,
			Cuts:      []Cut{{SentimentExtreme, -2.0}, {SentimentElevated, -0.5}},
			Default:   SentimentBaseline,
		},
		IndicatorNAO: {
			Direction: Descending,
			Cuts:      []Cut{{SentimentExtreme, -2.0}, {SentimentElevated, -0.5}},
			Default:   SentimentBaseline,
		},
		IndicatorPNA: {
			Direction: Ascending,
			Cuts:      []Cut{{SentimentExtreme, 2.0}, {SentimentElevated, 0.5}},
			Default:   SentimentBaseline,
		},
		IndicatorHDDDelta: {
			Direction: Ascending,
			Cuts:      []Cut{{SentimentExtreme, 10}, {SentimentElevated, 2}},
			Default:   SentimentBaseline,
		},
	}
}

// Classifier maps scalars onto sentiment labels using per-indicator tables.
type Classifier struct {
	tables map[Indicator]ThresholdTable
}

// NewClassifier validates and copies tables. Indicator names are matched
// case-insensitively.
func NewClassifier(tables map[Indicator]ThresholdTable) (*Classifier, error) {
	c := &Classifier{tables: make(map[Indicator]ThresholdTable, len(tables))}
	for ind, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("indicator %s: %w", ind, err)
		}
		cuts := make([]Cut, len(t.Cuts))
		copy(cuts, t.Cuts)
		t.Cuts = cuts
		c.tables[normalizeIndicator(ind)] = t
	}
	return c, nil
}

// Classify labels value using the indicator's table. Unknown indicators yield
// SentimentBaseline together with ErrUnknownIndicator.
func (c *Classifier) Classify(value float64, indicator Indicator) (Sentiment, error) {
	t, ok := c.tables[normalizeIndicator(indicator)]
	if !ok {
		return SentimentBaseline, fmt.Errorf("%w: %q", ErrUnknownIndicator, indicator)
	}
	return t.classify(value), nil
}

// Indicators lists the configured indicators in sorted order.
func (c *Classifier) Indicators() []Indicator {
	out := make([]Indicator, 0, len(c.tables))
	for ind := range c.tables {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalizeIndicator(ind Indicator) Indicator {
	return Indicator(strings.ToUpper(strings.TrimSpace(string(ind))))
}
