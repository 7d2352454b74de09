package domain

import (
	"fmt"
	"strings"
	"time"
)

// CycleTag names a forecast-model publication window.
type CycleTag string

const (
	Cycle00Z CycleTag = "00z"
	Cycle12Z CycleTag = "12z"
)

const dateLayout = "2006-01-02"

// Key identifies one archive entry: a calendar date and a cycle tag.
type Key struct {
	Date  string   `json:"date"`
	Cycle CycleTag `json:"cycle"`
}

// String renders the key as "2024-01-10/00z".
func (k Key) String() string {
	return k.Date + "/" + string(k.Cycle)
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Date == "" && k.Cycle == ""
}

// Before reports whether k is chronologically earlier than other.
// ISO dates sort lexically, and "00z" sorts before "12z".
func (k Key) Before(other Key) bool {
	if k.Date != other.Date {
		return k.Date < other.Date
	}
	return k.Cycle < other.Cycle
}

// ParseKey parses "2024-01-10/00z".
func ParseKey(s string) (Key, error) {
	date, cycle, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Key{}, fmt.Errorf("parse key %q: missing cycle", s)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return Key{}, fmt.Errorf("parse key %q: %w", s, err)
	}
	tag := CycleTag(strings.ToLower(cycle))
	if tag != Cycle00Z && tag != Cycle12Z {
		return Key{}, fmt.Errorf("parse key %q: unknown cycle %q", s, cycle)
	}
	return Key{Date: date, Cycle: tag}, nil
}

// CycleSchedule splits each UTC day at two boundaries, given as offsets from
// midnight. [Morning, Evening) belongs to the day's 00z run, [Evening, 24h) to
// its 12z run, and [0, Morning) to the previous day's 12z run.
type CycleSchedule struct {
	Morning time.Duration
	Evening time.Duration
}

// DefaultCycleSchedule switches to the 00z run at 07:00Z and to the 12z run at 19:00Z.
func DefaultCycleSchedule() CycleSchedule {
	return CycleSchedule{Morning: 7 * time.Hour, Evening: 19 * time.Hour}
}

// Validate checks that both boundaries fall inside the day in order.
func (s CycleSchedule) Validate() error {
	if s.Morning <= 0 || s.Evening >= 24*time.Hour || s.Morning >= s.Evening {
		return fmt.Errorf("cycle boundaries must satisfy 0 < morning (%s) < evening (%s) < 24h", s.Morning, s.Evening)
	}
	return nil
}

// KeyFor maps a timestamp to its archive key.
func (s CycleSchedule) KeyFor(t time.Time) Key {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := t.Sub(midnight)

	switch {
	case offset < s.Morning:
		return Key{Date: midnight.AddDate(0, 0, -1).Format(dateLayout), Cycle: Cycle12Z}
	case offset < s.Evening:
		return Key{Date: midnight.Format(dateLayout), Cycle: Cycle00Z}
	default:
		return Key{Date: midnight.Format(dateLayout), Cycle: Cycle12Z}
	}
}

// NextBoundary returns the first instant after t at which the cycle tag changes.
func (s CycleSchedule) NextBoundary(t time.Time) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for _, b := range []time.Time{midnight.Add(s.Morning), midnight.Add(s.Evening)} {
		if b.After(t) {
			return b
		}
	}
	return midnight.AddDate(0, 0, 1).Add(s.Morning)
}

// ParseClockOffset parses "HH:MM" into an offset from midnight.
func ParseClockOffset(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock offset %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
