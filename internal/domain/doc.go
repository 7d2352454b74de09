// Package domain models population-weighted heating degree days (HDD) and the
// forecast-cycle bookkeeping needed to track how the index moves between model
// runs.
//
// # Data Source
//
// Daily maximum and minimum 2 m temperatures come from a forecast provider
// (Open-Meteo by default) for each location in the registry, 14 days ahead,
// in degrees Fahrenheit. Teleconnection indices (AO, NAO, PNA) come from the
// NOAA Climate Prediction Center daily CSV files.
//
// # Degree Days
//
// A heating degree day measures how far the daily mean temperature falls
// below a fixed baseline:
//
//	dd = max(0, baseline - (tmax + tmin) / 2)     baseline defaults to 65°F
//
// A day at or above the baseline contributes zero, never a negative value.
//
// # Composite Index
//
// Each location carries a weight (its share of regional gas-weighted demand).
// The composite for day i is the weighted sum of the per-location degree days:
//
//	day[i] = Σ weight(loc) * dd(loc)[i]
//
// The 14-day curve splits into a short-term sub-horizon (days 0-6) and a
// long-term sub-horizon (days 7-13). Locations whose forecast could not be
// fetched are skipped, not zero-filled, and the snapshot is flagged partial.
//
// # Forecast Cycles
//
// Global models publish twice a day. Each UTC day is split at two fixed
// boundaries (07:00 and 19:00 by default) into windows tagged "00z" and
// "12z". The early-morning hours before the first boundary still belong to the
// previous day's 12z run. The (date, cycle) pair is the archive key:
//
//	06:59Z on 2024-01-11  →  2024-01-10/12z
//	07:00Z on 2024-01-11  →  2024-01-11/00z
//	19:00Z on 2024-01-11  →  2024-01-11/12z
//
// # Sentiment
//
// Scalars (index values, HDD deltas) are mapped onto an ordinal scale
// (extreme, elevated, baseline) by per-indicator threshold tables. Tables carry
// their own direction: for AO and NAO more negative is more extreme, for PNA and
// HDD deltas more positive is more extreme.
package domain
