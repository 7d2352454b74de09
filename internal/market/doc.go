// Package market assembles the non-weather context shown next to the HDD
// composite: working-gas storage against its five-year average, futures
// positioning from the CFTC Commitments of Traders report, the Henry Hub
// front-month futures price, and countdowns to the next scheduled storage and
// positioning releases.
//
// Storage figures and manual positioning overrides come from configuration
// and are always reported as stale. Positioning fetched from the COT report
// is stale once the report date is more than eight days old; a price quote
// once its market time is more than four days old.
package market
