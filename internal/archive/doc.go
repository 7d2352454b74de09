// Package archive persists one record per forecast cycle so later cycles can
// be compared against earlier ones.
//
// A record stores each location's raw 14-day degree-day series, never a
// pre-weighted total, so a composite can be rebuilt under whatever weight
// table is current when the comparison is made.
//
// # Concurrency
//
// Neither backend provides transactional isolation across processes. The file
// backend performs a read-modify-write of the whole document on every Put:
// when two refreshes write at the same time, the last rename wins and the
// other write is lost. Within one process a mutex serialises access.
//
// # Schema evolution
//
// Records are decoded over a value pre-populated with the defaults declared
// in the Record struct tags, so files written before a field existed still
// load:
//
//	schema_version        1
//	weight_table_version  "legacy"
//	baseline              65
//	horizon               14
//
// # Corruption
//
// A file that cannot be read or parsed is treated as an empty archive. The
// condition is reported through Status and logged; it never blocks startup
// or later writes. The unreadable file is moved aside before the next write.
package archive
