// Package domain aggregates veterinary consultation linelists into weekly
// per-zone surveillance counts.
//
// # Data Source
//
// A linelist is one row per consultation, exported by practice management
// systems with the consultation date, a main presenting complaint (MPC)
// code, the species of the animal, and the owner's location as WGS-84
// decimal degrees. Owner coordinates are usually postcode centroids, so the
// same coordinate repeats across many rows.
//
// # Pipeline
//
// Aggregation runs four stages in strict order, each consuming the full
// output of the previous one:
//
//	Join      point-in-polygon assignment of each record to a zone label
//	Count     (date, zone, species) cells with a total and one count per requested category
//	Densify   zero-filled view over every date x zone x species combination
//	Resample  7-day windows per (zone, species)
//
// # Join Modes
//
// JoinInner drops records that fall outside every zone. JoinLeft keeps them
// under a configurable unassigned label, which is then treated as an extra
// zone on the grid. Zones are tested in the order they were supplied and the
// first containing zone wins. A point on a zone's outer boundary counts as
// inside, so a point on a boundary shared by two zones goes to the earlier
// one.
//
// # Alignment
//
// AlignRolling starts the first window on the first date of the data.
// AlignSunday starts it on the first Sunday on or after that date and
// leaves out the days before it. The final window may cover fewer than
// seven days and is still reported.
//
// # Dates
//
// Dates are civil days carried as [Day], the number of days since
// 1970-01-01. Times of day and time zones on input records are discarded.
package domain
