package domain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
)

// JoinStats counts the outcome of a spatial join.
type JoinStats struct {
	Assigned   int
	Unassigned int // kept under the unassigned label (JoinLeft)
	Dropped    int // discarded (JoinInner)
}

// Join assigns each record to the first zone containing it. Records outside
// every zone are dropped or kept under the unassigned label depending on
// opts.Mode. A record with an unusable coordinate or date aborts the join
// with ErrMalformedRecord.
func Join(records []Record, zones ZoneLocator, opts JoinOptions) ([]JoinedRecord, JoinStats, error) {
	var stats JoinStats
	if zones == nil {
		return nil, stats, errors.New("join: nil zone locator")
	}
	unassigned := opts.unassignedLabel()
	if opts.Mode == JoinLeft {
		if _, clash := slices.BinarySearch(zones.Labels(), unassigned); clash {
			return nil, stats, fmt.Errorf("%w: unassigned label %q is also a zone label", ErrConfiguration, unassigned)
		}
	}

	out := make([]JoinedRecord, 0, len(records))
	for i, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			return nil, stats, fmt.Errorf("record %d: %w", i, err)
		}

		label, ok := zones.Locate(orb.Point{rec.Lon, rec.Lat})
		switch {
		case ok:
			stats.Assigned++
			out = append(out, JoinedRecord{Record: rec, Zone: label, Assigned: true})
		case opts.Mode == JoinLeft:
			stats.Unassigned++
			out = append(out, JoinedRecord{Record: rec, Zone: unassigned})
		default:
			stats.Dropped++
		}
	}
	return out, stats, nil
}

// ValidateRecord checks that a record's coordinates are finite WGS-84 values.
func ValidateRecord(rec Record) error {
	if !finite(rec.Lat) || !finite(rec.Lon) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrMalformedRecord, rec.Lat, rec.Lon)
	}
	if rec.Lat < -90 || rec.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrMalformedRecord, rec.Lat)
	}
	if rec.Lon < -180 || rec.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrMalformedRecord, rec.Lon)
	}
	return nil
}
