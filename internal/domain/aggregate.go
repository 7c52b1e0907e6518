package domain

import (
	"fmt"
	"slices"
)

// Aggregate runs the full batch: join, count, densify and resample. Any
// stage failure aborts the run and no partial report is returned.
//
// The date and species axes come from the whole linelist, before the join,
// so a record dropped by an inner join still widens the date range. The zone
// axis is every zone label, plus the unassigned label in JoinLeft mode.
func Aggregate(linelist Linelist, zones ZoneLocator, opts Options) (WeeklyReport, error) {
	if err := ValidateCategories(opts.Categories); err != nil {
		return WeeklyReport{}, err
	}
	if len(linelist.Records) == 0 {
		return WeeklyReport{}, fmt.Errorf("%w: linelist has no records", ErrEmptyInput)
	}

	joined, stats, err := Join(linelist.Records, zones, opts.Join)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("spatial join: %w", err)
	}

	sparse, err := CountCells(joined, opts.Categories)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("count cells: %w", err)
	}

	labels := zones.Labels()
	if opts.Join.Mode == JoinLeft {
		labels = append(labels, opts.Join.unassignedLabel())
	}
	axes, err := NewGridAxes(linelist.Records, labels)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("grid axes: %w", err)
	}

	grid, err := Densify(sparse, axes)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("densify: %w", err)
	}

	return WeeklyReport{
		Categories:     slices.Clone(opts.Categories),
		SpeciesTracked: linelist.SpeciesTracked,
		Alignment:      opts.Alignment,
		JoinMode:       opts.Join.Mode,
		Cells:          Resample(grid, opts.Alignment),
		Join:           stats,
		GridCells:      grid.Len(),
		GeneratedAt:    clock.Now().UTC(),
	}, nil
}

// TotalCount sums Total over every cell of the report.
func (r WeeklyReport) TotalCount() int {
	n := 0
	for _, c := range r.Cells {
		n += c.Counts.Total
	}
	return n
}
