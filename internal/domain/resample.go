package domain

import "time"

// periodDays is the length of a resampling window.
const periodDays = 7

// FirstPeriodStart returns the start of the first window for data starting on start.
func FirstPeriodStart(start Day, align Alignment) Day {
	if align == AlignSunday {
		return start + Day((7-int(start.Weekday())+int(time.Sunday))%7)
	}
	return start
}

// Resample sums the dense grid into consecutive 7-day windows per (zone,
// species). Under AlignSunday the days before the first Sunday are left
// out; the last window may be partial. Output is ordered by zone, species,
// then period start.
func Resample(grid *DenseGrid, align Alignment) []WeeklyCell {
	axes := grid.Axes()
	first := FirstPeriodStart(axes.Start, align)
	if first > axes.End {
		return []WeeklyCell{}
	}
	periods := (int(axes.End-first) / periodDays) + 1
	categories := len(grid.sparse.categories)

	out := make([]WeeklyCell, 0, periods*len(axes.Zones)*len(axes.Species))
	for _, zone := range axes.Zones {
		for _, species := range axes.Species {
			series := grid.Series(zone, species)
			for p := range periods {
				start := first + Day(p*periodDays)
				sum := zeroCounts(categories)
				for d := start; d < start+periodDays && d <= axes.End; d++ {
					sum.Add(series[d-axes.Start])
				}
				out = append(out, WeeklyCell{
					Zone:        zone,
					Species:     species,
					PeriodStart: start,
					Counts:      sum,
				})
			}
		}
	}
	return out
}
