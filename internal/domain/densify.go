package domain

import (
	"fmt"
	"iter"
	"slices"
)

// GridAxes are the three dimensions of the dense grid.
type GridAxes struct {
	Start   Day // first date, inclusive
	End     Day // last date, inclusive
	Zones   []string
	Species []string
}

// Days returns the number of dates on the axis.
func (a GridAxes) Days() int { return int(a.End-a.Start) + 1 }

// Size returns the number of cells in the full cross product.
func (a GridAxes) Size() int { return a.Days() * len(a.Zones) * len(a.Species) }

// NewGridAxes derives the axes of a run: every date between the earliest and
// latest record, the given zone labels, and every species observed in the
// records. Zones and species are sorted. Zero records is ErrEmptyInput.
func NewGridAxes(records []Record, zones []string) (GridAxes, error) {
	if len(records) == 0 {
		return GridAxes{}, fmt.Errorf("%w: no records to aggregate", ErrEmptyInput)
	}

	start, end := records[0].Date, records[0].Date
	species := make(map[string]struct{})
	for _, r := range records {
		start = min(start, r.Date)
		end = max(end, r.Date)
		species[r.Species] = struct{}{}
	}

	axes := GridAxes{
		Start:   start,
		End:     end,
		Zones:   slices.Clone(zones),
		Species: make([]string, 0, len(species)),
	}
	for s := range species {
		axes.Species = append(axes.Species, s)
	}
	slices.Sort(axes.Zones)
	axes.Zones = slices.Compact(axes.Zones)
	slices.Sort(axes.Species)
	return axes, nil
}

// DenseGrid is a zero-filled view over every (date, zone, species) triple of
// its axes. It never allocates the full cross product; cells are produced on
// demand from the sparse table, one (zone, species) column at a time.
type DenseGrid struct {
	axes   GridAxes
	sparse *SparseCounts
}

// DenseCell is one cell of the dense grid.
type DenseCell struct {
	Key    CellKey
	Counts Counts
}

// Densify left-joins the sparse table against the axes. Every sparse cell
// must fall on the axes, otherwise the counts would silently go missing.
func Densify(sparse *SparseCounts, axes GridAxes) (*DenseGrid, error) {
	if axes.End < axes.Start || len(axes.Species) == 0 {
		return nil, fmt.Errorf("%w: grid has no dates or no species", ErrEmptyInput)
	}

	zones := make(map[string]struct{}, len(axes.Zones))
	for _, z := range axes.Zones {
		zones[z] = struct{}{}
	}
	species := make(map[string]struct{}, len(axes.Species))
	for _, s := range axes.Species {
		species[s] = struct{}{}
	}
	for key := range sparse.cells {
		_, zoneOK := zones[key.Zone]
		_, speciesOK := species[key.Species]
		if !zoneOK || !speciesOK || key.Date < axes.Start || key.Date > axes.End {
			return nil, fmt.Errorf("densify: cell (%s, %q, %q) lies outside the grid axes", key.Date, key.Zone, key.Species)
		}
	}

	return &DenseGrid{axes: axes, sparse: sparse}, nil
}

// Axes returns the grid axes.
func (g *DenseGrid) Axes() GridAxes { return g.axes }

// Categories returns the category list of the counts.
func (g *DenseGrid) Categories() []string { return g.sparse.Categories() }

// Len returns |dates| x |zones| x |species|.
func (g *DenseGrid) Len() int { return g.axes.Size() }

// Cell returns the counts of one triple, zero when no record fell in it.
func (g *DenseGrid) Cell(date Day, zone, species string) Counts {
	if c, ok := g.sparse.Get(CellKey{Date: date, Zone: zone, Species: species}); ok {
		return c
	}
	return zeroCounts(len(g.sparse.categories))
}

// Series returns the daily counts of one (zone, species) pair; index i holds
// the date Start+i.
func (g *DenseGrid) Series(zone, species string) []Counts {
	out := make([]Counts, g.axes.Days())
	for i := range out {
		out[i] = g.Cell(g.axes.Start+Day(i), zone, species)
	}
	return out
}

// Cells yields every cell ordered by zone, species, then date.
func (g *DenseGrid) Cells() iter.Seq[DenseCell] {
	return func(yield func(DenseCell) bool) {
		for _, zone := range g.axes.Zones {
			for _, species := range g.axes.Species {
				for d := g.axes.Start; d <= g.axes.End; d++ {
					cell := DenseCell{
						Key:    CellKey{Date: d, Zone: zone, Species: species},
						Counts: g.Cell(d, zone, species),
					}
					if !yield(cell) {
						return
					}
				}
			}
		}
	}
}
