package domain

import "slices"

// SparseCounts holds the cells that received at least one record.
type SparseCounts struct {
	categories []string
	cells      map[CellKey]*Counts
}

// CountCells groups joined records by (date, zone, species). Total counts
// every record under a key; ByCategory[i] counts records whose category is
// exactly categories[i]. Categories outside the list add to Total only.
func CountCells(joined []JoinedRecord, categories []string) (*SparseCounts, error) {
	if err := ValidateCategories(categories); err != nil {
		return nil, err
	}

	position := make(map[string]int, len(categories))
	for i, c := range categories {
		position[c] = i
	}

	s := &SparseCounts{
		categories: slices.Clone(categories),
		cells:      make(map[CellKey]*Counts),
	}
	for _, jr := range joined {
		key := CellKey{Date: jr.Date, Zone: jr.Zone, Species: jr.Species}
		c, ok := s.cells[key]
		if !ok {
			zero := zeroCounts(len(categories))
			c = &zero
			s.cells[key] = c
		}
		c.Total++
		if i, ok := position[jr.Category]; ok {
			c.ByCategory[i]++
		}
	}
	return s, nil
}

// Categories returns the requested category list in request order.
func (s *SparseCounts) Categories() []string { return slices.Clone(s.categories) }

// Len returns the number of non-empty cells.
func (s *SparseCounts) Len() int { return len(s.cells) }

// Get returns a copy of the counts stored under key.
func (s *SparseCounts) Get(key CellKey) (Counts, bool) {
	c, ok := s.cells[key]
	if !ok {
		return Counts{}, false
	}
	return c.clone(), true
}

// Total sums Total over every stored cell.
func (s *SparseCounts) Total() int {
	n := 0
	for _, c := range s.cells {
		n += c.Total
	}
	return n
}
