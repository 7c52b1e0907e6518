package domain

import (
	"time"
)

// Day is a civil date expressed as days since 1970-01-01.
type Day int

const dayLayout = "2006-01-02"

// DayOf returns the civil date of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// ParseDay parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, err
	}
	return DayOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

// Weekday reports the day of the week.
func (d Day) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Day) String() string {
	return d.Time().Format(dayLayout)
}

// Record is one linelist consultation.
type Record struct {
	Date     Day
	Category string
	Species  string // empty when the linelist does not carry species
	Lat      float64
	Lon      float64
}

// Linelist is the parsed input of one run.
type Linelist struct {
	Records []Record

	// SpeciesTracked is false when the source had no species column; the
	// species axis then collapses to the single empty value.
	SpeciesTracked bool
}

// JoinedRecord is a record annotated with the zone that contains it.
type JoinedRecord struct {
	Record
	Zone     string
	Assigned bool // false when Zone is the unassigned label
}

// CellKey identifies one daily aggregation cell.
type CellKey struct {
	Date    Day
	Zone    string
	Species string
}

// Counts is the value of a cell: a total over all records plus one count per
// requested category, aligned with the category list of the run.
type Counts struct {
	Total      int
	ByCategory []int
}

func zeroCounts(categories int) Counts {
	return Counts{ByCategory: make([]int, categories)}
}

// Add accumulates o into c. Both must carry the same number of categories.
func (c *Counts) Add(o Counts) {
	c.Total += o.Total
	for i, v := range o.ByCategory {
		c.ByCategory[i] += v
	}
}

// CategorySum is the sum of the per-category counts. It never exceeds Total.
func (c Counts) CategorySum() int {
	n := 0
	for _, v := range c.ByCategory {
		n += v
	}
	return n
}

func (c Counts) clone() Counts {
	out := Counts{Total: c.Total, ByCategory: make([]int, len(c.ByCategory))}
	copy(out.ByCategory, c.ByCategory)
	return out
}

// WeeklyCell is the sum of the daily cells of one (zone, species) pair over
// [PeriodStart, PeriodStart+7d).
type WeeklyCell struct {
	Zone        string
	Species     string
	PeriodStart Day
	Counts      Counts
}

// WeeklyReport is the output of one aggregation run.
type WeeklyReport struct {
	Categories     []string
	SpeciesTracked bool
	Alignment      Alignment
	JoinMode       JoinMode
	Cells          []WeeklyCell

	Join        JoinStats
	GridCells   int
	GeneratedAt time.Time
	RunID       string // set by the pipeline; empty for direct Aggregate calls
}
