// Package csvout serializes weekly reports as delimited text.
package csvout

import (
	"cmp"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/couchcryptid/geoaggregate/internal/domain"
)

// Header returns the column names for a report: label, the species column
// when species is tracked, week_start, total_count, then one column per
// requested category in request order.
func Header(r domain.WeeklyReport) []string {
	h := []string{"label"}
	if r.SpeciesTracked {
		h = append(h, "species")
	}
	h = append(h, "week_start", "total_count")
	return append(h, r.Categories...)
}

// Encode writes the report to w, rows ordered by label, species, week start.
func Encode(w io.Writer, r domain.WeeklyReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(r)); err != nil {
		return err
	}

	cells := slices.Clone(r.Cells)
	slices.SortStableFunc(cells, func(a, b domain.WeeklyCell) int {
		return cmp.Or(
			cmp.Compare(a.Zone, b.Zone),
			cmp.Compare(a.Species, b.Species),
			cmp.Compare(a.PeriodStart, b.PeriodStart),
		)
	})

	row := make([]string, 0, len(Header(r)))
	for _, c := range cells {
		row = row[:0]
		row = append(row, c.Zone)
		if r.SpeciesTracked {
			row = append(row, c.Species)
		}
		row = append(row, c.PeriodStart.String(), strconv.Itoa(c.Counts.Total))
		for _, n := range c.Counts.ByCategory {
			row = append(row, strconv.Itoa(n))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the report to path through a temporary file in the same
// directory, renamed into place only after a complete write. A failed write
// leaves any existing file at path untouched.
func WriteFile(path string, r domain.WeeklyReport) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// FileSink loads reports into a CSV file.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Load writes the report atomically.
func (s *FileSink) Load(ctx context.Context, r domain.WeeklyReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteFile(s.path, r)
}
