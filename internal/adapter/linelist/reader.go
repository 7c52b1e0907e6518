// Package linelist reads consultation linelists from CSV.
package linelist

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/geoaggregate/internal/config"
	"github.com/couchcryptid/geoaggregate/internal/domain"
)

// Columns names the CSV header fields holding each record attribute.
// Species is optional: when the header lacks it the linelist is untracked.
type Columns struct {
	Date      string
	Category  string
	Latitude  string
	Longitude string
	Species   string
}

// DefaultColumns matches the SAVSNet linelist export.
func DefaultColumns() Columns {
	return Columns{
		Date:      "consult_date",
		Category:  "mpc",
		Latitude:  "owner_latitude",
		Longitude: "owner_longitude",
		Species:   "species",
	}
}

// ColumnsFrom reads the column names from cfg.
func ColumnsFrom(cfg *config.Config) Columns {
	return Columns{
		Date:      cfg.ColumnDate,
		Category:  cfg.ColumnCategory,
		Latitude:  cfg.ColumnLatitude,
		Longitude: cfg.ColumnLongitude,
		Species:   cfg.ColumnSpecies,
	}
}

type columnIndex struct {
	date, category, lat, lon int
	species                  int // -1 when absent
}

// Read parses a linelist CSV with a header row. Records are returned in
// date order; ties keep file order. Extra columns are ignored.
func Read(r io.Reader, cols Columns) (domain.Linelist, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.Linelist{}, fmt.Errorf("%w: linelist has no header row", domain.ErrEmptyInput)
	}
	if err != nil {
		return domain.Linelist{}, fmt.Errorf("%w: read header: %w", domain.ErrMalformedRecord, err)
	}
	idx, err := indexColumns(header, cols)
	if err != nil {
		return domain.Linelist{}, err
	}

	out := domain.Linelist{SpeciesTracked: idx.species >= 0}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Linelist{}, fmt.Errorf("%w: %w", domain.ErrMalformedRecord, err)
		}
		line, _ := cr.FieldPos(0)

		rec, err := parseRow(row, idx)
		if err != nil {
			return domain.Linelist{}, fmt.Errorf("line %d: %w", line, err)
		}
		out.Records = append(out.Records, rec)
	}

	slices.SortStableFunc(out.Records, func(a, b domain.Record) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return out, nil
}

func indexColumns(header []string, cols Columns) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	find := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("%w: header lacks required column %q", domain.ErrMalformedRecord, name)
		}
		return i, nil
	}

	var idx columnIndex
	var err error
	if idx.date, err = find(cols.Date); err != nil {
		return idx, err
	}
	if idx.category, err = find(cols.Category); err != nil {
		return idx, err
	}
	if idx.lat, err = find(cols.Latitude); err != nil {
		return idx, err
	}
	if idx.lon, err = find(cols.Longitude); err != nil {
		return idx, err
	}
	idx.species = -1
	if i, ok := pos[cols.Species]; ok && cols.Species != "" {
		idx.species = i
	}
	return idx, nil
}

// parseRow trims dates and coordinates. Category and species values are kept
// verbatim since categories match exactly.
func parseRow(row []string, idx columnIndex) (domain.Record, error) {
	field := func(i int) string { return strings.TrimSpace(row[i]) }

	date, err := domain.ParseDay(field(idx.date))
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: date %q", domain.ErrMalformedRecord, field(idx.date))
	}
	lat, err := strconv.ParseFloat(field(idx.lat), 64)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: latitude %q", domain.ErrMalformedRecord, field(idx.lat))
	}
	lon, err := strconv.ParseFloat(field(idx.lon), 64)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: longitude %q", domain.ErrMalformedRecord, field(idx.lon))
	}

	rec := domain.Record{
		Date:     date,
		Category: row[idx.category],
		Lat:      lat,
		Lon:      lon,
	}
	if idx.species >= 0 {
		rec.Species = row[idx.species]
	}
	if err := domain.ValidateRecord(rec); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

// Source extracts a linelist for one pipeline run.
type Source struct {
	open    func() (io.ReadCloser, error)
	columns Columns
}

// NewFileSource reads the linelist at path.
func NewFileSource(path string, cols Columns) *Source {
	return &Source{
		open:    func() (io.ReadCloser, error) { return os.Open(path) },
		columns: cols,
	}
}

// NewReaderSource reads the linelist from r, which is consumed by the first Extract.
func NewReaderSource(r io.Reader, cols Columns) *Source {
	return &Source{
		open:    func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		columns: cols,
	}
}

// Extract parses the whole linelist.
func (s *Source) Extract(ctx context.Context) (domain.Linelist, error) {
	if err := ctx.Err(); err != nil {
		return domain.Linelist{}, err
	}
	rc, err := s.open()
	if err != nil {
		return domain.Linelist{}, fmt.Errorf("open linelist: %w", err)
	}
	defer rc.Close()
	return Read(rc, s.columns)
}
