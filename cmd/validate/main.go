// Command validate cross-checks a weekly counts CSV against the linelist and
// zones it was produced from. It recounts every weekly cell by brute force,
// independently of the aggregation pipeline, and verifies the output's shape,
// ordering, category bound, and grid completeness.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -linelist data/mock/linelist.csv \
//	  -output data/mock/weekly.csv \
//	  -geo data/zones.geojson \
//	  -mpc gastroenteric,respiratory -align rolling-from-start -join inner
package main

import (
	"cmp"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/couchcryptid/geoaggregate/internal/adapter/csvout"
	"github.com/couchcryptid/geoaggregate/internal/adapter/linelist"
	"github.com/couchcryptid/geoaggregate/internal/adapter/zones"
	"github.com/couchcryptid/geoaggregate/internal/config"
	"github.com/couchcryptid/geoaggregate/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// outputRow is one parsed row of a weekly counts CSV.
type outputRow struct {
	line      int
	label     string
	species   string
	weekStart domain.Day
	total     int
	cats      []int
}

type cellKey struct {
	label     string
	species   string
	weekStart domain.Day
}

func (r outputRow) key() cellKey { return cellKey{r.label, r.species, r.weekStart} }

func main() {
	linelistPath := flag.String("linelist", "", "linelist CSV the output was produced from")
	outputPath := flag.String("output", "", "weekly counts CSV to check")
	geo := flag.String("geo", "", "GeoJSON zone file; embedded UK nations when empty")
	mpc := flag.String("mpc", "", "comma-separated categories the output was produced with")
	align := flag.String("align", "", "week alignment the output was produced with")
	join := flag.String("join", "", "join mode the output was produced with")
	flag.Parse()

	if *linelistPath == "" || *outputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if *geo != "" {
		cfg.GeoPath = *geo
	}
	opts, err := cfg.AggregateOptions(domain.ParseCategories(*mpc), *join, *align)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg, opts, *linelistPath, *outputPath, os.Stdout))
}

func run(cfg *config.Config, opts domain.Options, linelistPath, outputPath string, out io.Writer) int {
	fmt.Fprintln(out, "=== Weekly Counts Integrity Validation ===")
	fmt.Fprintln(out)

	f, err := os.Open(linelistPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: open linelist: %v\n", err)
		return 1
	}
	ll, err := linelist.Read(f, linelist.ColumnsFrom(cfg))
	f.Close()
	if err != nil {
		fmt.Fprintf(out, "FATAL: read linelist: %v\n", err)
		return 1
	}
	if len(ll.Records) == 0 {
		fmt.Fprintln(out, "FATAL: linelist has no records")
		return 1
	}

	index, err := zones.LoadIndex(cfg.GeoPath, cfg.ZoneLabelField)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load zones: %v\n", err)
		return 1
	}
	joined, _, err := domain.Join(ll.Records, index, opts.Join)
	if err != nil {
		fmt.Fprintf(out, "FATAL: join: %v\n", err)
		return 1
	}

	shape := domain.WeeklyReport{Categories: opts.Categories, SpeciesTracked: ll.SpeciesTracked}
	header, rows, err := loadOutput(outputPath, shape)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load output: %v\n", err)
		return 1
	}

	zoneAxis := index.Labels()
	if opts.Join.Mode == domain.JoinLeft {
		unassigned := cmp.Or(opts.Join.UnassignedLabel, domain.DefaultUnassignedLabel)
		zoneAxis = append(zoneAxis, unassigned)
		slices.Sort(zoneAxis)
	}

	phases := []*phase{
		validateHeader(header, csvout.Header(shape)),
		validateOrder(rows),
		validateCategoryBound(rows),
		validateCompleteness(rows, ll.Records, zoneAxis, opts.Alignment),
		validateRecount(rows, joined, ll.Records[0].Date, opts),
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d linelist, %d joined, %d output rows\n", len(ll.Records), len(joined), len(rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadOutput(path string, shape domain.WeeklyReport) ([]string, []outputRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%s has no header", path)
	}

	header := all[0]
	if len(header) != len(csvout.Header(shape)) {
		return header, nil, nil
	}
	rows := make([]outputRow, 0, len(all)-1)
	for i, rec := range all[1:] {
		row, err := parseOutputRow(rec, shape)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		row.line = i + 2
		rows = append(rows, row)
	}
	return header, rows, nil
}

func parseOutputRow(rec []string, shape domain.WeeklyReport) (outputRow, error) {
	var row outputRow
	col := 0
	next := func() string {
		v := rec[col]
		col++
		return v
	}

	row.label = next()
	if shape.SpeciesTracked {
		row.species = next()
	}
	week, err := domain.ParseDay(next())
	if err != nil {
		return row, fmt.Errorf("week_start: %w", err)
	}
	row.weekStart = week
	if row.total, err = strconv.Atoi(next()); err != nil {
		return row, fmt.Errorf("total_count: %w", err)
	}
	for _, name := range shape.Categories {
		n, err := strconv.Atoi(next())
		if err != nil {
			return row, fmt.Errorf("%s: %w", name, err)
		}
		row.cats = append(row.cats, n)
	}
	return row, nil
}

// ── Validation phases ──

func validateHeader(got, want []string) *phase {
	p := &phase{name: "Output header"}
	if !slices.Equal(got, want) {
		p.errorf("header %v, want %v", got, want)
	}
	return p
}

func validateOrder(rows []outputRow) *phase {
	p := &phase{name: "Row order (label, species, week_start)"}
	for i := 1; i < len(rows); i++ {
		a, b := rows[i-1], rows[i]
		c := cmp.Or(
			cmp.Compare(a.label, b.label),
			cmp.Compare(a.species, b.species),
			cmp.Compare(a.weekStart, b.weekStart),
		)
		switch {
		case c == 0:
			p.errorf("line %d: duplicate cell %s/%s/%s", b.line, b.label, b.species, b.weekStart)
		case c > 0:
			p.errorf("line %d: out of order after line %d", b.line, a.line)
		}
	}
	return p
}

func validateCategoryBound(rows []outputRow) *phase {
	p := &phase{name: "Category counts within total"}
	for _, r := range rows {
		if r.total < 0 {
			p.errorf("line %d: negative total %d", r.line, r.total)
		}
		sum := 0
		for _, n := range r.cats {
			if n < 0 {
				p.errorf("line %d: negative category count %d", r.line, n)
			}
			sum += n
		}
		if sum > r.total {
			p.errorf("line %d: categories sum to %d, total is %d", r.line, sum, r.total)
		}
	}
	return p
}

// validateCompleteness checks that every (zone, species, week) of the grid
// appears, including all-zero weeks.
func validateCompleteness(rows []outputRow, records []domain.Record, zoneAxis []string, align domain.Alignment) *phase {
	p := &phase{name: "Grid completeness"}

	start, end := records[0].Date, records[0].Date
	speciesSet := map[string]struct{}{}
	for _, r := range records {
		start, end = min(start, r.Date), max(end, r.Date)
		speciesSet[r.Species] = struct{}{}
	}

	first := domain.FirstPeriodStart(start, align)
	var weeks []domain.Day
	for d := first; d <= end; d += 7 {
		weeks = append(weeks, d)
	}

	present := make(map[cellKey]struct{}, len(rows))
	for _, r := range rows {
		present[r.key()] = struct{}{}
	}
	want := len(zoneAxis) * len(speciesSet) * len(weeks)
	if len(rows) != want {
		p.errorf("%d rows, want %d zones x %d species x %d weeks = %d",
			len(rows), len(zoneAxis), len(speciesSet), len(weeks), want)
	}
	for _, z := range zoneAxis {
		for s := range speciesSet {
			for _, w := range weeks {
				if _, ok := present[cellKey{z, s, w}]; !ok {
					p.errorf("missing cell %s/%s/%s", z, s, w)
				}
			}
		}
	}
	return p
}

// validateRecount recounts each weekly cell from the joined records. start is
// the earliest linelist date, dropped records included.
func validateRecount(rows []outputRow, joined []domain.JoinedRecord, start domain.Day, opts domain.Options) *phase {
	p := &phase{name: "Brute-force recount"}

	first := domain.FirstPeriodStart(start, opts.Alignment)

	type tally struct {
		total int
		cats  []int
	}
	want := map[cellKey]*tally{}
	for _, j := range joined {
		if j.Date < first {
			continue
		}
		k := cellKey{j.Zone, j.Species, first + (j.Date-first)/7*7}
		t, ok := want[k]
		if !ok {
			t = &tally{cats: make([]int, len(opts.Categories))}
			want[k] = t
		}
		t.total++
		if i := slices.Index(opts.Categories, j.Category); i >= 0 {
			t.cats[i]++
		}
	}

	seen := make(map[cellKey]struct{}, len(rows))
	for _, r := range rows {
		seen[r.key()] = struct{}{}
		t, ok := want[r.key()]
		if !ok {
			t = &tally{cats: make([]int, len(opts.Categories))}
		}
		if r.total != t.total {
			p.errorf("line %d: total %d, recount %d", r.line, r.total, t.total)
		}
		if !slices.Equal(r.cats, t.cats) {
			p.errorf("line %d: categories %v, recount %v", r.line, r.cats, t.cats)
		}
	}
	for k, t := range want {
		if _, ok := seen[k]; !ok {
			p.errorf("recounted cell %s/%s/%s (total %d) missing from output", k.label, k.species, k.weekStart, t.total)
		}
	}
	return p
}
