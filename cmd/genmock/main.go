// Command genmock writes a reproducible synthetic consultation linelist with
// owner locations drawn inside the zones of a GeoJSON file. It is used for
// demos and for load-testing the aggregation server.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -geo data/zones.geojson \
//	  -out data/mock/linelist.csv \
//	  -n 5000 -seed 7 -start 2024-01-01 -days 84
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/geoaggregate/internal/adapter/linelist"
	"github.com/couchcryptid/geoaggregate/internal/adapter/zones"
	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/paulmach/orb"
)

// maxAttempts bounds rejection sampling for one point.
const maxAttempts = 1000

type options struct {
	n          int
	seed       uint64
	start      domain.Day
	days       int
	categories []string
	species    []string
	outside    float64 // share of records placed outside every zone
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	geo := flag.String("geo", "", "GeoJSON zone file; embedded UK nations when empty")
	labelField := flag.String("label-field", zones.DefaultLabelField, "zone label property")
	out := flag.String("out", "", "output CSV path (required)")
	n := flag.Int("n", 1000, "number of records")
	seed := flag.Uint64("seed", 1, "random seed")
	start := flag.String("start", "2024-01-01", "first consultation date")
	days := flag.Int("days", 56, "number of days covered")
	mpc := flag.String("mpc", "gastroenteric,respiratory,pruritus,other", "categories to draw from")
	species := flag.String("species", "dog,cat", "species to draw from; empty omits the column")
	outside := flag.Float64("outside", 0.02, "share of records outside every zone")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return errors.New("missing required flag: -out")
	}
	startDay, err := domain.ParseDay(*start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	var zs []domain.Zone
	if *geo == "" {
		zs, err = zones.Default()
	} else {
		zs, err = zones.ReadFile(*geo, *labelField)
	}
	if err != nil {
		return err
	}

	opts := options{
		n:          *n,
		seed:       *seed,
		start:      startDay,
		days:       *days,
		categories: domain.ParseCategories(*mpc),
		species:    domain.ParseCategories(*species),
		outside:    *outside,
	}
	records, err := generate(zs, opts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := write(f, records, len(opts.species) > 0); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", *out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("wrote %d records over %d zones to %s", len(records), len(zs), *out)
	return nil
}

// generate draws opts.n records. Dates are uniform over the window, zones are
// picked uniformly, and points are rejection-sampled inside the chosen zone's
// bounding box until the zone index assigns them to that zone.
func generate(zs []domain.Zone, opts options) ([]domain.Record, error) {
	if opts.n < 0 || opts.days <= 0 {
		return nil, fmt.Errorf("invalid size: n=%d days=%d", opts.n, opts.days)
	}
	if len(zs) == 0 {
		return nil, fmt.Errorf("%w: no zones to place records in", domain.ErrEmptyInput)
	}
	if len(opts.categories) == 0 {
		return nil, errors.New("no categories to draw from")
	}
	index, err := domain.NewZoneIndex(zs)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	var all orb.Bound
	for i, z := range zs {
		if i == 0 {
			all = z.Geometry.Bound()
		} else {
			all = all.Union(z.Geometry.Bound())
		}
	}

	records := make([]domain.Record, 0, opts.n)
	for range opts.n {
		rec := domain.Record{
			Date:     opts.start + domain.Day(rng.IntN(opts.days)),
			Category: opts.categories[rng.IntN(len(opts.categories))],
		}
		if len(opts.species) > 0 {
			rec.Species = opts.species[rng.IntN(len(opts.species))]
		}

		var p orb.Point
		var ok bool
		if rng.Float64() < opts.outside {
			p, ok = sampleOutside(rng, index, all)
		} else {
			z := zs[rng.IntN(len(zs))]
			p, ok = sampleInside(rng, index, z)
		}
		if !ok {
			return nil, fmt.Errorf("no point found after %d attempts", maxAttempts)
		}
		rec.Lon, rec.Lat = p.Lon(), p.Lat()
		records = append(records, rec)
	}
	return records, nil
}

func sampleInside(rng *rand.Rand, index *domain.ZoneIndex, z domain.Zone) (orb.Point, bool) {
	b := z.Geometry.Bound()
	for range maxAttempts {
		p := round(uniformIn(rng, b))
		if label, ok := index.Locate(p); ok && label == z.Label {
			return p, true
		}
	}
	return orb.Point{}, false
}

// sampleOutside draws from a ring of boxes around the zone set's bounds.
func sampleOutside(rng *rand.Rand, index *domain.ZoneIndex, all orb.Bound) (orb.Point, bool) {
	pad := max(all.Max.X()-all.Min.X(), all.Max.Y()-all.Min.Y(), 1)
	wide := all.Pad(pad)
	for range maxAttempts {
		p := round(uniformIn(rng, wide))
		if p.Lat() < -90 || p.Lat() > 90 || p.Lon() < -180 || p.Lon() > 180 {
			continue
		}
		if _, ok := index.Locate(p); !ok {
			return p, true
		}
	}
	return orb.Point{}, false
}

func uniformIn(rng *rand.Rand, b orb.Bound) orb.Point {
	return orb.Point{
		b.Min.X() + rng.Float64()*(b.Max.X()-b.Min.X()),
		b.Min.Y() + rng.Float64()*(b.Max.Y()-b.Min.Y()),
	}
}

// round truncates to the six decimals written to the CSV, so the point that
// was tested is the point that is read back.
func round(p orb.Point) orb.Point {
	r := func(f float64) float64 {
		v, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 6, 64), 64)
		return v
	}
	return orb.Point{r(p.X()), r(p.Y())}
}

func write(w io.Writer, records []domain.Record, withSpecies bool) error {
	cols := linelist.DefaultColumns()
	header := []string{cols.Date, cols.Category, cols.Latitude, cols.Longitude}
	if withSpecies {
		header = append(header, cols.Species)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Date.String(),
			r.Category,
			strconv.FormatFloat(r.Lat, 'f', 6, 64),
			strconv.FormatFloat(r.Lon, 'f', 6, 64),
		}
		if withSpecies {
			row = append(row, r.Species)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
