// Package zones loads reporting zones from GeoJSON.
package zones

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultLabelField is the feature property read for zone labels.
const DefaultLabelField = "label"

// fallbackLabelField is tried when the configured property is missing.
const fallbackLabelField = "location"

// defaultZones holds coarse UK nation outlines labelled with ONS country codes.
//
//go:embed default_zones.geojson
var defaultZones []byte

// Read parses a GeoJSON FeatureCollection into zones. Features sharing a
// label are merged into one multipolygon zone at the position of the first.
func Read(r io.Reader, labelField string) ([]domain.Zone, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geography: %w", err)
	}
	return parse(data, labelField)
}

// ReadFile reads the GeoJSON file at path.
func ReadFile(path, labelField string) ([]domain.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geography: %w", err)
	}
	return parse(data, labelField)
}

// Default returns the embedded zone set.
func Default() ([]domain.Zone, error) {
	return parse(defaultZones, DefaultLabelField)
}

// LoadIndex builds a zone index from path, or from the embedded set when
// path is empty.
func LoadIndex(path, labelField string) (*domain.ZoneIndex, error) {
	var (
		zones []domain.Zone
		err   error
	)
	if path == "" {
		zones, err = Default()
	} else {
		zones, err = ReadFile(path, labelField)
	}
	if err != nil {
		return nil, err
	}
	return domain.NewZoneIndex(zones)
}

func parse(data []byte, labelField string) ([]domain.Zone, error) {
	if labelField == "" {
		labelField = DefaultLabelField
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode geojson: %w", domain.ErrInvalidGeometry, err)
	}

	var (
		order []string
		polys = make(map[string]orb.MultiPolygon)
	)
	for i, f := range fc.Features {
		label, ok := featureLabel(f.Properties, labelField)
		if !ok {
			return nil, fmt.Errorf("%w: feature %d has no %q property", domain.ErrInvalidGeometry, i, labelField)
		}

		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		case nil:
			return nil, fmt.Errorf("%w: feature %d (%s) has no geometry", domain.ErrInvalidGeometry, i, label)
		default:
			return nil, fmt.Errorf("%w: feature %d (%s) is a %s", domain.ErrInvalidGeometry, i, label, g.GeoJSONType())
		}

		if _, seen := polys[label]; !seen {
			order = append(order, label)
		}
		polys[label] = append(polys[label], mp...)
	}

	out := make([]domain.Zone, 0, len(order))
	for _, label := range order {
		var g orb.Geometry = polys[label]
		if len(polys[label]) == 1 {
			g = polys[label][0]
		}
		out = append(out, domain.Zone{Label: label, Geometry: g})
	}
	return out, nil
}

func featureLabel(props geojson.Properties, field string) (string, bool) {
	for _, key := range []string{field, fallbackLabelField} {
		switch v := props[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}
