package domain

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Zone is one named reporting unit. Geometry must be an orb.Polygon or an
// orb.MultiPolygon in WGS-84 longitude/latitude order.
type Zone struct {
	Label    string
	Geometry orb.Geometry
}

// ZoneLocator answers containment queries over a fixed zone set.
type ZoneLocator interface {
	// Locate returns the label of the first zone containing p.
	Locate(p orb.Point) (string, bool)

	// Labels returns every zone label in sorted order.
	Labels() []string
}

// gridIndexThreshold is the zone count from which lookups go through a
// uniform bucket grid instead of a linear bounding-box scan.
const gridIndexThreshold = 32

// maxGridSide caps the bucket grid at maxGridSide x maxGridSide cells.
const maxGridSide = 256

// ZoneIndex is an immutable set of zones. It is safe for concurrent use.
type ZoneIndex struct {
	zones  []indexedZone
	labels []string
	grid   *bucketGrid
}

type indexedZone struct {
	label  string
	bound  orb.Bound
	polys  []orb.Polygon
	bounds []orb.Bound
}

// NewZoneIndex validates the zones and builds an index over them. The order
// of zones is kept: Locate returns the first containing zone in that order.
// An empty zone set is valid; every lookup then misses.
func NewZoneIndex(zones []Zone) (*ZoneIndex, error) {
	ix := &ZoneIndex{
		zones:  make([]indexedZone, 0, len(zones)),
		labels: make([]string, 0, len(zones)),
	}
	seen := make(map[string]struct{}, len(zones))

	for i, z := range zones {
		if z.Label == "" {
			return nil, fmt.Errorf("%w: zone %d has an empty label", ErrInvalidGeometry, i)
		}
		if _, dup := seen[z.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate zone label %q", ErrInvalidGeometry, z.Label)
		}
		seen[z.Label] = struct{}{}

		polys, err := polygonsOf(z.Geometry)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", z.Label, err)
		}

		iz := indexedZone{label: z.Label, polys: polys, bounds: make([]orb.Bound, len(polys))}
		for j, p := range polys {
			if err := validatePolygon(p); err != nil {
				return nil, fmt.Errorf("zone %q polygon %d: %w", z.Label, j, err)
			}
			iz.bounds[j] = p.Bound()
			if j == 0 {
				iz.bound = iz.bounds[j]
			} else {
				iz.bound = iz.bound.Union(iz.bounds[j])
			}
		}
		ix.zones = append(ix.zones, iz)
		ix.labels = append(ix.labels, z.Label)
	}

	slices.Sort(ix.labels)
	if len(ix.zones) >= gridIndexThreshold {
		ix.grid = newBucketGrid(ix.zones)
	}
	return ix, nil
}

// Len returns the number of zones.
func (ix *ZoneIndex) Len() int { return len(ix.zones) }

// Labels returns the zone labels in sorted order.
func (ix *ZoneIndex) Labels() []string {
	return slices.Clone(ix.labels)
}

// Locate returns the label of the first zone, in construction order, whose
// geometry contains p. Points on an outer ring count as contained; points
// on a hole's ring do not.
func (ix *ZoneIndex) Locate(p orb.Point) (string, bool) {
	if ix.grid != nil {
		for _, i := range ix.grid.candidates(p) {
			if ix.zones[i].contains(p) {
				return ix.zones[i].label, true
			}
		}
		return "", false
	}
	for i := range ix.zones {
		if ix.zones[i].contains(p) {
			return ix.zones[i].label, true
		}
	}
	return "", false
}

func (z *indexedZone) contains(p orb.Point) bool {
	if !z.bound.Contains(p) {
		return false
	}
	for i, poly := range z.polys {
		if z.bounds[i].Contains(p) && planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

func polygonsOf(g orb.Geometry) ([]orb.Polygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
		}
		return v, nil
	case nil:
		return nil, fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
	default:
		return nil, fmt.Errorf("%w: unsupported geometry type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

// validatePolygon rejects polygons that cannot support a containment test:
// no rings, non-finite vertices, fewer than three distinct vertices, or all
// vertices on one line. Self-intersecting rings are accepted, even when their
// signed area nets to zero; the even-odd ray test is well defined on them.
func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}
	for i, ring := range p {
		distinct := make(map[orb.Point]struct{}, len(ring))
		for _, pt := range ring {
			if !finite(pt[0]) || !finite(pt[1]) {
				return fmt.Errorf("%w: ring %d has a non-finite vertex", ErrInvalidGeometry, i)
			}
			distinct[pt] = struct{}{}
		}
		if len(distinct) < 3 {
			return fmt.Errorf("%w: ring %d has %d distinct vertices", ErrInvalidGeometry, i, len(distinct))
		}
		if collinear(ring) {
			return fmt.Errorf("%w: ring %d has zero area", ErrInvalidGeometry, i)
		}
	}
	return nil
}

// collinear reports whether every vertex of the ring lies on one line.
func collinear(ring orb.Ring) bool {
	origin := ring[0]
	var dir orb.Point
	for _, pt := range ring[1:] {
		if pt != origin {
			dir = orb.Point{pt[0] - origin[0], pt[1] - origin[1]}
			break
		}
	}
	for _, pt := range ring {
		if dir[0]*(pt[1]-origin[1])-dir[1]*(pt[0]-origin[0]) != 0 {
			return false
		}
	}
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// bucketGrid partitions the union bound of all zones into equal cells. Each
// cell lists, in ascending zone order, the zones whose bound overlaps it, so
// walking a cell's list preserves first-match order.
type bucketGrid struct {
	bound      orb.Bound
	cols, rows int
	cellW      float64
	cellH      float64
	cells      [][]int
}

func newBucketGrid(zones []indexedZone) *bucketGrid {
	bound := zones[0].bound
	for _, z := range zones[1:] {
		bound = bound.Union(z.bound)
	}

	side := int(math.Ceil(math.Sqrt(float64(len(zones)))))
	side = min(max(side, 1), maxGridSide)

	g := &bucketGrid{
		bound: bound,
		cols:  side,
		rows:  side,
		cellW: (bound.Max[0] - bound.Min[0]) / float64(side),
		cellH: (bound.Max[1] - bound.Min[1]) / float64(side),
		cells: make([][]int, side*side),
	}

	for i, z := range zones {
		c0, r0 := g.cellOf(z.bound.Min)
		c1, r1 := g.cellOf(z.bound.Max)
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				idx := r*g.cols + c
				g.cells[idx] = append(g.cells[idx], i)
			}
		}
	}
	return g
}

func (g *bucketGrid) cellOf(p orb.Point) (col, row int) {
	col = clampIndex((p[0]-g.bound.Min[0])/g.cellW, g.cols)
	row = clampIndex((p[1]-g.bound.Min[1])/g.cellH, g.rows)
	return col, row
}

func (g *bucketGrid) candidates(p orb.Point) []int {
	if !g.bound.Contains(p) {
		return nil
	}
	c, r := g.cellOf(p)
	return g.cells[r*g.cols+c]
}

func clampIndex(f float64, n int) int {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f >= float64(n) {
		return n - 1
	}
	return int(f)
}
