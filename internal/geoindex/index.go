// Package geoindex answers "which neighborhood contains this point" against
// a set of named boundary polygons loaded once at startup.
//
// Coordinates are WGS84 lon/lat throughout: boundaries are indexed as
// loaded and Locate expects pre-projected input. The record provider
// requests reprojected output from the upstream API, so the index never
// reprojects, neither at build time nor per lookup.
package geoindex

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrDataUnavailable indicates the boundary dataset could not be loaded.
// Callers treat a missing index as "no neighborhood assigned for any
// record" rather than a fatal condition.
var ErrDataUnavailable = eris.New("geoindex: boundary dataset unavailable")

// Boundary is one named polygon area, possibly multi-ring. Ring 0 of each
// polygon is the outer ring; subsequent rings are holes.
type Boundary struct {
	Name string
	Geom *geom.MultiPolygon
}

type entry struct {
	name                   string
	mp                     *geom.MultiPolygon
	minX, minY, maxX, maxY float64
}

// Index is an immutable point-in-polygon index. Safe for concurrent use
// after Build; no mutation occurs post-construction.
type Index struct {
	entries []entry
}

// Build constructs the index, precomputing each boundary's axis-aligned
// bounding box. The bbox rejection test is what makes per-record lookups
// affordable against 150+ multi-ring polygons; the exact containment test
// only runs for candidates whose box contains the point.
func Build(boundaries []Boundary) (*Index, error) {
	if len(boundaries) == 0 {
		return nil, eris.Wrap(ErrDataUnavailable, "geoindex: no boundaries to index")
	}

	entries := make([]entry, 0, len(boundaries))
	for _, b := range boundaries {
		if b.Geom == nil || b.Geom.NumPolygons() == 0 {
			continue
		}
		bounds := b.Geom.Bounds()
		entries = append(entries, entry{
			name: b.Name,
			mp:   b.Geom,
			minX: bounds.Min(0),
			minY: bounds.Min(1),
			maxX: bounds.Max(0),
			maxY: bounds.Max(1),
		})
	}
	if len(entries) == 0 {
		return nil, eris.Wrap(ErrDataUnavailable, "geoindex: no usable polygons")
	}
	return &Index{entries: entries}, nil
}

// Len returns the number of indexed boundaries.
func (ix *Index) Len() int { return len(ix.entries) }

// Names returns the indexed boundary names in stable iteration order.
func (ix *Index) Names() []string {
	names := make([]string, len(ix.entries))
	for i, e := range ix.entries {
		names[i] = e.name
	}
	return names
}

// Locate returns the name of the boundary containing the point, or false.
// Missing or zero coordinates return false immediately; sentinel
// coordinates must not reach the polygon tests. Boundaries are assumed
// non-overlapping; if source data overlaps, the first match in index order
// wins. That is a data-quality condition, not a fault.
func (ix *Index) Locate(x, y float64) (string, bool) {
	if x == 0 || y == 0 {
		return "", false
	}
	for _, e := range ix.entries {
		if x < e.minX || x > e.maxX || y < e.minY || y > e.maxY {
			continue
		}
		if multiPolygonContains(e.mp, x, y) {
			return e.name, true
		}
	}
	return "", false
}

// multiPolygonContains runs the exact even-odd containment test. A point
// inside any polygon's outer ring and outside all of that polygon's hole
// rings is contained.
func multiPolygonContains(mp *geom.MultiPolygon, x, y float64) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if p.NumLinearRings() == 0 {
			continue
		}
		if !ringContains(p.LinearRing(0).FlatCoords(), x, y) {
			continue
		}
		inHole := false
		for r := 1; r < p.NumLinearRings(); r++ {
			if ringContains(p.LinearRing(r).FlatCoords(), x, y) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// ringContains is a ray-crossing test over XY flat coordinates.
func ringContains(flat []float64, x, y float64) bool {
	n := len(flat) / 2
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[2*i], flat[2*i+1]
		xj, yj := flat[2*j], flat[2*j+1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
