package geoindex

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LoadShapefile reads named boundary polygons from an ESRI shapefile,
// taking each boundary's name from the given attribute field. Shapefile
// ring order follows the ESRI convention: clockwise rings open a new
// polygon, counter-clockwise rings are holes in the preceding one.
func LoadShapefile(path, nameField string) ([]Boundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "geoindex: open shapefile %s: %v", path, err)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, nameField)
	if nameIdx < 0 {
		return nil, eris.Errorf("geoindex: shapefile field %q not found in %s", nameField, path)
	}

	var boundaries []Boundary
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		name := strings.TrimSpace(reader.Attribute(nameIdx))
		if name == "" {
			continue
		}
		mp := shpPolygonToMultiPolygon(poly)
		if mp == nil {
			zap.L().Debug("geoindex: skipping malformed shape", zap.String("name", name))
			continue
		}
		boundaries = append(boundaries, Boundary{Name: name, Geom: mp})
	}
	if len(boundaries) == 0 {
		return nil, eris.Wrapf(ErrDataUnavailable, "geoindex: no named polygons in %s", path)
	}

	zap.L().Info("geoindex: shapefile boundaries loaded",
		zap.String("path", path),
		zap.Int("count", len(boundaries)),
	)
	return boundaries, nil
}

// fieldIndex returns the index of a named attribute field, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// shpPolygonToMultiPolygon converts a shapefile polygon, grouping its parts
// into outer rings and holes by winding order.
func shpPolygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if len(flat) < 6 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		// Clockwise (negative signed area) starts a new polygon; a hole
		// before any outer ring is treated as an outer ring.
		if signedArea(flat) <= 0 || current == nil {
			if current != nil {
				if err := mp.Push(current); err != nil {
					zap.L().Debug("geoindex: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
				}
			}
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("geoindex: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if current != nil {
		if err := mp.Push(current); err != nil {
			zap.L().Debug("geoindex: skipping trailing polygon part", zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace sum over an XY flat ring: positive for
// counter-clockwise winding.
func signedArea(flat []float64) float64 {
	n := len(flat) / 2
	var sum float64
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		sum += (flat[2*j] + flat[2*i]) * (flat[2*i+1] - flat[2*j+1])
	}
	return sum / 2
}
