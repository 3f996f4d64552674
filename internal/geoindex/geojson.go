package geoindex

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// nameProperties are the feature property keys tried, in order, when
// naming a boundary. The neighborhood dataset uses lowercase "name"; the
// council district dataset uses "district".
var nameProperties = []string{"name", "NAME", "mapname", "listname", "district", "DISTRICT"}

// LoadGeoJSON reads a FeatureCollection of named boundary polygons.
// A missing or unparsable file wraps ErrDataUnavailable so callers can
// degrade to unclassified neighborhoods instead of aborting.
func LoadGeoJSON(path string) ([]Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "geoindex: read %s: %v", path, err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "geoindex: parse %s: %v", path, err)
	}

	var boundaries []Boundary
	for _, f := range fc.Features {
		name := featureName(f.Properties)
		if name == "" {
			continue
		}
		mp := asMultiPolygon(f.Geometry)
		if mp == nil {
			zap.L().Debug("geoindex: skipping non-polygon feature", zap.String("name", name))
			continue
		}
		boundaries = append(boundaries, Boundary{Name: name, Geom: mp})
	}
	if len(boundaries) == 0 {
		return nil, eris.Wrapf(ErrDataUnavailable, "geoindex: no named polygons in %s", path)
	}

	zap.L().Info("geoindex: boundaries loaded",
		zap.String("path", path),
		zap.Int("count", len(boundaries)),
	)
	return boundaries, nil
}

func featureName(props map[string]interface{}) string {
	for _, key := range nameProperties {
		switch v := props[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			// District numbers arrive as JSON numbers.
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// asMultiPolygon normalizes a feature geometry to a multipolygon. Single
// polygons are wrapped; anything else is rejected.
func asMultiPolygon(g geom.T) *geom.MultiPolygon {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(geom.XY)
		if err := mp.Push(t); err != nil {
			return nil
		}
		return mp
	default:
		return nil
	}
}
