package geoindex

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func mpFromRings(t *testing.T, rings ...[]float64) *geom.MultiPolygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	for _, r := range rings {
		require.NoError(t, p.Push(geom.NewLinearRingFlat(geom.XY, r)))
	}
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(p))
	return mp
}

func square(minX, minY, maxX, maxY float64) []float64 {
	return []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}
}

// pathological returns a far-away polygon with many vertices. Lookups that
// miss its bounding box must never walk the vertex list.
func pathological(t *testing.T, vertices int) Boundary {
	t.Helper()
	flat := make([]float64, 0, (vertices+1)*2)
	for i := 0; i <= vertices; i++ {
		angle := 2 * math.Pi * float64(i) / float64(vertices)
		flat = append(flat, -70+math.Cos(angle), 45+math.Sin(angle))
	}
	return Boundary{Name: "Pathological", Geom: mpFromRings(t, flat)}
}

func TestBuild_NoBoundaries(t *testing.T) {
	_, err := Build(nil)
	assert.True(t, eris.Is(err, ErrDataUnavailable))

	_, err = Build([]Boundary{{Name: "empty", Geom: nil}})
	assert.True(t, eris.Is(err, ErrDataUnavailable))
}

func TestLocate_Containment(t *testing.T) {
	ix, err := Build([]Boundary{
		{Name: "Fishtown", Geom: mpFromRings(t, square(-75.14, 39.96, -75.12, 39.98))},
		{Name: "Point Breeze", Geom: mpFromRings(t, square(-75.19, 39.92, -75.17, 39.94))},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		x, y   float64
		want   string
		wantOK bool
	}{
		{"inside first", -75.13, 39.97, "Fishtown", true},
		{"inside second", -75.18, 39.93, "Point Breeze", true},
		{"outside all", -75.50, 39.97, "", false},
		{"on far side of city", -74.90, 39.93, "", false},
		{"zero x sentinel", 0, 39.97, "", false},
		{"zero y sentinel", -75.13, 0, "", false},
		{"both zero", 0, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ix.Locate(tt.x, tt.y)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocate_BBoxShortCircuit(t *testing.T) {
	ix, err := Build([]Boundary{
		pathological(t, 100000),
		{Name: "Fishtown", Geom: mpFromRings(t, square(-75.14, 39.96, -75.12, 39.98))},
	})
	require.NoError(t, err)

	// Well outside the pathological polygon's bounding box: the lookup
	// must reject it on the box alone.
	got, ok := ix.Locate(-75.13, 39.97)
	assert.True(t, ok)
	assert.Equal(t, "Fishtown", got)

	_, ok = ix.Locate(-75.50, 39.50)
	assert.False(t, ok)
}

func TestLocate_PolygonWithHole(t *testing.T) {
	donut := mpFromRings(t,
		square(-75.30, 39.90, -75.20, 40.00),
		square(-75.27, 39.93, -75.23, 39.97),
	)
	ix, err := Build([]Boundary{{Name: "Donut", Geom: donut}})
	require.NoError(t, err)

	// Between outer ring and hole.
	got, ok := ix.Locate(-75.29, 39.91)
	assert.True(t, ok)
	assert.Equal(t, "Donut", got)

	// Inside the hole: contained by the bbox but subtracted by the hole ring.
	_, ok = ix.Locate(-75.25, 39.95)
	assert.False(t, ok)
}

func TestLocate_OverlapFirstWins(t *testing.T) {
	// Overlapping source data is a data-quality condition: the first
	// boundary in stable index order wins, without error.
	shared := square(-75.14, 39.96, -75.12, 39.98)
	ix, err := Build([]Boundary{
		{Name: "First", Geom: mpFromRings(t, shared)},
		{Name: "Second", Geom: mpFromRings(t, shared)},
	})
	require.NoError(t, err)

	for range 3 {
		got, ok := ix.Locate(-75.13, 39.97)
		assert.True(t, ok)
		assert.Equal(t, "First", got)
	}
}

const testGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"name": "North Philadelphia"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[-75.17, 39.98], [-75.13, 39.98], [-75.13, 40.01], [-75.17, 40.01], [-75.17, 39.98]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"district": 1},
      "geometry": {
        "type": "MultiPolygon",
        "coordinates": [[[[-75.16, 39.93], [-75.12, 39.93], [-75.12, 39.96], [-75.16, 39.96], [-75.16, 39.93]]]]
      }
    },
    {
      "type": "Feature",
      "properties": {},
      "geometry": {
        "type": "Point",
        "coordinates": [-75.16, 39.95]
      }
    }
  ]
}`

func TestLoadGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundaries.geojson")
	require.NoError(t, os.WriteFile(path, []byte(testGeoJSON), 0o644))

	boundaries, err := LoadGeoJSON(path)
	require.NoError(t, err)
	require.Len(t, boundaries, 2) // point feature and unnamed features skipped

	assert.Equal(t, "North Philadelphia", boundaries[0].Name)
	assert.Equal(t, "1", boundaries[1].Name)

	ix, err := Build(boundaries)
	require.NoError(t, err)

	got, ok := ix.Locate(-75.15, 40.00)
	assert.True(t, ok)
	assert.Equal(t, "North Philadelphia", got)

	got, ok = ix.Locate(-75.14, 39.94)
	assert.True(t, ok)
	assert.Equal(t, "1", got)
}

func TestLoadGeoJSON_Missing(t *testing.T) {
	_, err := LoadGeoJSON(filepath.Join(t.TempDir(), "nope.geojson"))
	assert.True(t, eris.Is(err, ErrDataUnavailable))
}

func TestLoadGeoJSON_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadGeoJSON(path)
	assert.True(t, eris.Is(err, ErrDataUnavailable))
}
