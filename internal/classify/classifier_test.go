package classify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/geoindex"
	"github.com/phlwatch/digest-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testIndex(t *testing.T) *geoindex.Index {
	t.Helper()
	ring := func(minX, minY, maxX, maxY float64) *geom.MultiPolygon {
		p := geom.NewPolygon(geom.XY)
		require.NoError(t, p.Push(geom.NewLinearRingFlat(geom.XY, []float64{
			minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
		})))
		mp := geom.NewMultiPolygon(geom.XY)
		require.NoError(t, mp.Push(p))
		return mp
	}
	ix, err := geoindex.Build([]geoindex.Boundary{
		{Name: "North Philadelphia", Geom: ring(-75.17, 39.98, -75.13, 40.01)},
		{Name: "Fishtown", Geom: ring(-75.14, 39.96, -75.12, 39.98)},
	})
	require.NoError(t, err)
	return ix
}

func TestClassify_EndToEnd(t *testing.T) {
	c := New(testIndex(t))

	raw := model.RawRecord{
		ID:          "ZP-2025-001234",
		Type:        model.RecordTypePermit,
		Address:     "2400 N BROAD ST",
		Description: "Permit for an eight (8) family (multi-family) household living in an existing structure.",
		Coord:       model.Coordinate{X: -75.15, Y: 40.00},
		District:    "5",
		Filed:       time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	got := c.Classify(raw)
	assert.Equal(t, 8, got.Units.N)
	assert.Equal(t, model.UnitSourceExtracted, got.Units.Source)
	assert.Equal(t, "North Philadelphia", got.Neighborhood)
	assert.Equal(t, "5", got.District)
}

func TestClassify_DistrictDefault(t *testing.T) {
	c := New(testIndex(t))

	tests := []struct {
		raw  string
		want string
	}{
		{"", model.DistrictUnknown},
		{"  ", model.DistrictUnknown},
		{"7", "7"},
	}
	for _, tt := range tests {
		got := c.Classify(model.RawRecord{District: tt.raw})
		assert.Equal(t, tt.want, got.District)
	}
}

func TestClassify_MissingCoordinate(t *testing.T) {
	c := New(testIndex(t))

	got := c.Classify(model.RawRecord{Address: "123 MARKET ST"})
	assert.Empty(t, got.Neighborhood)

	got = c.Classify(model.RawRecord{Coord: model.Coordinate{X: -75.15}})
	assert.Empty(t, got.Neighborhood)
}

func TestClassify_NoIndexDegrades(t *testing.T) {
	// Boundary data unavailable: every record classifies with no
	// neighborhood instead of the pipeline aborting.
	c := New(nil)

	got := c.Classify(model.RawRecord{
		Description: "erect 6 dwelling units",
		Coord:       model.Coordinate{X: -75.15, Y: 40.00},
		District:    "3",
	})
	assert.Empty(t, got.Neighborhood)
	assert.Equal(t, 6, got.Units.N)
	assert.Equal(t, "3", got.District)
}

func TestClassify_Idempotent(t *testing.T) {
	c := New(testIndex(t))
	raw := model.RawRecord{
		ID:          "P-1",
		Description: "nineteen unit apartment building",
		Coord:       model.Coordinate{X: -75.13, Y: 39.97},
		District:    "1",
	}
	assert.Equal(t, c.Classify(raw), c.Classify(raw))
}

func TestClassifyAll_PreservesOrder(t *testing.T) {
	c := New(testIndex(t))

	records := []model.RawRecord{
		{ID: "a", Description: "2 units"},
		{ID: "b", Description: "10 units"},
		{ID: "c"},
		{ID: "d", Description: "MULTIFAMILY"},
	}
	got, err := c.ClassifyAll(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, "d", got[3].ID)

	assert.Equal(t, 2, got[0].Units.N)
	assert.Equal(t, 10, got[1].Units.N)
	assert.Equal(t, model.UnitSourceUnknown, got[2].Units.Source)
	assert.True(t, got[3].Units.MultiFamily())
}
