package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestWriteXLSX(t *testing.T) {
	permits := []model.ClassifiedRecord{
		{
			RawRecord: model.RawRecord{
				ID:          "ZP-2025-1",
				Type:        model.RecordTypePermit,
				Address:     "123 MARKET ST",
				Developer:   "ACME BUILDERS",
				Description: "ERECT 12 UNIT BUILDING",
				Filed:       time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
			},
			Units:        model.UnitCount{N: 12, Source: model.UnitSourceExtracted},
			Neighborhood: "Old City",
			District:     "5",
		},
		{
			RawRecord: model.RawRecord{ID: "ZP-2025-2", Type: model.RecordTypePermit, Address: "9 BROAD ST"},
			Units:     model.UnitCount{N: 9, Source: model.UnitSourceExtracted, Ambiguous: true},
			District:  model.DistrictUnknown,
		},
	}
	variances := []model.ClassifiedRecord{
		{
			RawRecord: model.RawRecord{ID: "A-2025-9", Type: model.RecordTypeVariance, Address: "700 FISHTOWN AVE"},
			Units:     model.MultiFamilyUnits(),
			District:  "1",
		},
	}

	path := filepath.Join(t.TempDir(), "records.xlsx")
	require.NoError(t, WriteXLSX(path, permits, variances))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	permitSheet, ok := f.Sheet["Permits"]
	require.True(t, ok)
	require.Len(t, permitSheet.Rows, 3)

	header := permitSheet.Rows[0]
	assert.Equal(t, "ID", header.Cells[0].String())
	assert.Equal(t, "Ambiguous", header.Cells[5].String())

	first := permitSheet.Rows[1]
	assert.Equal(t, "ZP-2025-1", first.Cells[0].String())
	assert.Equal(t, "12", first.Cells[3].String())
	assert.Equal(t, "extracted", first.Cells[4].String())
	assert.Equal(t, "", first.Cells[5].String())
	assert.Equal(t, "Old City", first.Cells[6].String())
	assert.Equal(t, "2025-08-20", first.Cells[8].String())

	// The ambiguous record is flagged for review.
	second := permitSheet.Rows[2]
	assert.Equal(t, "yes", second.Cells[5].String())
	assert.Equal(t, "", second.Cells[8].String())

	varianceSheet, ok := f.Sheet["Variances"]
	require.True(t, ok)
	require.Len(t, varianceSheet.Rows, 2)
	assert.Equal(t, "Unknown (Multi-Family)", varianceSheet.Rows[1].Cells[3].String())
}

func TestWriteXLSX_EmptySheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteXLSX(path, nil, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	for _, sheet := range f.Sheets {
		require.Len(t, sheet.Rows, 1)
	}
}
