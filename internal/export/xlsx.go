// Package export writes classified records to an XLSX workbook for manual
// review. Ambiguous unit counts get their own column so a reviewer can
// scan for records worth double-checking before the digest goes out.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/model"
)

var headerRow = []string{
	"ID", "Address", "Developer", "Units", "Unit Source", "Ambiguous",
	"Neighborhood", "Council District", "Filed", "Description",
}

// WriteXLSX writes permits and variances to separate sheets of one
// workbook at the given path.
func WriteXLSX(path string, permits, variances []model.ClassifiedRecord) error {
	f := xlsx.NewFile()

	if err := addSheet(f, "Permits", permits); err != nil {
		return err
	}
	if err := addSheet(f, "Variances", variances); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}

	zap.L().Info("export: workbook written",
		zap.String("path", path),
		zap.Int("permits", len(permits)),
		zap.Int("variances", len(variances)),
	)
	return nil
}

func addSheet(f *xlsx.File, name string, records []model.ClassifiedRecord) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}

	header := sheet.AddRow()
	for _, h := range headerRow {
		header.AddCell().SetString(h)
	}

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Address)
		row.AddCell().SetString(r.Developer)
		row.AddCell().SetString(r.Units.String())
		row.AddCell().SetString(string(r.Units.Source))
		if r.Units.Ambiguous {
			row.AddCell().SetString("yes")
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(r.Neighborhood)
		row.AddCell().SetString(r.District)
		if r.Filed.IsZero() {
			row.AddCell().SetString("")
		} else {
			row.AddCell().SetString(r.Filed.Format("2006-01-02"))
		}
		row.AddCell().SetString(r.Description)
	}
	return nil
}
