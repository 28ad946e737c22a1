package excel

import (
	"os"
	"path/filepath"

	"emcon/internal/errors"
	"emcon/internal/table"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook saves sheets into a single xlsx file. Cells that parse as
// numbers are stored as numbers so the workbook sorts and charts correctly.
func WriteWorkbook(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return errors.InvalidInput("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				return errors.Wrapf(err, "failed to name sheet %s", sheet.Name)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return errors.Wrapf(err, "failed to add sheet %s", sheet.Name)
		}
		if err := writeSheet(f, sheet); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError(path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	header := make([]interface{}, len(sheet.Table.Columns))
	for i, c := range sheet.Table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
		return errors.Wrapf(err, "failed to write header of %s", sheet.Name)
	}

	for r, row := range sheet.Table.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			if n, ok := table.ParseFloat(v); ok {
				cells[i] = n
			} else {
				cells[i] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return errors.Wrap(err, "invalid cell coordinates")
		}
		if err := f.SetSheetRow(sheet.Name, cell, &cells); err != nil {
			return errors.Wrapf(err, "failed to write row %d of %s", r+1, sheet.Name)
		}
	}
	return f.SetPanes(sheet.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
