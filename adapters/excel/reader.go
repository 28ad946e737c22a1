package excel

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/table"

	"github.com/xuri/excelize/v2"
)

// DataReader reads an xlsx workbook or a CSV file into a table
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *slog.Logger
}

// NewDataReader creates a reader; the file type comes from the extension
func NewDataReader(filePath string, logger *slog.Logger) *DataReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logging.OrDiscard(logger)}
}

// WithSheet selects the worksheet to read. The default is the first sheet.
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

// ReadTable reads the file. Header cells are trimmed; rows are padded to the header width.
func (r *DataReader) ReadTable() (*table.Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound(fmt.Sprintf("%s file %s", strings.ToUpper(r.fileType), r.filePath))
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, errors.InvalidInput("unsupported file type: " + r.fileType)
	}
}

func (r *DataReader) readExcelData() (*table.Table, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.IOError(r.filePath, err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheet)
	}
	if len(rows) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("sheet %s has no header row", sheet))
	}

	r.logger.Debug("workbook read", "path", r.filePath, "sheet", sheet,
		"rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return r.processRows(rows), nil
}

func (r *DataReader) readCSVData() (*table.Table, error) {
	t, err := table.ReadCSV(r.filePath)
	if err != nil {
		return nil, errors.IOError(r.filePath, err)
	}
	r.logger.Debug("csv read", "path", r.filePath, "rows", t.Len())
	t.RenameColumns(strings.TrimSpace)
	return t, nil
}

func (r *DataReader) processRows(rows [][]string) *table.Table {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	t := table.New(headers...)
	for _, row := range rows[1:] {
		t.Append(row)
	}
	return t
}
