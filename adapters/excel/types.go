package excel

import "emcon/internal/table"

// Sheet is one named worksheet of an exported workbook
type Sheet struct {
	Name  string
	Table *table.Table
}
