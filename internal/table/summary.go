package table

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
)

// Summary is a wide numeric table with one row per key (usually sub_id).
// Rows and columns keep insertion order; unset cells read as NaN.
type Summary struct {
	IndexLabel string

	columns []string
	colSet  map[string]bool
	ids     []string
	rows    map[string]map[string]float64
}

// NewSummary creates an empty summary with a fixed leading set of columns
func NewSummary(indexLabel string, columns ...string) *Summary {
	s := &Summary{
		IndexLabel: indexLabel,
		colSet:     make(map[string]bool),
		rows:       make(map[string]map[string]float64),
	}
	for _, c := range columns {
		s.addColumn(c)
	}
	return s
}

func (s *Summary) addColumn(col string) {
	if !s.colSet[col] {
		s.colSet[col] = true
		s.columns = append(s.columns, col)
	}
}

// Set writes one cell, adding the row and column when new
func (s *Summary) Set(id, col string, v float64) {
	s.addColumn(col)
	row, ok := s.rows[id]
	if !ok {
		row = make(map[string]float64)
		s.rows[id] = row
		s.ids = append(s.ids, id)
	}
	row[col] = v
}

// Get reads one cell; ok is false for unset or NaN cells
func (s *Summary) Get(id, col string) (float64, bool) {
	v, ok := s.rows[id][col]
	if !ok || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// Value reads one cell as NaN when unset
func (s *Summary) Value(id, col string) float64 {
	v, _ := s.Get(id, col)
	return v
}

// HasRow reports whether an id has a row
func (s *Summary) HasRow(id string) bool {
	_, ok := s.rows[id]
	return ok
}

// IDs returns row keys in insertion order
func (s *Summary) IDs() []string { return append([]string(nil), s.ids...) }

// Columns returns column names in insertion order
func (s *Summary) Columns() []string { return append([]string(nil), s.columns...) }

// Row returns a copy of one row's cells
func (s *Summary) Row(id string) map[string]float64 {
	out := make(map[string]float64, len(s.rows[id]))
	for k, v := range s.rows[id] {
		out[k] = v
	}
	return out
}

// Upsert copies every cell of other into s. Cells other leaves unset are kept.
func (s *Summary) Upsert(other *Summary) {
	for _, c := range other.columns {
		s.addColumn(c)
	}
	for _, id := range other.ids {
		for col, v := range other.rows[id] {
			s.Set(id, col, v)
		}
	}
}

// ToTable renders the summary with the index as the first column
func (s *Summary) ToTable() *Table {
	t := New(append([]string{s.IndexLabel}, s.columns...)...)
	for _, id := range s.ids {
		row := make([]string, len(t.Columns))
		row[0] = id
		for i, c := range s.columns {
			if v, ok := s.rows[id][c]; ok {
				row[i+1] = FormatFloat(v)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// SummaryFromTable converts a table keyed by indexLabel. Non-numeric cells are dropped.
func SummaryFromTable(t *Table, indexLabel string) (*Summary, error) {
	if err := t.Require(indexLabel); err != nil {
		return nil, err
	}
	s := NewSummary(indexLabel)
	for _, c := range t.Columns {
		if c != indexLabel {
			s.addColumn(c)
		}
	}
	for r := range t.Rows {
		id := t.Get(r, indexLabel)
		if id == "" {
			return nil, fmt.Errorf("row %d has an empty %s", r+1, indexLabel)
		}
		if !s.HasRow(id) {
			s.rows[id] = make(map[string]float64)
			s.ids = append(s.ids, id)
		}
		for _, c := range t.Columns {
			if c == indexLabel {
				continue
			}
			if v, ok := t.Float(r, c); ok {
				s.rows[id][c] = v
			}
		}
	}
	return s, nil
}

// LoadSummary reads a saved summary. A missing file returns (nil, nil).
func LoadSummary(path, indexLabel string) (*Summary, error) {
	t, err := ReadCSV(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return SummaryFromTable(t, indexLabel)
}

// Save writes the summary as CSV
func (s *Summary) Save(path string) error {
	return s.ToTable().WriteCSV(path)
}
