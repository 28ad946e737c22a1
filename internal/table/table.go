// Package table holds the in-memory tabular representation shared by the
// psychopy reader, the summary writers and the averaging pipeline.
package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Table is a header plus string cells. Missing cells are empty strings.
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

// New creates an empty table with the given header
func New(columns ...string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of a column, or -1
func (t *Table) Index(col string) int {
	if t.index == nil {
		t.reindex()
	}
	if i, ok := t.index[col]; ok {
		return i
	}
	return -1
}

// Has reports whether the column exists
func (t *Table) Has(col string) bool { return t.Index(col) >= 0 }

// Require returns an error naming the first missing column
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return fmt.Errorf("missing column %q", c)
		}
	}
	return nil
}

// AddColumn appends a column if it does not exist and returns its index
func (t *Table) AddColumn(col string) int {
	if i := t.Index(col); i >= 0 {
		return i
	}
	t.Columns = append(t.Columns, col)
	t.index[col] = len(t.Columns) - 1
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], "")
	}
	return len(t.Columns) - 1
}

// DropColumns removes columns, ignoring unknown names
func (t *Table) DropColumns(cols ...string) {
	drop := make(map[int]bool)
	for _, c := range cols {
		if i := t.Index(c); i >= 0 {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return
	}
	keep := func(row []string) []string {
		out := make([]string, 0, len(row)-len(drop))
		for i, v := range row {
			if !drop[i] {
				out = append(out, v)
			}
		}
		return out
	}
	t.Columns = keep(t.Columns)
	for r := range t.Rows {
		t.Rows[r] = keep(t.Rows[r])
	}
	t.reindex()
}

// RenameColumns rewrites every header through fn
func (t *Table) RenameColumns(fn func(string) string) {
	for i, c := range t.Columns {
		t.Columns[i] = fn(c)
	}
	t.reindex()
}

// Append adds a row, padding or truncating it to the header width
func (t *Table) Append(row []string) {
	out := make([]string, len(t.Columns))
	copy(out, row)
	t.Rows = append(t.Rows, out)
}

// AppendRecord adds a row from column/value pairs, adding unknown columns
func (t *Table) AppendRecord(record map[string]string) {
	for col := range record {
		if !t.Has(col) {
			t.AddColumn(col)
		}
	}
	row := make([]string, len(t.Columns))
	for col, v := range record {
		row[t.Index(col)] = v
	}
	t.Rows = append(t.Rows, row)
}

// Get returns a cell, or "" when the column does not exist
func (t *Table) Get(row int, col string) string {
	i := t.Index(col)
	if i < 0 || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Set writes a cell, adding the column if needed
func (t *Table) Set(row int, col, value string) {
	i := t.AddColumn(col)
	t.Rows[row][i] = value
}

// SetFloat writes a formatted float; NaN is written as an empty cell
func (t *Table) SetFloat(row int, col string, value float64) {
	t.Set(row, col, FormatFloat(value))
}

// Float parses a cell. Empty, NaN and non-numeric cells report false.
func (t *Table) Float(row int, col string) (float64, bool) {
	return ParseFloat(t.Get(row, col))
}

// Column returns a copy of one column's cells
func (t *Table) Column(col string) []string {
	out := make([]string, len(t.Rows))
	for r := range t.Rows {
		out[r] = t.Get(r, col)
	}
	return out
}

// Floats returns the parseable values of a column for the given rows
func (t *Table) Floats(col string, rows []int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := t.Float(r, col); ok {
			out = append(out, v)
		}
	}
	return out
}

// Where returns the indices of rows matching pred
func (t *Table) Where(pred func(r int) bool) []int {
	var out []int
	for r := range t.Rows {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Filter returns a new table holding copies of matching rows
func (t *Table) Filter(pred func(r int) bool) *Table {
	out := New(t.Columns...)
	for _, r := range t.Where(pred) {
		out.Rows = append(out.Rows, append([]string(nil), t.Rows[r]...))
	}
	return out
}

// Concat stacks tables, taking the union of their columns in first-seen order
func Concat(tables ...*Table) *Table {
	out := New()
	for _, t := range tables {
		for _, c := range t.Columns {
			out.AddColumn(c)
		}
	}
	for _, t := range tables {
		for r := range t.Rows {
			row := make([]string, len(out.Columns))
			for i, c := range t.Columns {
				if i < len(t.Rows[r]) {
					row[out.Index(c)] = t.Rows[r][i]
				}
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// NumericColumns lists columns whose non-empty cells all parse as numbers and
// that have at least one value, skipping excluded names
func (t *Table) NumericColumns(exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	var out []string
	for _, c := range t.Columns {
		if skip[c] {
			continue
		}
		numeric, seen := true, false
		for r := range t.Rows {
			v := strings.TrimSpace(t.Get(r, c))
			if v == "" || strings.EqualFold(v, "nan") {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
				break
			}
			seen = true
		}
		if numeric && seen {
			out = append(out, c)
		}
	}
	return out
}

// Group is one key combination and the rows that carry it
type Group struct {
	Key  []string
	Rows []int
}

// GroupBy partitions rows by the given columns. Groups come back sorted by key.
func (t *Table) GroupBy(keys ...string) []Group {
	byKey := make(map[string]*Group)
	for r := range t.Rows {
		key := make([]string, len(keys))
		for i, k := range keys {
			key[i] = t.Get(r, k)
		}
		id := strings.Join(key, "\x00")
		g, ok := byKey[id]
		if !ok {
			g = &Group{Key: key}
			byKey[id] = g
		}
		g.Rows = append(g.Rows, r)
	}

	groups := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return groups
}

// ParseFloat parses a numeric cell
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatFloat renders a value for CSV output; NaN becomes an empty cell
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
